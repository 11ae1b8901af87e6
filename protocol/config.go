package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Isolation selects how oracle state is shared between connections.
type Isolation string

const (
	// IsolationShared serves every connection from one oracle whose budget is
	// only reset at process start.
	IsolationShared Isolation = "shared"

	// IsolationPerConnection gives every connection a fresh oracle.
	IsolationPerConnection Isolation = "per-connection"
)

// Valid returns true if the isolation mode is recognized.
func (i Isolation) Valid() bool {
	switch i {
	case IsolationShared, IsolationPerConnection:
		return true
	}
	return false
}

// OracleConfig provides configuration parameters for the challenge oracle.
type OracleConfig struct {
	// Budget is the number of decrypt calls allowed per oracle.
	Budget int `json:"budget" yaml:"budget"`

	// ChallengeLength is the challenge plaintext size in bytes.
	ChallengeLength int `json:"challenge_length" yaml:"challenge_length"`

	// Seed, hex encoded, derives key material deterministically when set.
	Seed string `json:"seed" yaml:"seed"`

	// Isolation selects shared or per-connection oracle state.
	Isolation Isolation `json:"isolation" yaml:"isolation"`

	// SessionLifetime caps a connection regardless of protocol state.
	SessionLifetime time.Duration `json:"session_lifetime" yaml:"session_lifetime"`

	// ReadTimeout bounds the wait for each client line.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// DefaultOracleConfig mirrors the reference challenge: 128 decryptions,
// a 64 byte challenge and a 128 second session cap.
func DefaultOracleConfig() *OracleConfig {
	return &OracleConfig{
		Budget:          128,
		ChallengeLength: 64,
		Isolation:       IsolationShared,
		SessionLifetime: 128 * time.Second,
		ReadTimeout:     30 * time.Second,
	}
}

// SeedBytes decodes the configured seed. It returns nil when unset.
func (c *OracleConfig) SeedBytes() ([]byte, error) {
	if c.Seed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	return seed, nil
}

// Validate checks the configuration.
func (c *OracleConfig) Validate() error {
	if c.Budget < 0 {
		return errors.New("budget must not be negative")
	}
	if c.ChallengeLength <= 0 || c.ChallengeLength%8 != 0 {
		return fmt.Errorf("challenge_length %d must be a positive multiple of 8", c.ChallengeLength)
	}
	if !c.Isolation.Valid() {
		return fmt.Errorf("unknown isolation %q", c.Isolation)
	}
	if c.SessionLifetime < 0 || c.ReadTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	_, err := c.SeedBytes()
	return err
}

// StrategyConfig parameterizes plaintext recovery.
type StrategyConfig struct {
	// MaxQueries bounds the oracle calls of one recovery pass.
	MaxQueries int `json:"max_queries" yaml:"max_queries"`

	// StreakLength is the run of identical consecutive outputs accepted as
	// stable.
	StreakLength int `json:"streak_length" yaml:"streak_length"`

	// WarmupQueries is the number of queries before confidence checks start.
	WarmupQueries int `json:"warmup_queries" yaml:"warmup_queries"`

	// CheckInterval is the query interval between confidence checks.
	CheckInterval int `json:"check_interval" yaml:"check_interval"`

	// MinFrequency is the mode's minimum share of observations.
	MinFrequency float64 `json:"min_frequency" yaml:"min_frequency"`

	// MinStability is the minimum average per-bit stability.
	MinStability float64 `json:"min_stability" yaml:"min_stability"`

	// FallbackThreshold is the repeat count accepted by the fallback pass.
	FallbackThreshold int `json:"fallback_threshold" yaml:"fallback_threshold"`

	// Complement queries the bitwise complement of the challenge and fixes
	// up the first block of the selected candidate.
	Complement bool `json:"complement" yaml:"complement"`
}

// DefaultStrategyConfig returns the thresholds used by the reference client.
func DefaultStrategyConfig() *StrategyConfig {
	return &StrategyConfig{
		MaxQueries:        128,
		StreakLength:      3,
		WarmupQueries:     16,
		CheckInterval:     8,
		MinFrequency:      0.25,
		MinStability:      0.70,
		FallbackThreshold: 3,
		Complement:        true,
	}
}

// Validate checks the configuration.
func (c *StrategyConfig) Validate() error {
	if c.MaxQueries <= 0 {
		return errors.New("max_queries must be positive")
	}
	if c.StreakLength < 2 {
		return errors.New("streak_length must be at least 2")
	}
	if c.CheckInterval <= 0 {
		return errors.New("check_interval must be positive")
	}
	if c.WarmupQueries < 0 {
		return errors.New("warmup_queries must not be negative")
	}
	if c.MinFrequency < 0 || c.MinFrequency > 1 || c.MinStability < 0 || c.MinStability > 1 {
		return errors.New("min_frequency and min_stability must be within [0, 1]")
	}
	if c.FallbackThreshold < 1 {
		return errors.New("fallback_threshold must be positive")
	}
	return nil
}
