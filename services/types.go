package services

import (
	"errors"
	"log/slog"
	"time"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
	"github.com/flashbots/tdesoracle/tdx"
)

// ServiceConfig contains configuration for the challenge service.
type ServiceConfig struct {
	// Oracle configures the challenge and its isolation mode.
	Oracle *protocol.OracleConfig

	// Server configures the TCP listener. Zero SessionLifetime and
	// ReadTimeout take the values from Oracle.
	Server *server.Config

	// Secret is the payload revealed for the correct plaintext.
	Secret []byte

	// Store receives finished sessions. Nil selects an InMemoryStore.
	Store SessionStore

	// MetricsPrefix names exported metrics.
	MetricsPrefix string

	// Attestation, if set, attests the challenge at startup and serves the
	// quote on GET /attestation.
	Attestation tdx.Provider

	// ExpectedMeasurements, if set, must match the startup quote.
	ExpectedMeasurements tdx.Measurements

	Log *slog.Logger
}

// Validate checks the configuration.
func (c *ServiceConfig) Validate() error {
	if c.Oracle == nil {
		return errors.New("oracle config cannot be nil")
	}
	if c.Server == nil {
		return errors.New("server config cannot be nil")
	}
	return c.Oracle.Validate()
}

// Status is returned by GET /status.
type Status struct {
	Version        string                          `json:"version"`
	Isolation      protocol.Isolation              `json:"isolation"`
	Budget         int                             `json:"budget"`
	Remaining      *int                            `json:"remaining,omitempty"`
	Challenge      string                          `json:"challenge_fingerprint,omitempty"`
	ActiveSessions int64                           `json:"active_sessions"`
	Sessions       map[protocol.SessionOutcome]int `json:"sessions"`
	Uptime         time.Duration                   `json:"uptime_ns"`
}

// budgeted is implemented by oracles that report their remaining budget.
type budgeted interface {
	Remaining() int
}

func challengeFingerprint(ct []byte) string {
	if len(ct) == 0 {
		return ""
	}
	return crypto.Fingerprint(ct)
}
