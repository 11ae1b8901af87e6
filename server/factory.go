package server

import (
	"fmt"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
)

// OracleFactory returns the oracle that serves a new connection.
type OracleFactory func() (protocol.Oracle, error)

// SharedOracle serves every connection from o.
func SharedOracle(o protocol.Oracle) OracleFactory {
	return func() (protocol.Oracle, error) {
		return o, nil
	}
}

// NewMaterial derives key material from the configured seed, or draws it
// from crypto/rand when no seed is set.
func NewMaterial(cfg *protocol.OracleConfig) (*crypto.Material, error) {
	seed, err := cfg.SeedBytes()
	if err != nil {
		return nil, err
	}
	if seed != nil {
		return crypto.DeriveMaterial(seed, cfg.ChallengeLength)
	}
	return crypto.GenerateMaterial(cfg.ChallengeLength)
}

// NewOracleFactory builds the factory selected by cfg.Isolation. In shared
// mode the oracle is created immediately so configuration errors surface at
// startup.
func NewOracleFactory(cfg *protocol.OracleConfig, secret []byte) (OracleFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	build := func() (protocol.Oracle, error) {
		material, err := NewMaterial(cfg)
		if err != nil {
			return nil, fmt.Errorf("key material: %w", err)
		}
		return NewOracle(&OracleParams{
			Material: material,
			Secret:   secret,
			Budget:   cfg.Budget,
		})
	}

	switch cfg.Isolation {
	case protocol.IsolationPerConnection:
		return build, nil
	default:
		o, err := build()
		if err != nil {
			return nil, err
		}
		return SharedOracle(o), nil
	}
}
