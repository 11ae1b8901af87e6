package testutil

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
)

// TestSeed derives the fixture key material.
const TestSeed = "0f1e2d3c4b5a69788796a5b4c3d2e1f0"

// TestSecret is the reveal payload used by fixtures.
var TestSecret = []byte("flag{complement-of-a-complement}")

// TestOracleConfigOption modifies an OracleConfig.
type TestOracleConfigOption func(*protocol.OracleConfig)

// WithBudget sets the decryption budget.
func WithBudget(budget int) TestOracleConfigOption {
	return func(c *protocol.OracleConfig) {
		c.Budget = budget
	}
}

// WithChallengeLength sets the challenge length in bytes.
func WithChallengeLength(n int) TestOracleConfigOption {
	return func(c *protocol.OracleConfig) {
		c.ChallengeLength = n
	}
}

// WithSeed sets the hex seed. An empty seed selects random material.
func WithSeed(seed string) TestOracleConfigOption {
	return func(c *protocol.OracleConfig) {
		c.Seed = seed
	}
}

// WithIsolation sets the isolation mode.
func WithIsolation(mode protocol.Isolation) TestOracleConfigOption {
	return func(c *protocol.OracleConfig) {
		c.Isolation = mode
	}
}

// NewTestOracleConfig returns the default config seeded with TestSeed.
func NewTestOracleConfig(options ...TestOracleConfigOption) *protocol.OracleConfig {
	cfg := protocol.DefaultOracleConfig()
	cfg.Seed = TestSeed
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// NewRand returns a PCG generator seeded with seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TestMaterial derives 64 byte challenge material from TestSeed.
func TestMaterial(t testing.TB) *crypto.Material {
	t.Helper()
	cfg := NewTestOracleConfig()
	m, err := server.NewMaterial(cfg)
	require.NoError(t, err)
	return m
}

// NewTestOracle creates an oracle over material with a deterministic
// corruption sequence.
func NewTestOracle(t testing.TB, material *crypto.Material, budget int, seed uint64) *server.Oracle {
	t.Helper()
	o, err := server.NewOracle(&server.OracleParams{
		Material: material,
		Secret:   TestSecret,
		Budget:   budget,
		Rand:     NewRand(seed),
	})
	require.NoError(t, err)
	return o
}

// DrainBudget spends the oracle's whole remaining budget.
func DrainBudget(t testing.TB, o *server.Oracle) {
	t.Helper()
	ctx := context.Background()
	for o.Remaining() > 0 {
		_, err := o.Decrypt(ctx, make([]byte, crypto.BlockSize))
		require.NoError(t, err)
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OracleSession adapts an in-process oracle to protocol.Session.
type OracleSession struct {
	protocol.Oracle
	Closed bool
}

func (s *OracleSession) Close() error {
	s.Closed = true
	return nil
}

// StartOracleServer serves oracles on a loopback port until the test ends.
// cfg.Addr and cfg.Log are overwritten.
func StartOracleServer(t testing.TB, cfg *server.Config, oracles server.OracleFactory) *server.Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	cfg.Log = DiscardLogger()

	srv, err := server.New(cfg, oracles)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("oracle server did not stop")
		}
	})
	return srv
}
