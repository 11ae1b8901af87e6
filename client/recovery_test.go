package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
	"github.com/flashbots/tdesoracle/testutil"
)

// scriptedSession replays fixed decrypt outputs.
type scriptedSession struct {
	challenge []byte
	outputs   func(i int) []byte
	budget    int
	failAt    int
	calls     int
	closed    bool
}

func (s *scriptedSession) FetchChallenge(ctx context.Context) ([]byte, error) {
	return s.challenge, nil
}

func (s *scriptedSession) Decrypt(ctx context.Context, ct []byte) ([]byte, error) {
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, Retryable(io.ErrUnexpectedEOF)
	}
	if s.budget <= 0 {
		return nil, protocol.ErrBudgetExhausted
	}
	s.budget--
	out := s.outputs(s.calls)
	s.calls++
	return out, nil
}

func (s *scriptedSession) Reveal(ctx context.Context, pt []byte) ([]byte, error) {
	return nil, protocol.ErrMismatch
}

func (s *scriptedSession) Close() error {
	s.closed = true
	return nil
}

// desyncedSession answers every decrypt with a reply that breaks framing.
type desyncedSession struct {
	scriptedSession
}

func (s *desyncedSession) Decrypt(ctx context.Context, ct []byte) ([]byte, error) {
	s.calls++
	return nil, fmt.Errorf("%w: stray line", protocol.ErrUnexpectedResponse)
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Multiplier:     2,
	}
}

func plainStrategy() *protocol.StrategyConfig {
	s := protocol.DefaultStrategyConfig()
	s.Complement = false
	return s
}

func newRecoverer(t *testing.T, dial Dialer, strategy *protocol.StrategyConfig) *Recoverer {
	t.Helper()
	r, err := NewRecoverer(dial, &Config{
		Strategy: strategy,
		Retry:    fastRetry(),
		Log:      testutil.DiscardLogger(),
	})
	require.NoError(t, err)
	return r
}

func sessionDialer(sessions ...protocol.Session) (Dialer, *int) {
	dials := 0
	return func(ctx context.Context) (protocol.Session, error) {
		i := dials
		dials++
		if i >= len(sessions) {
			return nil, Retryable(errors.New("connection refused"))
		}
		return sessions[i], nil
	}, &dials
}

func block(b byte) []byte {
	return bytes.Repeat([]byte{b}, 16)
}

func TestNewRecovererValidation(t *testing.T) {
	_, err := NewRecoverer(nil, nil)
	require.Error(t, err)

	dial, _ := sessionDialer()
	bad := protocol.DefaultStrategyConfig()
	bad.MaxQueries = 0
	_, err = NewRecoverer(dial, &Config{Strategy: bad})
	require.Error(t, err)

	r, err := NewRecoverer(dial, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, r.State())
}

func TestRecoverStreak(t *testing.T) {
	s := &scriptedSession{
		challenge: block(0),
		outputs:   func(int) []byte { return block(0x42) },
		budget:    100,
	}
	dial, _ := sessionDialer(s)
	r := newRecoverer(t, dial, plainStrategy())

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodStreak, res.Method)
	assert.Equal(t, 3, res.Queries)
	assert.Equal(t, block(0x42), res.Plaintext)
	assert.Equal(t, StateStableFound, r.State())
}

func TestRecoverConfidence(t *testing.T) {
	target := block(0x10)
	s := &scriptedSession{
		challenge: block(0),
		outputs: func(i int) []byte {
			if i%2 == 0 {
				return target
			}
			// One bit away from the target, never repeating.
			out := bytes.Clone(target)
			out[(i/2)%len(out)] ^= 1 << ((i / 2) % 8)
			out[len(out)-1] ^= byte(i)
			return out
		},
		budget: 100,
	}
	dial, _ := sessionDialer(s)
	r := newRecoverer(t, dial, plainStrategy())

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodConfidence, res.Method)
	assert.Equal(t, 16, res.Queries)
	assert.Equal(t, target, res.Plaintext)
	assert.GreaterOrEqual(t, res.Frequency, 0.25)
	assert.GreaterOrEqual(t, res.Stability, 0.7)
}

func TestRecoverModeOnBudgetExhaustion(t *testing.T) {
	s := &scriptedSession{
		challenge: block(0),
		outputs: func(i int) []byte {
			if i%4 == 0 {
				return block(0x77)
			}
			return block(byte(i))
		},
		budget: 10,
	}
	dial, _ := sessionDialer(s)
	r := newRecoverer(t, dial, plainStrategy())

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodMode, res.Method)
	assert.Equal(t, 10, res.Queries)
	assert.Equal(t, block(0x77), res.Plaintext)
	assert.True(t, s.closed)
}

func TestRecoverSkipsEmptyOutputs(t *testing.T) {
	s := &scriptedSession{
		challenge: block(0),
		outputs:   func(int) []byte { return []byte{} },
		budget:    5,
	}
	fresh := &scriptedSession{
		challenge: block(0),
		outputs:   func(int) []byte { return block(0x01) },
		budget:    5,
	}
	dial, _ := sessionDialer(s, fresh)
	r := newRecoverer(t, dial, plainStrategy())

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, res.Method)
	assert.Equal(t, block(0x01), res.Plaintext)
	assert.Equal(t, 1, res.Reconnects)
}

func TestRecoverReconnectsAndDiscardsObservations(t *testing.T) {
	first := &scriptedSession{
		challenge: block(0),
		outputs:   func(int) []byte { return block(0xee) },
		budget:    100,
		failAt:    2,
	}
	second := &scriptedSession{
		challenge: block(0),
		outputs:   func(int) []byte { return block(0x33) },
		budget:    100,
	}
	dial, dials := sessionDialer(first, second)
	r := newRecoverer(t, dial, plainStrategy())

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *dials)
	assert.Equal(t, 1, res.Reconnects)
	assert.Equal(t, MethodStreak, res.Method)
	assert.Equal(t, block(0x33), res.Plaintext)
	assert.True(t, first.closed)
}

func TestRecoverReconnectLimit(t *testing.T) {
	dial, dials := sessionDialer()
	r := newRecoverer(t, dial, plainStrategy())

	_, err := r.Recover(context.Background())
	require.ErrorIs(t, err, ErrReconnectLimit)
	assert.Equal(t, 1+fastRetry().MaxAttempts, *dials)
	assert.Equal(t, StateError, r.State())
}

func TestRecoverFatalErrorStopsImmediately(t *testing.T) {
	fatal := errors.New("boom")
	dials := 0
	dial := func(ctx context.Context) (protocol.Session, error) {
		dials++
		return nil, fatal
	}
	r := newRecoverer(t, dial, plainStrategy())

	_, err := r.Recover(context.Background())
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, dials, "one dial per pass, no retries")
}

func TestRecoverFallbackUsesFreshSession(t *testing.T) {
	broken := &desyncedSession{scriptedSession{challenge: block(0)}}
	good := &scriptedSession{
		challenge: block(0),
		outputs:   func(int) []byte { return block(0x17) },
		budget:    100,
	}
	dial, dials := sessionDialer(broken, good)
	r := newRecoverer(t, dial, plainStrategy())

	res, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, res.Method)
	assert.Equal(t, block(0x17), res.Plaintext)
	assert.Equal(t, 2, *dials)
	assert.True(t, broken.closed)
	assert.Equal(t, 1, broken.calls, "no queries on the desynchronized stream after the error")
	assert.Equal(t, 3, good.calls)
}

func TestRecoverContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dial, _ := sessionDialer()
	r, err := NewRecoverer(dial, &Config{Strategy: plainStrategy(), Log: testutil.DiscardLogger()})
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Recover(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

// Against the real oracle only the fully corrupted key repeats an output,
// so recovery goes through the most frequent candidate.
func TestSolveAgainstServer(t *testing.T) {
	material := testutil.TestMaterial(t)
	oracle := testutil.NewTestOracle(t, material, 128, 42)
	srv := testutil.StartOracleServer(t, &server.Config{}, server.SharedOracle(oracle))

	r, err := NewRecoverer(TCPDialer(srv.Addr().String(), nil), &Config{
		Retry: fastRetry(),
		Log:   testutil.DiscardLogger(),
	})
	require.NoError(t, err)

	res, err := r.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, material.Challenge, res.Plaintext)
	assert.Equal(t, MethodMode, res.Method)
	assert.Equal(t, 128, res.Queries)
	assert.Equal(t, testutil.TestSecret, res.Payload)
	assert.Zero(t, res.Reconnects)
	assert.Equal(t, StateClosed, r.State())
}

func TestSolveShortChallenge(t *testing.T) {
	cfg := testutil.NewTestOracleConfig(testutil.WithChallengeLength(24))
	material, err := server.NewMaterial(cfg)
	require.NoError(t, err)
	require.Len(t, material.Challenge, 24)

	oracles, err := server.NewOracleFactory(cfg, testutil.TestSecret)
	require.NoError(t, err)
	srv := testutil.StartOracleServer(t, &server.Config{}, oracles)

	r, err := NewRecoverer(TCPDialer(srv.Addr().String(), nil), &Config{
		Retry: fastRetry(),
		Log:   testutil.DiscardLogger(),
	})
	require.NoError(t, err)

	res, err := r.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, material.Challenge, res.Plaintext)
	assert.Equal(t, testutil.TestSecret, res.Payload)
}

func TestSolveWithoutComplementFails(t *testing.T) {
	material := testutil.TestMaterial(t)
	oracle := testutil.NewTestOracle(t, material, 128, 42)
	srv := testutil.StartOracleServer(t, &server.Config{}, server.SharedOracle(oracle))

	r := newRecoverer(t, TCPDialer(srv.Addr().String(), nil), plainStrategy())
	res, err := r.Solve(context.Background())
	require.ErrorIs(t, err, protocol.ErrMismatch)
	require.NotNil(t, res)
	assert.NotEqual(t, material.Challenge, res.Plaintext)
	assert.Equal(t, MethodMode, res.Method)
}

func TestRecoverFallbackAfterDrainedSession(t *testing.T) {
	material := testutil.TestMaterial(t)
	drained := testutil.NewTestOracle(t, material, 4, 1)
	testutil.DrainBudget(t, drained)
	fresh := testutil.NewTestOracle(t, material, 128, 2)

	first := &testutil.OracleSession{Oracle: drained}
	second := &testutil.OracleSession{Oracle: fresh}
	dial, dials := sessionDialer(first, second)
	r := newRecoverer(t, dial, protocol.DefaultStrategyConfig())

	res, err := r.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, res.Method)
	assert.Equal(t, material.Challenge, res.Plaintext)
	assert.Equal(t, testutil.TestSecret, res.Payload)
	assert.Equal(t, 2, *dials)
	assert.True(t, first.Closed)
}

func TestRecoverSharedBudgetExhaustedTerminates(t *testing.T) {
	material := testutil.TestMaterial(t)
	oracle := testutil.NewTestOracle(t, material, 8, 3)
	testutil.DrainBudget(t, oracle)
	srv := testutil.StartOracleServer(t, &server.Config{}, server.SharedOracle(oracle))

	r := newRecoverer(t, TCPDialer(srv.Addr().String(), nil), protocol.DefaultStrategyConfig())

	done := make(chan error, 1)
	go func() {
		_, err := r.Recover(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrNoObservations)
		require.ErrorIs(t, err, ErrNoCandidate)
	case <-time.After(10 * time.Second):
		t.Fatal("recovery did not terminate")
	}
}
