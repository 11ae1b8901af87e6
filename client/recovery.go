package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
)

var (
	// ErrNoObservations is returned when the primary scan ends without a
	// single non-empty observation.
	ErrNoObservations = errors.New("no observations collected")

	// ErrNoCandidate is returned when the fallback pass ends without a
	// candidate.
	ErrNoCandidate = errors.New("no candidate recovered")

	// ErrReconnectLimit is returned once the retry policy is used up.
	ErrReconnectLimit = errors.New("reconnect limit reached")
)

// Dialer opens a new session with the challenge server.
type Dialer func(ctx context.Context) (protocol.Session, error)

// TCPDialer dials addr with Dial.
func TCPDialer(addr string, opts *Options) Dialer {
	return func(ctx context.Context) (protocol.Session, error) {
		return Dial(ctx, addr, opts)
	}
}

// State is the recovery state machine position.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateChallengeFetched
	StateQuerying
	StateStableFound
	StateBudgetExhausted
	StateError
	StateSubmitting
	StateSuccess
	StateMismatch
	StateClosed
)

var stateNames = [...]string{
	"disconnected",
	"connected",
	"challenge_fetched",
	"querying",
	"stable_found",
	"budget_exhausted",
	"error",
	"submitting",
	"success",
	"mismatch",
	"closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Method names how a candidate was selected.
type Method string

const (
	MethodStreak     Method = "streak"
	MethodConfidence Method = "confidence"
	MethodMode       Method = "mode"
	MethodFallback   Method = "fallback"
)

// Result describes a recovered plaintext.
type Result struct {
	Plaintext  []byte
	Method     Method
	Queries    int
	Reconnects int

	// Frequency is the selected candidate's share of the observations.
	Frequency float64

	// Stability is the average per-bit stability when the candidate was
	// selected.
	Stability float64

	// Payload is the server's reveal response, set by Solve.
	Payload []byte
}

// Config configures a Recoverer.
type Config struct {
	Strategy *protocol.StrategyConfig
	Retry    *RetryPolicy
	Log      *slog.Logger
}

// Recoverer runs the query-and-aggregate loop against a noisy oracle. It is
// not safe for concurrent use.
type Recoverer struct {
	dial     Dialer
	strategy *protocol.StrategyConfig
	retry    *RetryPolicy
	log      *slog.Logger

	state     State
	session   protocol.Session
	challenge []byte
	dials     int
}

// NewRecoverer creates a Recoverer. Nil config fields select defaults.
func NewRecoverer(dial Dialer, cfg *Config) (*Recoverer, error) {
	if dial == nil {
		return nil, errors.New("dialer cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	strategy := cfg.Strategy
	if strategy == nil {
		strategy = protocol.DefaultStrategyConfig()
	}
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Recoverer{
		dial:     dial,
		strategy: strategy,
		retry:    retry,
		log:      log,
	}, nil
}

// State returns the current state.
func (r *Recoverer) State() State {
	return r.state
}

// Reconnects returns the number of dials after the first.
func (r *Recoverer) Reconnects() int {
	if r.dials == 0 {
		return 0
	}
	return r.dials - 1
}

func (r *Recoverer) setState(s State) {
	if r.state != s {
		r.log.Debug("recovery state", "from", r.state, "to", s)
	}
	r.state = s
}

// connect dials and fetches the challenge.
func (r *Recoverer) connect(ctx context.Context) error {
	session, err := r.dial(ctx)
	if err != nil {
		return err
	}
	r.setState(StateConnected)

	challenge, err := session.FetchChallenge(ctx)
	if err != nil {
		session.Close()
		r.setState(StateDisconnected)
		return err
	}
	if len(challenge) == 0 || len(challenge)%crypto.BlockSize != 0 {
		session.Close()
		r.setState(StateDisconnected)
		return fmt.Errorf("%w: challenge of %d bytes", protocol.ErrUnexpectedResponse, len(challenge))
	}
	if r.challenge != nil && !bytes.Equal(r.challenge, challenge) {
		r.log.Warn("challenge changed after reconnect")
	}

	r.session = session
	r.challenge = challenge
	r.setState(StateChallengeFetched)
	return nil
}

// ensureSession dials until a session is open, backing off between
// attempts. Every dial after the first counts against the retry policy.
func (r *Recoverer) ensureSession(ctx context.Context) error {
	for r.session == nil {
		if r.dials > 0 {
			attempt := r.dials - 1
			if attempt >= r.retry.MaxAttempts {
				r.setState(StateError)
				return fmt.Errorf("%w after %d reconnects", ErrReconnectLimit, attempt)
			}
			delay := r.retry.Backoff(attempt)
			r.log.Info("Reconnecting", "attempt", attempt+1, "backoff", delay)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		r.dials++
		err := r.connect(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			r.setState(StateError)
			return err
		}
		r.log.Warn("Connection failed", "err", err)
	}
	return nil
}

func (r *Recoverer) dropSession() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}
}

// query returns the ciphertext submitted to the oracle.
func (r *Recoverer) query() []byte {
	if r.strategy.Complement {
		return crypto.Complement(r.challenge)
	}
	return bytes.Clone(r.challenge)
}

// candidate turns an observation into a plaintext candidate.
func (r *Recoverer) candidate(observation []byte) []byte {
	pt := bytes.Clone(observation)
	if r.strategy.Complement {
		crypto.ComplementPrefix(pt, crypto.BlockSize)
	}
	return pt
}

// tables holds the aggregates of one session.
type tables struct {
	freq      *FrequencyTable
	stability *StabilityTable
	streak    streak
}

func newTables() *tables {
	return &tables{freq: NewFrequencyTable(), stability: NewStabilityTable()}
}

// Recover runs the primary scan, falling back to pure frequency counting if
// the scan fails.
func (r *Recoverer) Recover(ctx context.Context) (*Result, error) {
	res, err := r.scan(ctx)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	r.log.Warn("Primary scan failed, using fallback", "err", err)
	r.dropSession()
	res, fbErr := r.fallback(ctx)
	if fbErr != nil {
		return nil, errors.Join(err, fbErr)
	}
	return res, nil
}

// step issues one decrypt query. It returns the observation, or nil when the
// query produced no usable output. A reset result means the session was
// replaced and the aggregates must be discarded.
func (r *Recoverer) step(ctx context.Context) (obs []byte, reset bool, err error) {
	if err := r.ensureSession(ctx); err != nil {
		return nil, false, err
	}
	r.setState(StateQuerying)

	pt, err := r.session.Decrypt(ctx, r.query())
	if err == nil {
		return pt, false, nil
	}
	if errors.Is(err, protocol.ErrBudgetExhausted) {
		r.setState(StateBudgetExhausted)
		r.dropSession()
		return nil, false, err
	}
	if IsRetryable(err) {
		r.setState(StateError)
		r.log.Warn("Query failed", "err", err)
		r.dropSession()
		return nil, true, nil
	}
	r.setState(StateError)
	return nil, false, err
}

func (r *Recoverer) scan(ctx context.Context) (*Result, error) {
	s := r.strategy
	t := newTables()
	queries := 0

	result := func(obs []byte, method Method) *Result {
		return &Result{
			Plaintext:  r.candidate(obs),
			Method:     method,
			Queries:    queries,
			Reconnects: r.Reconnects(),
			Frequency:  t.freq.Frequency(),
			Stability:  t.stability.Score(),
		}
	}

	for queries < s.MaxQueries {
		obs, reset, err := r.step(ctx)
		if errors.Is(err, protocol.ErrBudgetExhausted) {
			r.log.Info("Budget exhausted during scan", "queries", queries)
			break
		}
		if err != nil {
			return nil, err
		}
		if reset {
			t = newTables()
			continue
		}

		queries++
		if len(obs) == 0 {
			continue
		}
		t.freq.Observe(obs)
		flipped := t.stability.Observe(obs)

		if run := t.streak.observe(obs); run >= s.StreakLength {
			r.setState(StateStableFound)
			r.log.Info("Stable output", "queries", queries, "streak", run)
			return result(obs, MethodStreak), nil
		}

		if queries >= s.WarmupQueries && queries%s.CheckInterval == 0 {
			freq, stability := t.freq.Frequency(), t.stability.Score()
			r.log.Info("Confidence check",
				"queries", queries,
				"distinct", t.freq.Distinct(),
				"frequency", freq,
				"stability", stability,
				"lastFlipped", flipped)
			if freq >= s.MinFrequency && stability >= s.MinStability {
				mode, _ := t.freq.Mode()
				r.setState(StateStableFound)
				return result(mode, MethodConfidence), nil
			}
		}
	}

	mode, count := t.freq.Mode()
	if mode == nil {
		return nil, ErrNoObservations
	}
	r.log.Info("Selected most frequent candidate", "queries", queries, "count", count)
	return result(mode, MethodMode), nil
}

// fallback counts full decryptions on a fresh session and accepts the first
// candidate seen FallbackThreshold times. On budget exhaustion it returns the
// mode, if any.
func (r *Recoverer) fallback(ctx context.Context) (*Result, error) {
	s := r.strategy
	freq := NewFrequencyTable()
	queries := 0

	result := func(obs []byte) *Result {
		return &Result{
			Plaintext:  r.candidate(obs),
			Method:     MethodFallback,
			Queries:    queries,
			Reconnects: r.Reconnects(),
			Frequency:  freq.Frequency(),
		}
	}

	for queries < s.MaxQueries {
		obs, reset, err := r.step(ctx)
		if errors.Is(err, protocol.ErrBudgetExhausted) {
			break
		}
		if err != nil {
			return nil, err
		}
		if reset {
			freq = NewFrequencyTable()
			continue
		}

		queries++
		if len(obs) == 0 {
			continue
		}
		if freq.Observe(obs) >= s.FallbackThreshold {
			r.setState(StateStableFound)
			r.log.Info("Fallback threshold reached", "queries", queries)
			return result(obs), nil
		}
	}

	mode, _ := freq.Mode()
	if mode == nil {
		return nil, ErrNoCandidate
	}
	return result(mode), nil
}

// Reveal submits plaintext, reconnecting if the session has ended. The
// session is closed afterwards.
func (r *Recoverer) Reveal(ctx context.Context, plaintext []byte) ([]byte, error) {
	if err := r.ensureSession(ctx); err != nil {
		return nil, err
	}
	r.setState(StateSubmitting)

	payload, err := r.session.Reveal(ctx, plaintext)
	r.dropSession()
	switch {
	case errors.Is(err, protocol.ErrMismatch):
		r.setState(StateMismatch)
	case err != nil:
		r.setState(StateError)
	default:
		r.setState(StateSuccess)
	}
	return payload, err
}

// Solve recovers the plaintext and redeems it. The returned Result is
// non-nil whenever recovery succeeded, even if the reveal failed.
func (r *Recoverer) Solve(ctx context.Context) (*Result, error) {
	defer r.Close()

	res, err := r.Recover(ctx)
	if err != nil {
		return nil, err
	}
	r.log.Info("Recovered plaintext",
		"plaintext", protocol.EncodeHex(res.Plaintext),
		"method", res.Method,
		"queries", res.Queries,
		"reconnects", res.Reconnects)

	res.Payload, err = r.Reveal(ctx, res.Plaintext)
	res.Reconnects = r.Reconnects()
	return res, err
}

// Close releases any open session.
func (r *Recoverer) Close() error {
	r.dropSession()
	r.setState(StateClosed)
	return nil
}
