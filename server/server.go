package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
)

// Config configures the TCP server.
type Config struct {
	// Addr is the TCP listen address.
	Addr string

	// SessionLifetime disconnects a client this long after it connected.
	// Zero disables the cap.
	SessionLifetime time.Duration

	// ReadTimeout bounds the wait for each client line.
	ReadTimeout time.Duration

	// WriteTimeout bounds each reply.
	WriteTimeout time.Duration

	// RateLimit is the sustained new connections per second allowed per
	// remote host. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the connection burst allowed per remote host.
	RateBurst int

	// Log is the structured logger. Nil selects slog.Default().
	Log *slog.Logger
}

// SessionCallback is invoked when a session ends.
type SessionCallback func(*protocol.SessionRecord)

// Server accepts connections and runs one session per connection.
type Server struct {
	cfg     *Config
	oracles OracleFactory
	log     *slog.Logger
	limiter *ipLimiter

	mu       sync.Mutex
	listener net.Listener
	callback SessionCallback

	wg     sync.WaitGroup
	active atomic.Int64
}

// New creates a server. Call Listen and Serve, or ListenAndServe.
func New(cfg *Config, oracles OracleFactory) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if oracles == nil {
		return nil, errors.New("oracle factory cannot be nil")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:     cfg,
		oracles: oracles,
		log:     log,
		limiter: newIPLimiter(cfg.RateLimit, cfg.RateBurst),
	}, nil
}

// SetSessionCallback sets a callback invoked when sessions end.
func (s *Server) SetSessionCallback(cb SessionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSessions returns the number of connections being served.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// ListenAndServe binds and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled, then waits for open
// sessions to finish. Cancelling ctx also cancels every session.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	s.log.Info("Listening for challenge sessions", "listenAddress", l.Addr().String())

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func newSessionID() string {
	b, err := crypto.RandomBytes(8)
	if err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.active.Add(1)
	defer s.active.Add(-1)

	record := &protocol.SessionRecord{
		ID:         newSessionID(),
		RemoteAddr: conn.RemoteAddr().String(),
		StartedAt:  time.Now(),
	}
	log := s.log.With("session", record.ID, "remote", record.RemoteAddr)
	log.Info("Accepted connection")
	defer s.finish(log, record)

	lc := protocol.NewLineConn(conn, s.cfg.ReadTimeout, s.cfg.WriteTimeout)

	if !s.limiter.Allow(remoteHost(conn.RemoteAddr())) {
		record.Outcome = protocol.OutcomeRateLimited
		lc.WriteLine(protocol.MsgRateLimited)
		return
	}

	sessionCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.SessionLifetime > 0 {
		sessionCtx, cancel = context.WithTimeout(ctx, s.cfg.SessionLifetime)
	}
	defer cancel()
	stop := context.AfterFunc(sessionCtx, func() { conn.Close() })
	defer stop()

	oracle, err := s.oracles()
	if err != nil {
		log.Error("Could not create oracle", "err", err)
		record.Outcome = protocol.OutcomeDisconnected
		return
	}

	h := &sessionHandler{oracle: oracle, lc: lc, record: record, log: log}
	outcome, err := h.run(sessionCtx)
	if outcome == "" {
		outcome = classifyEnd(sessionCtx, err)
	}
	record.Outcome = outcome
	if err != nil && outcome != protocol.OutcomeDisconnected && outcome != protocol.OutcomeTimeout {
		log.Warn("Reply failed", "err", err)
	}
}

func classifyEnd(ctx context.Context, err error) protocol.SessionOutcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return protocol.OutcomeTimeout
	}
	return protocol.OutcomeDisconnected
}

func (s *Server) finish(log *slog.Logger, record *protocol.SessionRecord) {
	record.EndedAt = time.Now()
	log.Info("Session ended",
		"outcome", record.Outcome,
		"decrypts", record.Decrypts,
		"duration", record.Duration())

	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb != nil {
		cb(record)
	}
}
