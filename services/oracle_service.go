package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flashbots/tdesoracle/common"
	"github.com/flashbots/tdesoracle/metrics"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
)

// SessionCallback is invoked after a session record has been stored.
type SessionCallback func(*protocol.SessionRecord)

// OracleService runs the challenge TCP server, records finished sessions
// and exposes admin routes.
type OracleService struct {
	cfg       *ServiceConfig
	server    *server.Server
	store     SessionStore
	log       *slog.Logger
	prefix    string
	startedAt time.Time

	// Set in shared isolation only.
	shared    budgeted
	challenge string

	attestation *Attestation

	mu       sync.Mutex
	outcomes map[protocol.SessionOutcome]int
	callback SessionCallback

	done chan error
}

// NewOracleService builds the oracle factory and TCP server from cfg.
func NewOracleService(cfg *ServiceConfig) (*OracleService, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewInMemoryStore(0)
	}
	prefix := cfg.MetricsPrefix
	if prefix == "" {
		prefix = common.PackageName
	}

	oracles, err := server.NewOracleFactory(cfg.Oracle, cfg.Secret)
	if err != nil {
		return nil, err
	}

	serverCfg := *cfg.Server
	if serverCfg.SessionLifetime == 0 {
		serverCfg.SessionLifetime = cfg.Oracle.SessionLifetime
	}
	if serverCfg.ReadTimeout == 0 {
		serverCfg.ReadTimeout = cfg.Oracle.ReadTimeout
	}
	if serverCfg.Log == nil {
		serverCfg.Log = log
	}

	srv, err := server.New(&serverCfg, oracles)
	if err != nil {
		return nil, err
	}

	s := &OracleService{
		cfg:       cfg,
		server:    srv,
		store:     store,
		log:       log,
		prefix:    prefix,
		startedAt: time.Now(),
		outcomes:  make(map[protocol.SessionOutcome]int),
	}

	if cfg.Oracle.Isolation != protocol.IsolationPerConnection {
		o, err := oracles()
		if err != nil {
			return nil, err
		}
		s.shared, _ = o.(budgeted)
		ct, err := o.FetchChallenge(context.Background())
		if err != nil {
			return nil, err
		}
		s.challenge = challengeFingerprint(ct)
		if cfg.Attestation != nil {
			if s.attestation, err = attest(context.Background(), cfg.Attestation, cfg.ExpectedMeasurements, cfg.Oracle, ct); err != nil {
				return nil, err
			}
		}
	} else if cfg.Attestation != nil {
		if s.attestation, err = attest(context.Background(), cfg.Attestation, cfg.ExpectedMeasurements, cfg.Oracle, nil); err != nil {
			return nil, err
		}
	}

	srv.SetSessionCallback(s.onSession)
	return s, nil
}

// SetSessionCallback sets a callback invoked after each session is stored.
func (s *OracleService) SetSessionCallback(cb SessionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

func (s *OracleService) onSession(r *protocol.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SaveSession(ctx, r); err != nil {
		s.log.Error("Could not store session", "session", r.ID, "err", err)
		metrics.ObserveStoreError(s.prefix)
	}
	metrics.ObserveSession(s.prefix, r)

	s.mu.Lock()
	s.outcomes[r.Outcome]++
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb(r)
	}
}

// RegisterMetrics adds the service gauges to m.
func (s *OracleService) RegisterMetrics(m *metrics.MetricsServer) {
	m.RegisterGauge("active_sessions", func() float64 {
		return float64(s.server.ActiveSessions())
	})
	if s.shared != nil {
		m.RegisterGauge("remaining_budget", func() float64 {
			return float64(s.shared.Remaining())
		})
	}
}

// RegisterRoutes registers the admin routes.
func (s *OracleService) RegisterRoutes(r chi.Router) {
	r.Get("/status", s.handleStatus)
	r.Get("/sessions", s.handleSessions)
	r.Get("/attestation", s.handleAttestation)
}

// Attestation returns the startup attestation, or ErrNoAttestation.
func (s *OracleService) Attestation() (*Attestation, error) {
	if s.attestation == nil {
		return nil, ErrNoAttestation
	}
	return s.attestation, nil
}

// Start binds the TCP listener and serves in the background until ctx is
// cancelled. Use Wait to block until the server has stopped.
func (s *OracleService) Start(ctx context.Context) error {
	if err := s.server.Listen(); err != nil {
		return err
	}
	s.done = make(chan error, 1)
	go func() {
		s.done <- s.server.Serve(ctx)
	}()
	return nil
}

// Wait blocks until the server stopped and returns its error.
func (s *OracleService) Wait() error {
	if s.done == nil {
		return errors.New("service not started")
	}
	return <-s.done
}

// Addr returns the TCP address, or nil before Start.
func (s *OracleService) Addr() net.Addr {
	return s.server.Addr()
}

// Status returns a snapshot of the service state.
func (s *OracleService) Status() *Status {
	st := &Status{
		Version:        common.Version,
		Isolation:      s.cfg.Oracle.Isolation,
		Budget:         s.cfg.Oracle.Budget,
		Challenge:      s.challenge,
		ActiveSessions: s.server.ActiveSessions(),
		Sessions:       make(map[protocol.SessionOutcome]int),
		Uptime:         time.Since(s.startedAt),
	}
	if s.shared != nil {
		remaining := s.shared.Remaining()
		st.Remaining = &remaining
	}

	s.mu.Lock()
	for k, v := range s.outcomes {
		st.Sessions[k] = v
	}
	s.mu.Unlock()
	return st
}

// Close releases the session store.
func (s *OracleService) Close() error {
	return s.store.Close()
}

func (s *OracleService) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *OracleService) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		s.log.Error("Could not list sessions", "err", err)
		http.Error(w, "could not list sessions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*protocol.SessionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (s *OracleService) handleAttestation(w http.ResponseWriter, r *http.Request) {
	a, err := s.Attestation()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}
