// Package metrics exposes Prometheus-format counters for the challenge
// server and an HTTP server that serves them.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"

	"github.com/flashbots/tdesoracle/protocol"
)

// MetricsServer serves GET /metrics from the global set plus its own set.
type MetricsServer struct {
	prefix string
	set    *metrics.Set
	server *http.Server
}

// New creates a metrics server. Metric names are prefixed with prefix.
func New(prefix, listenAddr string) (*MetricsServer, error) {
	m := &MetricsServer{
		prefix: prefix,
		set:    metrics.NewSet(),
	}
	m.server = &http.Server{
		Addr:              listenAddr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// Router returns the /metrics handler.
func (m *MetricsServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(w, true)
		m.set.WritePrometheus(w)
	})
	return r
}

// RegisterGauge registers a callback gauge on this server's set. Each name
// may be registered once per server.
func (m *MetricsServer) RegisterGauge(name string, f func() float64) {
	m.set.NewGauge(m.prefix+"_"+name, f)
}

func (m *MetricsServer) ListenAndServe() error {
	return m.server.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

// ObserveSession counts a finished session by outcome.
func ObserveSession(prefix string, r *protocol.SessionRecord) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_sessions_total{outcome=%q}`, prefix, r.Outcome)).Inc()
	metrics.GetOrCreateCounter(prefix + "_decrypts_total").Add(r.Decrypts)
	metrics.GetOrCreateHistogram(prefix + "_session_duration_seconds").Update(r.Duration().Seconds())
	if r.CandidateFingerprint != "" {
		metrics.GetOrCreateCounter(prefix + "_reveal_attempts_total").Inc()
	}
}

// ObserveStoreError counts a failed session record write.
func ObserveStoreError(prefix string) {
	metrics.GetOrCreateCounter(prefix + "_store_errors_total").Inc()
}
