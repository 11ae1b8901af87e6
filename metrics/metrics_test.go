package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flashbots/tdesoracle/protocol"
)

func TestMetricsEndpoint(t *testing.T) {
	m, err := New("metricstest", "127.0.0.1:0")
	require.NoError(t, err)
	m.RegisterGauge("active_sessions", func() float64 { return 3 })

	now := time.Now()
	ObserveSession("metricstest", &protocol.SessionRecord{
		StartedAt:            now.Add(-time.Second),
		EndedAt:              now,
		Decrypts:             7,
		Outcome:              protocol.OutcomeMismatch,
		CandidateFingerprint: "00",
	})
	ObserveStoreError("metricstest")

	rec := httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `metricstest_sessions_total{outcome="mismatch"} 1`)
	require.Contains(t, body, "metricstest_decrypts_total 7")
	require.Contains(t, body, "metricstest_reveal_attempts_total 1")
	require.Contains(t, body, "metricstest_store_errors_total 1")
	require.Contains(t, body, "metricstest_active_sessions 3")
}
