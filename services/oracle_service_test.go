package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/tdesoracle/client"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
	"github.com/flashbots/tdesoracle/testutil"
)

func startTestService(t *testing.T, cfg *protocol.OracleConfig) (*OracleService, chi.Router) {
	t.Helper()
	svc, err := NewOracleService(&ServiceConfig{
		Oracle:        cfg,
		Server:        &server.Config{Addr: "127.0.0.1:0"},
		Secret:        testutil.TestSecret,
		MetricsPrefix: "servicetest",
		Log:           testutil.DiscardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() {
		cancel()
		require.NoError(t, svc.Wait())
		require.NoError(t, svc.Close())
	})

	r := chi.NewRouter()
	svc.RegisterRoutes(r)
	return svc, r
}

func getJSON(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
	}
	return rec.Code
}

func TestNewOracleServiceValidation(t *testing.T) {
	_, err := NewOracleService(nil)
	require.Error(t, err)

	_, err = NewOracleService(&ServiceConfig{Oracle: protocol.DefaultOracleConfig()})
	require.Error(t, err)

	bad := protocol.DefaultOracleConfig()
	bad.Isolation = "bogus"
	_, err = NewOracleService(&ServiceConfig{Oracle: bad, Server: &server.Config{}})
	require.Error(t, err)
}

func TestOracleServiceRecordsSessions(t *testing.T) {
	svc, router := startTestService(t, testutil.NewTestOracleConfig(testutil.WithBudget(4)))

	recorded := make(chan *protocol.SessionRecord, 1)
	svc.SetSessionCallback(func(r *protocol.SessionRecord) { recorded <- r })

	ctx := context.Background()
	c, err := client.Dial(ctx, svc.Addr().String(), nil)
	require.NoError(t, err)
	_, err = c.Decrypt(ctx, make([]byte, 8))
	require.NoError(t, err)
	_, err = c.Reveal(ctx, make([]byte, 64))
	require.ErrorIs(t, err, protocol.ErrMismatch)

	select {
	case r := <-recorded:
		require.Equal(t, protocol.OutcomeMismatch, r.Outcome)
		require.Equal(t, 1, r.Decrypts)
	case <-time.After(5 * time.Second):
		t.Fatal("session not recorded")
	}

	var status Status
	require.Equal(t, http.StatusOK, getJSON(t, router, "/status", &status))
	require.Equal(t, protocol.IsolationShared, status.Isolation)
	require.Equal(t, 4, status.Budget)
	require.NotNil(t, status.Remaining)
	require.Equal(t, 3, *status.Remaining)
	require.Len(t, status.Challenge, 16)
	require.Equal(t, 1, status.Sessions[protocol.OutcomeMismatch])

	var sessions []*protocol.SessionRecord
	require.Equal(t, http.StatusOK, getJSON(t, router, "/sessions?limit=5", &sessions))
	require.Len(t, sessions, 1)
	require.NotEmpty(t, sessions[0].CandidateFingerprint)

	require.Equal(t, http.StatusBadRequest, getJSON(t, router, "/sessions?limit=x", &sessions))
}

func TestOracleServicePerConnectionStatus(t *testing.T) {
	_, router := startTestService(t, testutil.NewTestOracleConfig(
		testutil.WithIsolation(protocol.IsolationPerConnection),
	))

	var status Status
	require.Equal(t, http.StatusOK, getJSON(t, router, "/status", &status))
	require.Equal(t, protocol.IsolationPerConnection, status.Isolation)
	require.Nil(t, status.Remaining)
	require.Empty(t, status.Challenge)

	var sessions []*protocol.SessionRecord
	require.Equal(t, http.StatusOK, getJSON(t, router, "/sessions", &sessions))
	require.Empty(t, sessions)
}
