package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashbots/tdesoracle/client"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
	"github.com/flashbots/tdesoracle/tdx"
	"github.com/flashbots/tdesoracle/testutil"
)

func TestAttestationBindsServedChallenge(t *testing.T) {
	provider := &tdx.DummyProvider{}
	svc, err := NewOracleService(&ServiceConfig{
		Oracle:      testutil.NewTestOracleConfig(),
		Server:      &server.Config{Addr: "127.0.0.1:0"},
		Secret:      testutil.TestSecret,
		Attestation: provider,
		Log:         testutil.DiscardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	defer func() {
		cancel()
		require.NoError(t, svc.Wait())
	}()

	c, err := client.Dial(ctx, svc.Addr().String(), nil)
	require.NoError(t, err)
	defer c.Close()
	served, err := c.FetchChallenge(ctx)
	require.NoError(t, err)

	a, err := svc.Attestation()
	require.NoError(t, err)
	require.Equal(t, "dummy-tdx", a.Type)

	_, err = VerifyAttestation(provider, a, served, nil)
	require.NoError(t, err)

	tampered := *a
	tampered.Budget++
	_, err = VerifyAttestation(provider, &tampered, served, nil)
	require.Error(t, err)

	other := append([]byte(nil), served...)
	other[0] ^= 0xff
	_, err = VerifyAttestation(provider, a, other, nil)
	require.Error(t, err)
}

func TestAttestationRoute(t *testing.T) {
	_, router := startTestService(t, testutil.NewTestOracleConfig())
	var a Attestation
	require.Equal(t, http.StatusNotFound, getJSON(t, router, "/attestation", &a))

	svc, err := NewOracleService(&ServiceConfig{
		Oracle:      testutil.NewTestOracleConfig(testutil.WithIsolation(protocol.IsolationPerConnection)),
		Server:      &server.Config{Addr: "127.0.0.1:0"},
		Secret:      testutil.TestSecret,
		Attestation: &tdx.DummyProvider{},
		Log:         testutil.DiscardLogger(),
	})
	require.NoError(t, err)
	defer svc.Close()

	got, err := svc.Attestation()
	require.NoError(t, err)
	require.Empty(t, got.Challenge)
	_, err = VerifyAttestation(&tdx.DummyProvider{}, got, nil, nil)
	require.NoError(t, err)
}

func TestReportDataForChallenge(t *testing.T) {
	a := ReportDataForChallenge(protocol.IsolationShared, 128, []byte{1, 2, 3})
	b := ReportDataForChallenge(protocol.IsolationShared, 128, []byte{1, 2, 3})
	require.Equal(t, a, b)
	require.NotEqual(t, a, ReportDataForChallenge(protocol.IsolationPerConnection, 128, []byte{1, 2, 3}))
	require.NotEqual(t, a, ReportDataForChallenge(protocol.IsolationShared, 127, []byte{1, 2, 3}))
}

func TestAttestationExpectedMeasurements(t *testing.T) {
	newService := func(expected tdx.Measurements) (*OracleService, error) {
		return NewOracleService(&ServiceConfig{
			Oracle:               testutil.NewTestOracleConfig(),
			Server:               &server.Config{Addr: "127.0.0.1:0"},
			Secret:               testutil.TestSecret,
			Attestation:          &tdx.DummyProvider{},
			ExpectedMeasurements: expected,
			Log:                  testutil.DiscardLogger(),
		})
	}

	_, err := newService(tdx.Measurements{0: {0xaa}})
	require.ErrorContains(t, err, "measurement 0")

	svc, err := newService(tdx.Measurements{0: {0}, 1: {1}})
	require.NoError(t, err)
	defer svc.Close()

	a, err := svc.Attestation()
	require.NoError(t, err)
	m, err := VerifyAttestation(&tdx.DummyProvider{}, a, nil, tdx.Measurements{4: {4}})
	require.NoError(t, err)
	require.Len(t, m, 5)

	_, err = VerifyAttestation(&tdx.DummyProvider{}, a, nil, tdx.Measurements{4: {5}})
	require.Error(t, err)
}
