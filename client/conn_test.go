package client

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/tdesoracle/crypto"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
	"github.com/flashbots/tdesoracle/testutil"
)

func dialTestServer(t *testing.T, budget int) (*Conn, *crypto.Material, *server.Oracle) {
	t.Helper()
	material := testutil.TestMaterial(t)
	oracle := testutil.NewTestOracle(t, material, budget, 5)
	srv := testutil.StartOracleServer(t, &server.Config{}, server.SharedOracle(oracle))

	c, err := Dial(context.Background(), srv.Addr().String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, material, oracle
}

func TestConnOperations(t *testing.T) {
	c, material, oracle := dialTestServer(t, 2)
	ctx := context.Background()

	ct, err := c.FetchChallenge(ctx)
	require.NoError(t, err)
	want, err := material.Encrypted()
	require.NoError(t, err)
	assert.Equal(t, want, ct)

	pt, err := c.Decrypt(ctx, ct)
	require.NoError(t, err)
	assert.Len(t, pt, len(ct))

	pt, err = c.Decrypt(ctx, ct[:3])
	require.NoError(t, err)
	assert.Empty(t, pt)
	assert.Equal(t, 0, oracle.Remaining())

	_, err = c.Decrypt(ctx, ct)
	require.ErrorIs(t, err, protocol.ErrBudgetExhausted)
	assert.False(t, IsRetryable(err))

	_, err = c.Decrypt(ctx, ct)
	require.ErrorIs(t, err, protocol.ErrSessionClosed)
}

func TestConnReveal(t *testing.T) {
	c, material, _ := dialTestServer(t, 1)
	ctx := context.Background()

	payload, err := c.Reveal(ctx, material.Challenge)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestSecret, payload)

	_, err = c.FetchChallenge(ctx)
	require.ErrorIs(t, err, protocol.ErrSessionClosed)
}

func TestConnRevealMismatch(t *testing.T) {
	c, _, _ := dialTestServer(t, 1)
	_, err := c.Reveal(context.Background(), make([]byte, 64))
	require.ErrorIs(t, err, protocol.ErrMismatch)
}

func TestDialRateLimited(t *testing.T) {
	oracle := testutil.NewTestOracle(t, testutil.TestMaterial(t), 1, 5)
	srv := testutil.StartOracleServer(t, &server.Config{RateLimit: 0.001, RateBurst: 1}, server.SharedOracle(oracle))
	ctx := context.Background()

	c, err := Dial(ctx, srv.Addr().String(), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = Dial(ctx, srv.Addr().String(), nil)
	require.ErrorIs(t, err, protocol.ErrRateLimited)
	assert.True(t, IsRetryable(err))
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = Dial(context.Background(), addr, nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestDialUnexpectedGreeting(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		lc := protocol.NewLineConn(conn, 0, 0)
		lc.WriteLine("hello")
		lc.WriteMenu()
	}()

	_, err = Dial(context.Background(), l.Addr().String(), nil)
	require.True(t, errors.Is(err, protocol.ErrUnexpectedResponse))
	assert.False(t, IsRetryable(err))
}
