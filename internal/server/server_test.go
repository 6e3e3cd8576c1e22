package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgmock/pgmock/internal/metrics"
	"github.com/pgmock/pgmock/internal/mockquery"
	"github.com/pgmock/pgmock/internal/protocol"
)

func newManager(t *testing.T, cfg Config) (*Manager, *net.TCPAddr) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	if cfg.ProtocolConfig == nil {
		cfg.ProtocolConfig = &protocol.Config{
			AuthMode: protocol.AuthTrust,
			Executor: mockquery.Executor{},
		}
	}

	m := NewManager(cfg, slogt.New(t), metrics.New())

	go m.ServeListener(listener) //nolint:errcheck

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Shutdown(ctx) //nolint:errcheck
	})

	return m, listener.Addr().(*net.TCPAddr)
}

func TestManagerAcceptsConnections(t *testing.T) {
	t.Parallel()

	m, addr := newManager(t, Config{MaxConnections: 10})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, m.ConnectionCount())
}

func TestManagerRejectsOverMaxConnections(t *testing.T) {
	t.Parallel()

	m, addr := newManager(t, Config{MaxConnections: 1})

	conn1, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn1.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, m.ConnectionCount())

	conn2, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn2.Close()

	// The second connection should be closed by the server almost
	// immediately since it exceeds MaxConnections.
	conn2.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn2.Read(buf)
	assert.Error(t, err)
}

func TestManagerShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, Config{MaxConnections: 10})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))
}

func TestSnapshotsOmitsBackendSecret(t *testing.T) {
	t.Parallel()

	m, addr := newManager(t, Config{MaxConnections: 10})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.NotEmpty(t, snaps[0].RemoteAddr)
	assert.False(t, snaps[0].Authenticated)

	data, err := json.Marshal(snaps[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}
