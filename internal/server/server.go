// Package server implements pgmock's connection manager: the listener and
// accept loop, a table of live connections, admission control, an idle
// reaper, and a graceful, idempotent shutdown sequence.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgmock/pgmock/internal/metrics"
	"github.com/pgmock/pgmock/internal/protocol"
)

// Config parametrizes a Manager. ProtocolConfig is cloned per connection
// (only NextBackendPID is overridden) so every connection shares the same
// auth/executor/TLS settings.
type Config struct {
	Host string
	Port int

	MaxConnections       int
	IdleTimeout          time.Duration
	IdleReaperInterval   time.Duration
	ShutdownDrainTimeout time.Duration

	ProtocolConfig *protocol.Config
}

type connEntry struct {
	conn       *protocol.Conn
	netConn    net.Conn
	acceptedAt time.Time
}

// Manager owns a listener and every connection accepted from it.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector

	listener net.Listener

	mu       sync.Mutex
	conns    map[int32]*connEntry
	pidSeq   atomic.Int32
	draining atomic.Bool
	closed   atomic.Bool

	reaperStop chan struct{}
	wg         sync.WaitGroup
}

// NewManager constructs a Manager. Call Serve to start accepting
// connections.
func NewManager(cfg Config, logger *slog.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.New()
	}

	return &Manager{
		cfg:        cfg,
		logger:     logger,
		metrics:    collector,
		conns:      make(map[int32]*connEntry),
		reaperStop: make(chan struct{}),
	}
}

// Serve opens the listener and accepts connections until Shutdown is
// called or an unrecoverable accept error occurs.
func (m *Manager) Serve() error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return m.ServeListener(listener)
}

// ServeListener accepts connections from a caller-supplied listener,
// useful for tests that bind an ephemeral port.
func (m *Manager) ServeListener(listener net.Listener) error {
	m.listener = listener
	m.logger.Info("serving incoming connections", slog.String("addr", listener.Addr().String()))

	m.wg.Add(1)
	go m.runIdleReaper()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if m.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		go m.handleConn(conn)
	}
}

func (m *Manager) handleConn(netConn net.Conn) {
	if m.draining.Load() {
		m.metrics.ConnectionRejected("shutting_down")
		netConn.Close()
		return
	}

	m.mu.Lock()
	if m.cfg.MaxConnections > 0 && len(m.conns) >= m.cfg.MaxConnections {
		m.mu.Unlock()
		m.metrics.ConnectionRejected("max_connections")
		netConn.Close()
		return
	}

	pid := m.pidSeq.Add(1)
	entry := &connEntry{netConn: netConn, acceptedAt: time.Now()}
	m.conns[pid] = entry
	m.mu.Unlock()

	m.metrics.ConnectionAccepted()
	m.publishConnectionCounts()
	defer func() {
		m.mu.Lock()
		delete(m.conns, pid)
		m.mu.Unlock()
		m.publishConnectionCounts()
	}()

	protoCfg := *m.cfg.ProtocolConfig
	protoCfg.NextBackendPID = func() int32 { return pid }

	conn := protocol.NewConn(netConn, &protoCfg, m.logger)
	entry.conn = conn

	if err := conn.Serve(context.Background()); err != nil {
		m.logger.Error("connection ended with error", slog.Int("pid", int(pid)), slog.String("err", err.Error()))
	}
}

func (m *Manager) publishConnectionCounts() {
	m.mu.Lock()
	active, idle := 0, 0
	cutoff := time.Now().Add(-m.idleTimeout())
	for _, entry := range m.conns {
		if entry.conn == nil || entry.conn.State() == nil || !entry.conn.State().Authenticated() {
			continue
		}
		active++
		if entry.conn.State().LastActivity().Before(cutoff) {
			idle++
		}
	}
	m.mu.Unlock()

	m.metrics.SetConnectionCounts(active, idle)
}

func (m *Manager) idleTimeout() time.Duration {
	if m.cfg.IdleTimeout > 0 {
		return m.cfg.IdleTimeout
	}
	return 10 * time.Minute
}

func (m *Manager) reaperInterval() time.Duration {
	if m.cfg.IdleReaperInterval > 0 {
		return m.cfg.IdleReaperInterval
	}
	return 60 * time.Second
}

func (m *Manager) runIdleReaper() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reaperInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.reaperStop:
			return
		case <-ticker.C:
			m.reapIdleConnections()
		}
	}
}

func (m *Manager) reapIdleConnections() {
	cutoff := time.Now().Add(-m.idleTimeout())

	m.mu.Lock()
	var stale []*connEntry
	for _, entry := range m.conns {
		if entry.conn == nil || entry.conn.State() == nil {
			continue
		}
		if entry.conn.State().LastActivity().Before(cutoff) {
			stale = append(stale, entry)
		}
	}
	m.mu.Unlock()

	for _, entry := range stale {
		m.logger.Info("idle reaper evicting connection", slog.Duration("idle_timeout", m.idleTimeout()))
		m.metrics.IdleReaperEviction()
		entry.netConn.Close()
	}

	m.publishConnectionCounts()
}

// Shutdown runs the graceful shutdown sequence: stop admitting new
// connections, notify every live connection and roll back any open
// transaction, poll for the table to drain, then force-close whatever
// remains. Idempotent and safe to call concurrently.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	start := time.Now()
	m.draining.Store(true)
	close(m.reaperStop)

	if m.listener != nil {
		m.listener.Close()
	}

	m.mu.Lock()
	entries := make([]*connEntry, 0, len(m.conns))
	for _, entry := range m.conns {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		if entry.conn == nil || entry.conn.State() == nil {
			continue
		}
		if err := entry.conn.Notice("server is shutting down"); err != nil {
			continue
		}
		entry.conn.RollbackForShutdown() //nolint:errcheck
	}

	drainTimeout := m.cfg.ShutdownDrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}

	deadline := time.Now().Add(drainTimeout)
drain:
	for time.Now().Before(deadline) {
		if m.connectionCount() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break drain
		case <-time.After(100 * time.Millisecond):
		}
	}

	m.mu.Lock()
	stragglers := make([]*connEntry, 0, len(m.conns))
	for _, entry := range m.conns {
		stragglers = append(stragglers, entry)
	}
	m.conns = make(map[int32]*connEntry)
	m.mu.Unlock()

	for _, entry := range stragglers {
		entry.netConn.Close()
	}

	m.wg.Wait()
	m.metrics.ShutdownDrain(time.Since(start))
	return nil
}

func (m *Manager) connectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// ConnectionCount returns the number of connections currently tracked.
func (m *Manager) ConnectionCount() int {
	return m.connectionCount()
}

// Snapshot describes one live connection's non-sensitive state, for the
// HTTP monitoring endpoint's /debug/connections dump.
type Snapshot struct {
	BackendPID      int32     `json:"backend_pid"`
	RemoteAddr      string    `json:"remote_addr"`
	AcceptedAt      time.Time `json:"accepted_at"`
	Authenticated   bool      `json:"authenticated"`
	TransactionIdle bool      `json:"transaction_idle"`
	QueriesExecuted uint64    `json:"queries_executed"`
}

// Snapshots returns a point-in-time view of every tracked connection.
// backendSecret is intentionally never exposed.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.conns))
	for pid, entry := range m.conns {
		snap := Snapshot{
			BackendPID: pid,
			RemoteAddr: entry.netConn.RemoteAddr().String(),
			AcceptedAt: entry.acceptedAt,
		}

		if entry.conn != nil && entry.conn.State() != nil {
			state := entry.conn.State()
			snap.Authenticated = state.Authenticated()
			snap.TransactionIdle = !state.InTransaction()
			snap.QueriesExecuted = state.QueriesExecuted()
		}

		out = append(out, snap)
	}

	return out
}
