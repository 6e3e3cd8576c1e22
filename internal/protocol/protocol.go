// Package protocol drives the per-connection PostgreSQL v3.0 wire protocol
// state machine: startup negotiation, authentication dispatch, and the
// simple/extended query sub-protocols. It is the message router the rest
// of the core's components (connstate, scram, arrays, the wire codec)
// serve.
package protocol

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/pgmock/pgmock/internal/buffer"
	"github.com/pgmock/pgmock/internal/connstate"
	"github.com/pgmock/pgmock/internal/query"
	"github.com/pgmock/pgmock/internal/scram"
	"github.com/pgmock/pgmock/internal/tlsupgrade"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// AuthMode selects how a connection authenticates during startup.
type AuthMode int

const (
	AuthTrust AuthMode = iota
	AuthSCRAM
)

// Config holds everything a Conn needs that is shared across every
// connection on a listener: advertised parameters, the authentication
// mode and credentials, the query executor, and the TLS configuration.
type Config struct {
	ServerVersion string
	AuthMode      AuthMode
	Credentials   scram.Credentials
	DevMode       bool
	BufferSize    int
	Executor      query.Executor
	TLS           *tlsupgrade.Config

	// NextBackendPID assigns the cancellation-key process id for a new
	// connection. Defaults to a process-wide atomic counter; a connection
	// manager that keeps its own connection table may override this to
	// hand out ids it can look back up later.
	NextBackendPID func() int32

	// OnCancelRequest is invoked when a client sends a CancelRequest
	// startup frame, with the (pid, secret) pair it carried. The core
	// itself does not track connections by pid, so acting on this (or
	// not) is entirely up to the caller.
	OnCancelRequest func(pid, secret int32)
}

var pidCounter atomic.Int32

func defaultNextBackendPID() int32 {
	return pidCounter.Add(1)
}

// Conn drives one accepted connection through the protocol state machine.
// It is not safe for concurrent use; the conn-manager model is one fiber
// per connection, and a Conn belongs to exactly one.
type Conn struct {
	cfg     *Config
	logger  *slog.Logger
	netConn net.Conn
	reader  *buffer.Reader
	writer  *buffer.Writer
	state   *connstate.ConnState

	// skipToSync is set once an error occurs mid extended-query sequence;
	// every Parse/Bind/Describe/Execute message until the next Sync is
	// then read and discarded without being interpreted, per the extended
	// protocol's error recovery rule.
	skipToSync bool
}

// NewConn constructs a Conn around an freshly accepted socket. Serve must
// be called to actually run the connection.
func NewConn(netConn net.Conn, cfg *Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}

	return &Conn{
		cfg:     cfg,
		logger:  logger,
		netConn: netConn,
	}
}

// State returns the connection's mutable session state. Valid only once
// Serve has progressed past the startup frame; nil before that.
func (c *Conn) State() *connstate.ConnState {
	return c.state
}

var errTerminate = errors.New("client requested termination")

// Serve runs the connection to completion: startup negotiation
// (including an optional TLS upgrade), authentication, and then the
// command loop, until the client disconnects, terminates, or an
// unrecoverable protocol error occurs. The underlying socket is always
// closed before Serve returns.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.netConn.Close()

	c.reader = buffer.NewReader(c.logger, c.netConn, c.cfg.BufferSize)

	version, err := c.readVersion()
	if err != nil {
		return err
	}

	if version == wiretypes.VersionSSLRequest {
		upgraded, reader, err := tlsupgrade.Upgrade(c.logger, c.netConn, c.cfg.BufferSize, c.cfg.TLS)
		if err != nil {
			return err
		}

		c.netConn = upgraded
		c.reader = reader

		version, err = c.readVersion()
		if err != nil {
			return err
		}
	}

	c.writer = buffer.NewWriter(c.logger, c.netConn)

	if version == wiretypes.VersionCancel {
		return c.handleCancelRequest()
	}

	if version != wiretypes.Version30 {
		return c.writeError(protocolViolationErr("unsupported startup version"))
	}

	params, err := c.readStartupParameters()
	if err != nil {
		return err
	}

	pidFn := defaultNextBackendPID
	if c.cfg.NextBackendPID != nil {
		pidFn = c.cfg.NextBackendPID
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	c.state = connstate.New(pidFn(), secret, time.Now())
	c.state.SetProtocolVersion(version)
	for _, p := range params {
		c.state.SetParameter(p.Key, p.Value)
	}

	if err := c.authenticate(); err != nil {
		if errors.Is(err, errAuthFailed) {
			return nil
		}
		return err
	}

	return c.serveCommands(ctx)
}

func (c *Conn) serveCommands(ctx context.Context) error {
	for {
		t, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			if sizeErr, ok := buffer.UnwrapMessageSizeExceeded(err); ok {
				if drainErr := c.reader.Slurp(sizeErr.Size); drainErr != nil {
					return drainErr
				}
				if writeErr := c.writeError(err); writeErr != nil {
					return writeErr
				}
				continue
			}

			return err
		}

		c.state.Touch(time.Now())

		err = c.handleCommand(ctx, t)
		if err != nil {
			if errors.Is(err, errTerminate) {
				return nil
			}
			return err
		}
	}
}

type kv struct{ Key, Value string }

func randomSecret() (int32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}
