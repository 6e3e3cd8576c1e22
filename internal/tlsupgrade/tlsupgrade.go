// Package tlsupgrade implements the SSLRequest handshake: announcing TLS
// support (or the lack of it) to a connecting client and, when supported,
// upgrading the raw socket to a TLS connection in place before the frame
// reader resumes.
package tlsupgrade

import (
	"crypto/tls"
	"log/slog"
	"net"

	"github.com/pgmock/pgmock/internal/buffer"
)

// identifier is the single byte the server writes in reply to an
// SSLRequest startup frame, before either upgrading the socket or falling
// back to plaintext.
type identifier []byte

var (
	supported   identifier = []byte{'S'}
	unsupported identifier = []byte{'N'}
)

// Config controls whether and how SSLRequest is honored.
type Config struct {
	// TLSConfig is nil when TLS is disabled, or when no usable
	// certificate is configured; either case falls back to plaintext.
	TLSConfig *tls.Config
}

// Enabled reports whether cfg carries a usable TLS configuration.
func (cfg *Config) Enabled() bool {
	return cfg != nil && cfg.TLSConfig != nil && len(cfg.TLSConfig.Certificates) > 0
}

// Upgrade performs the SSLRequest handshake on conn. When TLS is enabled it
// writes the 'S' byte, wraps conn in a TLS server connection, and returns a
// freshly constructed Reader bound to the upgraded connection so the caller
// can read the client's re-sent startup frame. When TLS is disabled (or
// unusable) it writes 'N' and returns the original conn together with a
// freshly constructed Reader on it; the caller must still read a fresh
// startup frame in that case,
// since the client re-sends one either way.
func Upgrade(logger *slog.Logger, conn net.Conn, bufferSize int, cfg *Config) (net.Conn, *buffer.Reader, error) {
	if !cfg.Enabled() {
		if _, err := conn.Write(unsupported); err != nil {
			return conn, nil, err
		}

		return conn, buffer.NewReader(logger, conn, bufferSize), nil
	}

	if _, err := conn.Write(supported); err != nil {
		return conn, nil, err
	}

	upgraded := tls.Server(conn, cfg.TLSConfig)
	reader := buffer.NewReader(logger, upgraded, bufferSize)
	return upgraded, reader, nil
}
