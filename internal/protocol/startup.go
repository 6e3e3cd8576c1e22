package protocol

import (
	"errors"
	"log/slog"

	"github.com/pgmock/pgmock/internal/buffer"
	"github.com/pgmock/pgmock/internal/scram"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// readVersion reads the untyped startup frame and returns its leading
// version/request code, without interpreting the rest of the body.
func (c *Conn) readVersion() (wiretypes.Version, error) {
	if _, err := c.reader.ReadUntypedMsg(); err != nil {
		return 0, err
	}

	v, err := c.reader.GetUint32()
	if err != nil {
		return 0, err
	}

	return wiretypes.Version(v), nil
}

// readStartupParameters reads the key/value pairs following the version
// code in a StartupMessage, up to the terminating empty key.
func (c *Conn) readStartupParameters() ([]kv, error) {
	var params []kv

	for {
		key, err := c.reader.GetString()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		value, err := c.reader.GetString()
		if err != nil {
			return nil, err
		}

		params = append(params, kv{key, value})
	}

	return params, nil
}

// handleCancelRequest reads the (pid, secret) pair of a CancelRequest
// startup frame and forwards it to the configured callback. The
// connection is then closed without any reply, matching the protocol: a
// cancel request is sent on its own throwaway connection.
func (c *Conn) handleCancelRequest() error {
	pid, err := c.reader.GetInt32()
	if err != nil {
		return err
	}

	secret, err := c.reader.GetInt32()
	if err != nil {
		return err
	}

	c.logger.Debug("received cancel request", slog.Int("pid", int(pid)))

	if c.cfg.OnCancelRequest != nil {
		c.cfg.OnCancelRequest(pid, secret)
	}

	return nil
}

var errAuthFailed = errors.New("authentication failed")

// authenticate runs the configured authentication strategy, then the
// shared post-auth sequence: ParameterStatus batch, BackendKeyData, and
// the first ReadyForQuery.
func (c *Conn) authenticate() error {
	switch c.cfg.AuthMode {
	case AuthSCRAM:
		if err := c.performSCRAMAuth(); err != nil {
			return err
		}
	default:
		if err := c.writeAuthOK(); err != nil {
			return err
		}
	}

	if err := c.writeParameterStatusBatch(); err != nil {
		return err
	}

	if err := c.writeBackendKeyData(); err != nil {
		return err
	}

	c.state.MarkAuthenticated()
	return c.writeReady()
}

// performSCRAMAuth drives the SCRAM-SHA-256 server role of the SASL
// authentication exchange: AuthenticationSASL, SASLInitialResponse,
// AuthenticationSASLContinue, SASLResponse, AuthenticationSASLFinal, and
// then AuthenticationOk.
func (c *Conn) performSCRAMAuth() error {
	if err := c.writeAuthSASL(); err != nil {
		return err
	}

	t, _, err := c.reader.ReadTypedMsg()
	if err != nil {
		return err
	}
	if t != wiretypes.ClientPassword {
		return c.authFailure(protocolViolationErr("expected SASLInitialResponse"))
	}

	mechanism, err := c.reader.GetString()
	if err != nil {
		return err
	}
	if mechanism != scram.Mechanism {
		return c.authFailure(unsupportedMechanismErr(mechanism))
	}

	length, err := c.reader.GetUint32()
	if err != nil {
		return err
	}

	payload, err := c.reader.GetBytes(int(length))
	if err != nil {
		return err
	}

	server := scram.NewServer(c.cfg.Credentials)
	c.state.SetSCRAM(server)

	serverFirst, err := server.Start(string(payload))
	if err != nil {
		return c.authFailure(err)
	}

	if err := c.writeAuthSASLContinue(serverFirst); err != nil {
		return err
	}

	t, _, err = c.reader.ReadTypedMsg()
	if err != nil {
		return err
	}
	if t != wiretypes.ClientPassword {
		return c.authFailure(protocolViolationErr("expected SASLResponse"))
	}

	final, err := c.reader.GetBytes(len(c.reader.Msg))
	if err != nil {
		return err
	}

	serverFinal, err := server.Finish(string(final))
	if err != nil {
		return c.authFailure(err)
	}

	if err := c.writeAuthSASLFinal(serverFinal); err != nil {
		return err
	}

	return c.writeAuthOK()
}

// authFailure writes an ErrorResponse for a failed authentication attempt
// and returns errAuthFailed, which Serve treats as a clean (no further
// error) connection close.
func (c *Conn) authFailure(cause error) error {
	c.logger.Debug("authentication failed", slog.String("err", cause.Error()))
	if err := c.writeError(authenticationFailedErr()); err != nil {
		return err
	}
	return errAuthFailed
}

func (c *Conn) writeAuthOK() error {
	c.writer.Start(wiretypes.ServerAuth)
	c.writer.AddInt32(int32(wiretypes.AuthOK))
	return c.writer.End()
}

func (c *Conn) writeAuthSASL() error {
	c.writer.Start(wiretypes.ServerAuth)
	c.writer.AddInt32(int32(wiretypes.AuthSASL))
	c.writer.AddString(scram.Mechanism)
	c.writer.AddNullTerminate()
	c.writer.AddNullTerminate()
	return c.writer.End()
}

func (c *Conn) writeAuthSASLContinue(body string) error {
	c.writer.Start(wiretypes.ServerAuth)
	c.writer.AddInt32(int32(wiretypes.AuthSASLContinue))
	c.writer.AddString(body)
	return c.writer.End()
}

func (c *Conn) writeAuthSASLFinal(body string) error {
	c.writer.Start(wiretypes.ServerAuth)
	c.writer.AddInt32(int32(wiretypes.AuthSASLFinal))
	c.writer.AddString(body)
	return c.writer.End()
}

// writeParameterStatusBatch emits the ParameterStatus messages a client
// expects right after authentication succeeds.
func (c *Conn) writeParameterStatusBatch() error {
	username, _ := c.state.GetParameter("user")
	applicationName, _ := c.state.GetParameter("application_name")

	values := []kv{
		{"server_version", c.serverVersion()},
		{"server_encoding", "UTF8"},
		{"client_encoding", "UTF8"},
		{"application_name", applicationName},
		{"is_superuser", buffer.EncodeBoolean(false)},
		{"session_authorization", username},
		{"DateStyle", "ISO, MDY"},
		{"IntervalStyle", "postgres"},
		{"TimeZone", "UTC"},
		{"integer_datetimes", buffer.EncodeBoolean(true)},
		{"standard_conforming_strings", buffer.EncodeBoolean(true)},
	}

	for _, v := range values {
		c.writer.Start(wiretypes.ServerParameterStatus)
		c.writer.AddString(v.Key)
		c.writer.AddNullTerminate()
		c.writer.AddString(v.Value)
		c.writer.AddNullTerminate()
		if err := c.writer.End(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) serverVersion() string {
	if c.cfg.ServerVersion != "" {
		return c.cfg.ServerVersion
	}
	return "16.0 (pgmock)"
}

func (c *Conn) writeBackendKeyData() error {
	c.writer.Start(wiretypes.ServerBackendKeyData)
	c.writer.AddInt32(c.state.BackendPID())
	c.writer.AddInt32(c.state.BackendSecret())
	return c.writer.End()
}
