package protocol

import (
	"errors"
	"fmt"

	"github.com/pgmock/pgmock/internal/buffer"
	"github.com/pgmock/pgmock/internal/wirecodes"
	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// writeError writes err as an ErrorResponse. Unlike the teacher's
// ErrorCode helper, this never also emits ReadyForQuery: the extended
// query protocol requires errors to suppress ReadyForQuery until the next
// Sync, so call sites decide for themselves when (or whether) to follow
// up with one.
func (c *Conn) writeError(err error) error {
	return buffer.WriteErrFields(c.writer, wiretypes.ServerErrorResponse, wireerr.Flatten(err, c.cfg.DevMode))
}

// Notice writes a NoticeResponse carrying message, used by a connection
// manager to warn a client before forcibly ending its session.
func (c *Conn) Notice(message string) error {
	return buffer.WriteErrFields(c.writer, wiretypes.ServerNoticeResponse, wireerr.Flatten(wireerr.WithSeverity(errors.New(message), wireerr.LevelNotice), c.cfg.DevMode))
}

// RollbackForShutdown resets an open transaction to idle and emits a
// ReadyForQuery, used by a connection manager when it drains a
// connection during a graceful shutdown rather than leaving it to hang
// mid-transaction.
func (c *Conn) RollbackForShutdown() error {
	if !c.state.InTransaction() {
		return nil
	}
	c.state.SetTransactionStatus(wiretypes.TxIdle)
	c.state.ClearSavepoints()
	return c.writeReady()
}

func protocolViolationErr(detail any) error {
	return wireerr.WithSeverity(
		wireerr.WithCode(fmt.Errorf("protocol violation: %v", detail), wirecodes.ProtocolViolation),
		wireerr.LevelFatal,
	)
}

func unsupportedMechanismErr(mechanism string) error {
	return wireerr.WithSeverity(
		wireerr.WithCode(fmt.Errorf("unsupported SASL mechanism %q", mechanism), wirecodes.FeatureNotSupported),
		wireerr.LevelFatal,
	)
}

func authenticationFailedErr() error {
	return wireerr.WithSeverity(
		wireerr.WithCode(errors.New("authentication failed"), wirecodes.InvalidAuthorizationSpecification),
		wireerr.LevelFatal,
	)
}

func unknownStatementErr(name string) error {
	return wireerr.WithSeverity(
		wireerr.WithCode(fmt.Errorf("prepared statement %q does not exist", name), wirecodes.InvalidSQLStatementName),
		wireerr.LevelError,
	)
}

func unknownPortalErr(name string) error {
	return wireerr.WithSeverity(
		wireerr.WithCode(fmt.Errorf("portal %q does not exist", name), wirecodes.InvalidCursorName),
		wireerr.LevelError,
	)
}

func functionCallUnsupportedErr() error {
	return wireerr.WithSeverity(
		wireerr.WithCode(errors.New("function call protocol is not supported"), wirecodes.FeatureNotSupported),
		wireerr.LevelError,
	)
}
