package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgmock/pgmock/internal/buffer"
	"github.com/pgmock/pgmock/internal/connstate"
	"github.com/pgmock/pgmock/internal/query"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// handleCommand dispatches a single typed message to its handler. It is
// the command loop's only entry point once startup has completed.
func (c *Conn) handleCommand(ctx context.Context, t wiretypes.ClientMessage) error {
	switch t {
	case wiretypes.ClientSimpleQuery:
		return c.handleSimpleQuery(ctx)
	case wiretypes.ClientParse:
		if c.skipToSync {
			return nil
		}
		return c.handleParse(ctx)
	case wiretypes.ClientBind:
		if c.skipToSync {
			return nil
		}
		return c.handleBind(ctx)
	case wiretypes.ClientDescribe:
		if c.skipToSync {
			return nil
		}
		return c.handleDescribe(ctx)
	case wiretypes.ClientExecute:
		if c.skipToSync {
			return nil
		}
		return c.handleExecute(ctx)
	case wiretypes.ClientSync:
		c.skipToSync = false
		c.state.ClearUnnamedPortal()
		c.state.ClosePreparedStatement("")
		return c.writeReady()
	case wiretypes.ClientClose:
		return c.handleClose(ctx)
	case wiretypes.ClientFlush:
		return nil
	case wiretypes.ClientCopyData, wiretypes.ClientCopyDone, wiretypes.ClientCopyFail:
		// The COPY sub-protocol is not implemented; these are acked as
		// no-ops so a client driving an interactive COPY doesn't hang.
		return nil
	case wiretypes.ClientFunctionCall:
		if err := c.writeError(functionCallUnsupportedErr()); err != nil {
			return err
		}
		return c.writeReady()
	case wiretypes.ClientTerminate:
		return errTerminate
	default:
		if err := c.writeError(protocolViolationErr(fmt.Sprintf("unimplemented message type %q", byte(t)))); err != nil {
			return err
		}
		return errTerminate
	}
}

// handleSimpleQuery runs the simple query protocol: the query string is
// split on ';' and each statement is run in turn, stopping at the first
// one that errors. A single ReadyForQuery is emitted once the whole batch
// has finished.
func (c *Conn) handleSimpleQuery(ctx context.Context) error {
	queryText, err := c.reader.GetString()
	if err != nil {
		return err
	}

	c.state.Touch(time.Now())

	if strings.TrimSpace(queryText) == "" {
		if err := writeEmptyQuery(c.writer); err != nil {
			return err
		}
		return c.writeReady()
	}

	for _, stmt := range splitStatements(queryText) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}

		c.state.IncrementQueryCount()
		result, err := c.runStatement(ctx, stmt, 0)
		if err != nil {
			return err
		}
		if result.errored {
			break
		}
	}

	return c.writeReady()
}

func splitStatements(query string) []string {
	return strings.Split(query, ";")
}

type runStatementResult struct {
	errored   bool
	suspended bool
}

// runStatement hands queryText to the configured Executor and translates
// the ResultEvents it streams back into wire messages, enforcing the
// failed-transaction gate along the way. rowLimit is the Execute message's
// maxRows (0 meaning unlimited, the only value the simple query protocol
// ever uses): once rowLimit rows have been sent, runStatement peeks one
// more event off the channel, and if it is itself another row, the portal
// is suspended (PortalSuspended is written instead of CommandComplete and
// the remainder of the result is discarded) rather than sending every row
// the Executor produced.
func (c *Conn) runStatement(ctx context.Context, queryText string, rowLimit int32) (runStatementResult, error) {
	events, err := c.cfg.Executor.Execute(ctx, queryText, c.state)
	if err != nil {
		if writeErr := c.writeError(err); writeErr != nil {
			return runStatementResult{}, writeErr
		}
		return runStatementResult{errored: true}, nil
	}

	var pending *query.ResultEvent
	first := true
	var rowCount int32

	for {
		var ev query.ResultEvent
		var ok bool
		if pending != nil {
			ev, pending = *pending, nil
			ok = true
		} else {
			ev, ok = <-events
		}
		if !ok {
			break
		}

		if first {
			first = false
			if c.state.TransactionStatus() == wiretypes.TxFailed && !isTransactionRecovery(ev) {
				drainEvents(events)
				if writeErr := c.writeError(inFailedTransactionErr()); writeErr != nil {
					return runStatementResult{}, writeErr
				}
				return runStatementResult{errored: true}, nil
			}
		}

		switch ev.Kind {
		case query.EventRowDescription:
			if err := writeRowDescription(c.writer, ev.Columns, nil); err != nil {
				return runStatementResult{}, err
			}
		case query.EventDataRow:
			if err := writeDataRow(c.writer, ev.Values); err != nil {
				return runStatementResult{}, err
			}
			rowCount++
			if rowLimit > 0 && rowCount >= rowLimit {
				if next, ok := <-events; ok {
					if next.Kind == query.EventDataRow {
						if err := writePortalSuspended(c.writer); err != nil {
							return runStatementResult{}, err
						}
						drainEvents(events)
						return runStatementResult{suspended: true}, nil
					}
					pending = &next
				}
			}
		case query.EventCommandComplete:
			if err := writeCommandComplete(c.writer, ev.Tag); err != nil {
				return runStatementResult{}, err
			}
		case query.EventEmptyQuery:
			if err := writeEmptyQuery(c.writer); err != nil {
				return runStatementResult{}, err
			}
		case query.EventError:
			if c.state.TransactionStatus() == wiretypes.TxActive {
				c.state.SetTransactionStatus(wiretypes.TxFailed)
			}
			if writeErr := c.writeError(ev.Err); writeErr != nil {
				return runStatementResult{}, writeErr
			}
			drainEvents(events)
			return runStatementResult{errored: true}, nil
		case query.EventTransactionOp:
			tag, txErr := applyTransactionOp(c.state, ev.TransactionOp, ev.SavepointName)
			if txErr != nil {
				if writeErr := c.writeError(txErr); writeErr != nil {
					return runStatementResult{}, writeErr
				}
				drainEvents(events)
				return runStatementResult{errored: true}, nil
			}
			if err := writeCommandComplete(c.writer, tag); err != nil {
				return runStatementResult{}, err
			}
		}
	}

	return runStatementResult{}, nil
}

func drainEvents(events <-chan query.ResultEvent) {
	for range events {
	}
}

func isTransactionRecovery(ev query.ResultEvent) bool {
	if ev.Kind != query.EventTransactionOp {
		return false
	}
	switch ev.TransactionOp {
	case query.TxOpCommit, query.TxOpRollback, query.TxOpRollbackTo:
		return true
	default:
		return false
	}
}

func (c *Conn) handleParse(ctx context.Context) error {
	name, err := c.reader.GetString()
	if err != nil {
		return err
	}

	queryText, err := c.reader.GetString()
	if err != nil {
		return err
	}

	numParams, err := c.reader.GetUint16()
	if err != nil {
		return err
	}

	oids := make([]uint32, numParams)
	for i := range oids {
		v, err := c.reader.GetUint32()
		if err != nil {
			return err
		}
		oids[i] = v
	}

	c.state.SetPreparedStatement(name, &connstate.PreparedStatement{Query: queryText, ParamOIDs: oids})

	c.writer.Start(wiretypes.ServerParseComplete)
	return c.writer.End()
}

func (c *Conn) handleBind(ctx context.Context) error {
	portalName, err := c.reader.GetString()
	if err != nil {
		return err
	}

	stmtName, err := c.reader.GetString()
	if err != nil {
		return err
	}

	numParamFormats, err := c.reader.GetUint16()
	if err != nil {
		return err
	}

	formats := make([]wiretypes.FormatCode, numParamFormats)
	for i := range formats {
		v, err := c.reader.GetUint16()
		if err != nil {
			return err
		}
		formats[i] = wiretypes.FormatCode(v)
	}

	numParams, err := c.reader.GetUint16()
	if err != nil {
		return err
	}

	values := make([][]byte, numParams)
	for i := range values {
		length, err := c.reader.GetInt32()
		if err != nil {
			return err
		}
		v, err := c.reader.GetBytes(int(length))
		if err != nil {
			return err
		}
		values[i] = v
	}

	numResultFormats, err := c.reader.GetUint16()
	if err != nil {
		return err
	}

	resultFormats := make([]wiretypes.FormatCode, numResultFormats)
	for i := range resultFormats {
		v, err := c.reader.GetUint16()
		if err != nil {
			return err
		}
		resultFormats[i] = wiretypes.FormatCode(v)
	}

	stmt, ok := c.state.PreparedStatement(stmtName)
	if !ok {
		return c.raiseExtendedError(unknownStatementErr(stmtName))
	}

	c.state.SetPortal(portalName, &connstate.Portal{
		StatementName: stmtName,
		Query:         stmt.Query,
		ParamFormats:  formats,
		ParamValues:   values,
		ResultFormats: resultFormats,
	})

	c.writer.Start(wiretypes.ServerBindComplete)
	return c.writer.End()
}

// raiseExtendedError writes an ErrorResponse and arms skipToSync, the
// extended protocol's error-recovery rule: every Parse/Bind/Describe/
// Execute up to (but not including) the next Sync is silently discarded.
func (c *Conn) raiseExtendedError(err error) error {
	if werr := c.writeError(err); werr != nil {
		return werr
	}
	c.skipToSync = true
	return nil
}

func (c *Conn) describeStatementColumns(ctx context.Context, stmt *connstate.PreparedStatement) ([]query.Column, error) {
	describer, ok := c.cfg.Executor.(query.Describer)
	if !ok {
		return nil, nil
	}

	columns, _, err := describer.Describe(ctx, stmt.Query, stmt.ParamOIDs)
	return columns, err
}

func (c *Conn) handleDescribe(ctx context.Context) error {
	kind, err := c.reader.GetPrepareType()
	if err != nil {
		return err
	}

	name, err := c.reader.GetString()
	if err != nil {
		return err
	}

	switch kind {
	case buffer.PrepareStatement:
		stmt, ok := c.state.PreparedStatement(name)
		if !ok {
			return c.raiseExtendedError(unknownStatementErr(name))
		}

		if err := writeParameterDescription(c.writer, stmt.ParamOIDs); err != nil {
			return err
		}

		columns, err := c.describeStatementColumns(ctx, stmt)
		if err != nil {
			return c.raiseExtendedError(err)
		}
		if len(columns) == 0 {
			c.writer.Start(wiretypes.ServerNoData)
			return c.writer.End()
		}
		return writeRowDescription(c.writer, columns, nil)

	case buffer.PreparePortal:
		portal, ok := c.state.Portal(name)
		if !ok {
			return c.raiseExtendedError(unknownPortalErr(name))
		}

		columns, err := c.describeStatementColumns(ctx, &connstate.PreparedStatement{Query: portal.Query})
		if err != nil {
			return c.raiseExtendedError(err)
		}
		if len(columns) == 0 {
			c.writer.Start(wiretypes.ServerNoData)
			return c.writer.End()
		}
		return writeRowDescription(c.writer, columns, portal.ResultFormats)

	default:
		return c.raiseExtendedError(protocolViolationErr(fmt.Sprintf("unknown describe target %q", byte(kind))))
	}
}

func (c *Conn) handleExecute(ctx context.Context) error {
	portalName, err := c.reader.GetString()
	if err != nil {
		return err
	}

	rowLimit, err := c.reader.GetInt32()
	if err != nil {
		return err
	}

	portal, ok := c.state.Portal(portalName)
	if !ok {
		return c.raiseExtendedError(unknownPortalErr(portalName))
	}

	c.state.IncrementQueryCount()
	result, err := c.runStatement(ctx, portal.Query, rowLimit)
	if err != nil {
		return err
	}
	if result.errored {
		c.skipToSync = true
	}
	return nil
}

func (c *Conn) handleClose(ctx context.Context) error {
	kind, err := c.reader.GetPrepareType()
	if err != nil {
		return err
	}

	name, err := c.reader.GetString()
	if err != nil {
		return err
	}

	switch kind {
	case buffer.PrepareStatement:
		c.state.ClosePreparedStatement(name)
	case buffer.PreparePortal:
		c.state.ClosePortal(name)
	}

	c.writer.Start(wiretypes.ServerCloseComplete)
	return c.writer.End()
}

func (c *Conn) writeReady() error {
	c.writer.Start(wiretypes.ServerReady)
	c.writer.AddByte(byte(c.state.TransactionStatus()))
	return c.writer.End()
}

func writeRowDescription(writer *buffer.Writer, columns []query.Column, formats []wiretypes.FormatCode) error {
	writer.Start(wiretypes.ServerRowDescription)
	writer.AddInt16(int16(len(columns)))

	for i, col := range columns {
		writer.AddString(col.Name)
		writer.AddNullTerminate()
		writer.AddInt32(0) // table OID, unknown to a mock
		writer.AddInt16(0) // column attribute number, unknown to a mock
		writer.AddInt32(int32(col.OID))
		writer.AddInt16(col.Width)
		writer.AddInt32(-1) // type modifier, none

		format := col.Format
		if i < len(formats) {
			format = formats[i]
		}
		writer.AddInt16(int16(format))
	}

	return writer.End()
}

func writeDataRow(writer *buffer.Writer, values [][]byte) error {
	writer.Start(wiretypes.ServerDataRow)
	writer.AddInt16(int16(len(values)))

	for _, v := range values {
		if v == nil {
			writer.AddInt32(-1)
			continue
		}
		writer.AddInt32(int32(len(v)))
		writer.AddBytes(v)
	}

	return writer.End()
}

func writeCommandComplete(writer *buffer.Writer, tag string) error {
	writer.Start(wiretypes.ServerCommandComplete)
	writer.AddString(tag)
	writer.AddNullTerminate()
	return writer.End()
}

func writeEmptyQuery(writer *buffer.Writer) error {
	writer.Start(wiretypes.ServerEmptyQuery)
	return writer.End()
}

func writePortalSuspended(writer *buffer.Writer) error {
	writer.Start(wiretypes.ServerPortalSuspended)
	return writer.End()
}

func writeParameterDescription(writer *buffer.Writer, oids []uint32) error {
	writer.Start(wiretypes.ServerParameterDescription)
	writer.AddInt16(int16(len(oids)))
	for _, oid := range oids {
		writer.AddInt32(int32(oid))
	}
	return writer.End()
}
