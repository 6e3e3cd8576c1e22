// Package query defines the boundary between the protocol FSM and
// whatever backs query execution. The FSM never interprets SQL itself; it
// hands the query text (and the connection's state, for transaction
// control statements) to an Executor and streams back whatever
// ResultEvents it produces.
package query

import (
	"context"

	"github.com/pgmock/pgmock/internal/connstate"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// EventKind discriminates the variants of ResultEvent.
type EventKind int

const (
	EventRowDescription EventKind = iota
	EventDataRow
	EventCommandComplete
	EventEmptyQuery
	EventError
	EventTransactionOp
)

// TransactionOp identifies a transaction-control statement. The Executor
// recognizes BEGIN/COMMIT/ROLLBACK/SAVEPOINT/RELEASE/ROLLBACK TO and emits
// the matching TransactionOp event; the protocol FSM then checks its
// legality and applies it to ConnState's transaction status itself.
type TransactionOp int

const (
	TxOpNone TransactionOp = iota
	TxOpBegin
	TxOpCommit
	TxOpRollback
	TxOpSavepoint
	TxOpRelease
	TxOpRollbackTo
)

// Column describes one field of a RowDescription.
type Column struct {
	Name   string
	OID    uint32
	Width  int16
	Format wiretypes.FormatCode
}

// ResultEvent is one unit of an Executor's streamed response to a query.
// Only the fields relevant to Kind are populated.
type ResultEvent struct {
	Kind EventKind

	Columns []Column // EventRowDescription

	Values [][]byte // EventDataRow, column-ordered, nil entry == SQL NULL

	Tag      string // EventCommandComplete, e.g. "SELECT 3"
	RowCount int64  // EventCommandComplete

	Err error // EventError

	TransactionOp   TransactionOp // EventTransactionOp
	SavepointName   string        // EventTransactionOp (SAVEPOINT/RELEASE/ROLLBACK TO)
}

// Executor executes one query string and streams its result as a sequence
// of ResultEvents over the returned channel, which is always closed by the
// Executor when done (whether or not an error occurred along the way).
// Execute itself returning a non-nil error means the query could not even
// be started; mid-execution failures are instead delivered as an
// EventError on the channel.
type Executor interface {
	Execute(ctx context.Context, query string, state *connstate.ConnState) (<-chan ResultEvent, error)
}

// Describer is an optional capability an Executor may implement to answer
// the extended query protocol's Describe message without running the
// query: the result columns a statement would produce, and the parameter
// type OIDs it expects. An Executor that does not implement Describer
// causes Describe to report NoData for every statement, which is wire
// valid but less useful to clients relying on upfront column metadata.
type Describer interface {
	Describe(ctx context.Context, query string, paramOIDs []uint32) (columns []Column, resolvedParamOIDs []uint32, err error)
}

// RowDescription constructs a RowDescription event.
func RowDescription(columns []Column) ResultEvent {
	return ResultEvent{Kind: EventRowDescription, Columns: columns}
}

// DataRow constructs a DataRow event.
func DataRow(values [][]byte) ResultEvent {
	return ResultEvent{Kind: EventDataRow, Values: values}
}

// CommandComplete constructs a CommandComplete event.
func CommandComplete(tag string, rowCount int64) ResultEvent {
	return ResultEvent{Kind: EventCommandComplete, Tag: tag, RowCount: rowCount}
}

// EmptyQuery constructs an EmptyQueryResponse event, sent when the query
// string contains no statements at all.
func EmptyQuery() ResultEvent {
	return ResultEvent{Kind: EventEmptyQuery}
}

// Error constructs an Error event.
func Error(err error) ResultEvent {
	return ResultEvent{Kind: EventError, Err: err}
}

// Transaction constructs a TransactionOp event.
func Transaction(op TransactionOp, savepointName string) ResultEvent {
	return ResultEvent{Kind: EventTransactionOp, TransactionOp: op, SavepointName: savepointName}
}
