package protocol

import (
	"errors"
	"fmt"

	"github.com/pgmock/pgmock/internal/connstate"
	"github.com/pgmock/pgmock/internal/query"
	"github.com/pgmock/pgmock/internal/wirecodes"
	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// applyTransactionOp applies a transaction-control statement recognized by
// the executor to the connection's state, enforcing the SQLSTATE rules
// the executor itself has no business knowing about. It returns the
// CommandComplete tag for the operation on success.
func applyTransactionOp(state *connstate.ConnState, op query.TransactionOp, savepointName string) (tag string, err error) {
	switch op {
	case query.TxOpBegin:
		if state.InTransaction() {
			return "", activeTransactionErr()
		}
		state.SetTransactionStatus(wiretypes.TxActive)
		return "BEGIN", nil

	case query.TxOpCommit:
		if !state.InTransaction() {
			return "", noActiveTransactionErr()
		}
		state.SetTransactionStatus(wiretypes.TxIdle)
		state.ClearSavepoints()
		return "COMMIT", nil

	case query.TxOpRollback:
		if !state.InTransaction() {
			return "", noActiveTransactionErr()
		}
		state.SetTransactionStatus(wiretypes.TxIdle)
		state.ClearSavepoints()
		return "ROLLBACK", nil

	case query.TxOpSavepoint:
		if !state.InTransaction() {
			return "", noActiveTransactionErr()
		}
		state.PopSavepointsTo(savepointName) // reusing the name is allowed; no-op if absent
		state.PushSavepoint(savepointName)
		return "SAVEPOINT", nil

	case query.TxOpRollbackTo:
		if !state.InTransaction() {
			return "", noActiveTransactionErr()
		}
		if !state.PopSavepointsTo(savepointName) {
			return "", invalidSavepointErr(savepointName)
		}
		state.PushSavepoint(savepointName) // ROLLBACK TO retains the named savepoint
		state.SetTransactionStatus(wiretypes.TxActive)
		return "ROLLBACK", nil

	case query.TxOpRelease:
		if !state.InTransaction() {
			return "", noActiveTransactionErr()
		}
		if !state.PopSavepointsTo(savepointName) {
			return "", invalidSavepointErr(savepointName)
		}
		return "RELEASE", nil

	default:
		return "", nil
	}
}

func activeTransactionErr() error {
	return wireerr.WithSeverity(
		wireerr.WithCode(errors.New("there is already a transaction in progress"), wirecodes.ActiveSQLTransaction),
		wireerr.LevelError,
	)
}

func noActiveTransactionErr() error {
	return wireerr.WithSeverity(
		wireerr.WithCode(errors.New("there is no transaction in progress"), wirecodes.NoActiveSQLTransaction),
		wireerr.LevelError,
	)
}

func invalidSavepointErr(name string) error {
	return wireerr.WithSeverity(
		wireerr.WithCode(fmt.Errorf("no such savepoint %q", name), wirecodes.InvalidSavepointSpecification),
		wireerr.LevelError,
	)
}

func inFailedTransactionErr() error {
	return wireerr.WithSeverity(
		wireerr.WithCode(errors.New("current transaction is aborted, commands ignored until end of transaction block"), wirecodes.InFailedSQLTransaction),
		wireerr.LevelError,
	)
}
