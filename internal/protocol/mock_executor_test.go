package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgmock/pgmock/internal/connstate"
	"github.com/pgmock/pgmock/internal/query"
	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wirecodes"
)

// testExecutor is a minimal query.Executor (and query.Describer) used to
// drive the protocol state machine in tests without any real SQL engine
// behind it. It recognizes transaction control statements, "SELECT 1",
// "SELECT many" (three rows), "SELECT fail" (always errors), and treats
// anything else as a no-row statement.
type testExecutor struct{}

var _ query.Executor = testExecutor{}
var _ query.Describer = testExecutor{}

func (testExecutor) Execute(ctx context.Context, q string, state *connstate.ConnState) (<-chan query.ResultEvent, error) {
	events := make(chan query.ResultEvent, 4)

	trimmed := strings.TrimSpace(q)
	upper := strings.ToUpper(trimmed)

	go func() {
		defer close(events)

		switch {
		case upper == "BEGIN":
			events <- query.Transaction(query.TxOpBegin, "")
		case upper == "COMMIT":
			events <- query.Transaction(query.TxOpCommit, "")
		case upper == "ROLLBACK":
			events <- query.Transaction(query.TxOpRollback, "")
		case strings.HasPrefix(upper, "SAVEPOINT "):
			name := strings.TrimSpace(trimmed[len("SAVEPOINT "):])
			events <- query.Transaction(query.TxOpSavepoint, name)
		case strings.HasPrefix(upper, "RELEASE "):
			name := strings.TrimSpace(trimmed[len("RELEASE "):])
			events <- query.Transaction(query.TxOpRelease, name)
		case strings.HasPrefix(upper, "ROLLBACK TO "):
			name := strings.TrimSpace(trimmed[len("ROLLBACK TO "):])
			events <- query.Transaction(query.TxOpRollbackTo, name)
		case upper == "SELECT 1":
			events <- query.RowDescription([]query.Column{{Name: "?column?", OID: 23, Width: 4}})
			events <- query.DataRow([][]byte{[]byte("1")})
			events <- query.CommandComplete("SELECT 1", 1)
		case upper == "SELECT MANY":
			events <- query.RowDescription([]query.Column{{Name: "n", OID: 23, Width: 4}})
			for i := 1; i <= 3; i++ {
				events <- query.DataRow([][]byte{[]byte(fmt.Sprintf("%d", i))})
			}
			events <- query.CommandComplete("SELECT 3", 3)
		case upper == "SELECT FAIL":
			events <- query.Error(wireerr.WithCode(fmt.Errorf("deliberate failure"), wirecodes.Internal))
		default:
			events <- query.CommandComplete("SELECT 0", 0)
		}
	}()

	return events, nil
}

func (testExecutor) Describe(ctx context.Context, q string, paramOIDs []uint32) ([]query.Column, []uint32, error) {
	if strings.ToUpper(strings.TrimSpace(q)) == "SELECT 1" {
		return []query.Column{{Name: "?column?", OID: 23, Width: 4}}, paramOIDs, nil
	}
	return nil, paramOIDs, nil
}
