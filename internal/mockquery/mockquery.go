// Package mockquery is a small, explicitly demo-only implementation of
// query.Executor used by cmd/pgmockd and by integration tests that want a
// server that answers a handful of recognizable statements without
// needing a real SQL engine behind it. It is not part of the protocol
// core, and any application embedding pgmock is expected to supply its
// own Executor in its place.
package mockquery

import (
	"context"
	"regexp"
	"strings"

	"github.com/lib/pq/oid"

	"github.com/pgmock/pgmock/internal/connstate"
	"github.com/pgmock/pgmock/internal/query"
)

// Executor answers a fixed set of statements: SELECT 1, SHOW <param>,
// SELECT version(), a handful of pg_catalog/information_schema stubs
// queried by driver connection handshakes, EXPLAIN (returning a fixed
// plan), and transaction control. Anything else is accepted and reported
// as a zero-row completion, so a client issuing DDL/DML against pgmock
// gets a well-formed (if inert) response rather than an error.
type Executor struct {
	ServerVersion string
}

var _ query.Executor = Executor{}
var _ query.Describer = Executor{}

var showPattern = regexp.MustCompile(`(?i)^SHOW\s+(\S+)$`)

func (e Executor) Execute(ctx context.Context, q string, state *connstate.ConnState) (<-chan query.ResultEvent, error) {
	events := make(chan query.ResultEvent, 4)

	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	upper := strings.ToUpper(trimmed)

	go func() {
		defer close(events)

		txOp, txName, isTxControl := parseTransactionControl(upper, trimmed)

		switch {
		case isTxControl:
			events <- query.Transaction(txOp, txName)

		case upper == "SELECT 1":
			events <- query.RowDescription([]query.Column{{Name: "?column?", OID: oidInt4, Width: 4}})
			events <- query.DataRow([][]byte{[]byte("1")})
			events <- query.CommandComplete("SELECT 1", 1)

		case upper == "SELECT VERSION()":
			events <- query.RowDescription([]query.Column{{Name: "version", OID: oidText, Width: -1}})
			events <- query.DataRow([][]byte{[]byte(e.serverVersion() + " on mock, compiled by pgmock")})
			events <- query.CommandComplete("SELECT 1", 1)

		case showPattern.MatchString(trimmed):
			e.handleShow(state, trimmed, events)

		case strings.HasPrefix(upper, "EXPLAIN"):
			plan := "Seq Scan on mock_table  (cost=0.00..1.00 rows=1 width=0)"
			events <- query.RowDescription([]query.Column{{Name: "QUERY PLAN", OID: oidText, Width: -1}})
			events <- query.DataRow([][]byte{[]byte(plan)})
			events <- query.CommandComplete("EXPLAIN", 0)

		case isCatalogStub(upper):
			e.handleCatalogStub(upper, events)

		default:
			events <- query.CommandComplete(genericTag(upper), 0)
		}
	}()

	return events, nil
}

func (e Executor) handleShow(state *connstate.ConnState, stmt string, events chan<- query.ResultEvent) {
	m := showPattern.FindStringSubmatch(stmt)
	param := m[1]

	value, ok := state.GetParameter(param)
	if !ok {
		value = ""
	}

	events <- query.RowDescription([]query.Column{{Name: param, OID: oidText, Width: -1}})
	events <- query.DataRow([][]byte{[]byte(value)})
	events <- query.CommandComplete("SHOW", 1)
}

func isCatalogStub(upper string) bool {
	return strings.Contains(upper, "PG_CATALOG.") || strings.Contains(upper, "INFORMATION_SCHEMA.")
}

func (e Executor) handleCatalogStub(upper string, events chan<- query.ResultEvent) {
	switch {
	case strings.Contains(upper, "PG_CATALOG.PG_TYPE"):
		events <- query.RowDescription([]query.Column{{Name: "typname", OID: oidText, Width: -1}, {Name: "oid", OID: oidInt4, Width: 4}})
	case strings.Contains(upper, "PG_CATALOG.PG_NAMESPACE"):
		events <- query.RowDescription([]query.Column{{Name: "nspname", OID: oidText, Width: -1}})
	case strings.Contains(upper, "INFORMATION_SCHEMA.TABLES"):
		events <- query.RowDescription([]query.Column{{Name: "table_name", OID: oidText, Width: -1}})
	default:
		events <- query.RowDescription([]query.Column{{Name: "value", OID: oidText, Width: -1}})
	}
	events <- query.CommandComplete("SELECT 0", 0)
}

// parseTransactionControl recognizes BEGIN/COMMIT/ROLLBACK/SAVEPOINT/
// RELEASE/ROLLBACK TO, independent of what the rest of the Executor does
// with any other statement.
func parseTransactionControl(upper, original string) (query.TransactionOp, string, bool) {
	switch {
	case upper == "BEGIN" || strings.HasPrefix(upper, "BEGIN "):
		return query.TxOpBegin, "", true
	case upper == "COMMIT" || upper == "END":
		return query.TxOpCommit, "", true
	case upper == "ROLLBACK":
		return query.TxOpRollback, "", true
	case strings.HasPrefix(upper, "SAVEPOINT "):
		return query.TxOpSavepoint, strings.TrimSpace(original[len("SAVEPOINT "):]), true
	case strings.HasPrefix(upper, "RELEASE SAVEPOINT "):
		return query.TxOpRelease, strings.TrimSpace(original[len("RELEASE SAVEPOINT "):]), true
	case strings.HasPrefix(upper, "RELEASE "):
		return query.TxOpRelease, strings.TrimSpace(original[len("RELEASE "):]), true
	case strings.HasPrefix(upper, "ROLLBACK TO SAVEPOINT "):
		return query.TxOpRollbackTo, strings.TrimSpace(original[len("ROLLBACK TO SAVEPOINT "):]), true
	case strings.HasPrefix(upper, "ROLLBACK TO "):
		return query.TxOpRollbackTo, strings.TrimSpace(original[len("ROLLBACK TO "):]), true
	default:
		return query.TxOpNone, "", false
	}
}

// genericTag derives a PostgreSQL-style command tag from the statement's
// leading keyword for statements this mock does not otherwise recognize.
func genericTag(upper string) string {
	keyword := strings.Fields(upper)
	if len(keyword) == 0 {
		return ""
	}

	switch keyword[0] {
	case "INSERT":
		return "INSERT 0 0"
	case "UPDATE":
		return "UPDATE 0"
	case "DELETE":
		return "DELETE 0"
	case "SELECT":
		return "SELECT 0"
	default:
		return keyword[0]
	}
}

func (e Executor) serverVersion() string {
	if e.ServerVersion != "" {
		return e.ServerVersion
	}
	return "16.0 (pgmock)"
}

// Describe answers the extended query protocol's Describe message with the
// row shape Execute produces for SELECT 1, SELECT version() and
// SHOW <param>. Every other statement, including EXPLAIN and the catalog
// stubs, is described as returning no columns.
func (e Executor) Describe(ctx context.Context, q string, paramOIDs []uint32) ([]query.Column, []uint32, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q), ";"))
	upper := strings.ToUpper(trimmed)

	switch {
	case upper == "SELECT 1":
		return []query.Column{{Name: "?column?", OID: oidInt4, Width: 4}}, paramOIDs, nil
	case upper == "SELECT VERSION()":
		return []query.Column{{Name: "version", OID: oidText, Width: -1}}, paramOIDs, nil
	case showPattern.MatchString(trimmed):
		m := showPattern.FindStringSubmatch(trimmed)
		return []query.Column{{Name: m[1], OID: oidText, Width: -1}}, paramOIDs, nil
	default:
		return nil, paramOIDs, nil
	}
}

// A handful of well-known builtin type OIDs, matching Postgres' fixed
// pg_type assignments for the scalar types this mock ever emits.
const (
	oidInt4 = uint32(oid.T_int4)
	oidText = uint32(oid.T_text)
)
