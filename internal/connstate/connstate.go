// Package connstate tracks everything the protocol FSM needs to remember
// about a single client connection across the lifetime of a session:
// negotiated parameters, the current transaction/savepoint stack, prepared
// statements and portals, and the in-progress SCRAM exchange (if any).
//
// A ConnState is owned by exactly one connection goroutine; it is not safe
// for concurrent use from multiple goroutines (mirroring the one-fiber-per
// connection model of the session in panoplyio/pgsrv).
package connstate

import (
	"time"

	"github.com/pgmock/pgmock/internal/scram"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// PreparedStatement is a named (or unnamed, name == "") statement produced
// by a Parse message.
type PreparedStatement struct {
	Query     string
	ParamOIDs []uint32
}

// Portal is a named (or unnamed) bound statement produced by a Bind
// message, ready for Execute.
type Portal struct {
	StatementName string
	Query         string
	ParamFormats  []wiretypes.FormatCode
	ParamValues   [][]byte
	ResultFormats []wiretypes.FormatCode
}

// Savepoint is one entry of the nested-transaction stack established by
// SAVEPOINT and unwound by RELEASE/ROLLBACK TO.
type Savepoint struct {
	Name string
}

// ConnState is the full mutable state of a single client connection.
type ConnState struct {
	authenticated bool

	protocolVersion wiretypes.Version
	backendPID      int32
	backendSecret   int32

	parameters map[string]string
	paramOrder []string

	transactionStatus wiretypes.TransactionStatus
	savepoints        []Savepoint

	preparedStatements map[string]*PreparedStatement
	portals            map[string]*Portal

	scram *scram.Server

	connectedAt    time.Time
	lastActivityAt time.Time
	queriesExecuted uint64
}

// New constructs a ConnState for a freshly accepted connection.
func New(backendPID, backendSecret int32, now time.Time) *ConnState {
	return &ConnState{
		parameters:         make(map[string]string),
		transactionStatus:  wiretypes.TxIdle,
		preparedStatements: make(map[string]*PreparedStatement),
		portals:            make(map[string]*Portal),
		backendPID:         backendPID,
		backendSecret:      backendSecret,
		connectedAt:        now,
		lastActivityAt:     now,
	}
}

// BackendPID returns the cancellation key pid assigned at connection time.
func (s *ConnState) BackendPID() int32 { return s.backendPID }

// BackendSecret returns the cancellation key secret assigned at connection time.
func (s *ConnState) BackendSecret() int32 { return s.backendSecret }

// Authenticated reports whether the connection has completed authentication.
func (s *ConnState) Authenticated() bool { return s.authenticated }

// MarkAuthenticated transitions the connection to the authenticated state.
func (s *ConnState) MarkAuthenticated() { s.authenticated = true }

// ProtocolVersion returns the negotiated startup protocol version.
func (s *ConnState) ProtocolVersion() wiretypes.Version { return s.protocolVersion }

// SetProtocolVersion records the negotiated startup protocol version.
func (s *ConnState) SetProtocolVersion(v wiretypes.Version) { s.protocolVersion = v }

// SCRAM returns the in-progress SCRAM exchange, or nil if none has started.
func (s *ConnState) SCRAM() *scram.Server { return s.scram }

// SetSCRAM records the in-progress SCRAM exchange.
func (s *ConnState) SetSCRAM(server *scram.Server) { s.scram = server }

// Touch records activity at t, used by the idle reaper.
func (s *ConnState) Touch(t time.Time) { s.lastActivityAt = t }

// LastActivity returns the timestamp of the most recent Touch call.
func (s *ConnState) LastActivity() time.Time { return s.lastActivityAt }

// ConnectedAt returns when the connection was accepted.
func (s *ConnState) ConnectedAt() time.Time { return s.connectedAt }

// GetParameter returns the value of key and whether it is present at all.
// A parameter that was set to the empty string is present (ok == true);
// only a key that was never set returns ok == false.
func (s *ConnState) GetParameter(key string) (value string, ok bool) {
	value, ok = s.parameters[key]
	return value, ok
}

// SetParameter records key=value, appending key to the iteration order the
// first time it is set.
func (s *ConnState) SetParameter(key, value string) {
	if _, exists := s.parameters[key]; !exists {
		s.paramOrder = append(s.paramOrder, key)
	}
	s.parameters[key] = value
}

// Parameters returns the connection parameters in the order they were
// first set.
func (s *ConnState) Parameters() []struct{ Key, Value string } {
	out := make([]struct{ Key, Value string }, 0, len(s.paramOrder))
	for _, key := range s.paramOrder {
		out = append(out, struct{ Key, Value string }{key, s.parameters[key]})
	}
	return out
}

// TransactionStatus returns the current transaction status byte reported
// in ReadyForQuery.
func (s *ConnState) TransactionStatus() wiretypes.TransactionStatus {
	return s.transactionStatus
}

// SetTransactionStatus updates the current transaction status byte.
func (s *ConnState) SetTransactionStatus(status wiretypes.TransactionStatus) {
	s.transactionStatus = status
}

// InTransaction reports whether a transaction block is open (active or
// failed).
func (s *ConnState) InTransaction() bool {
	return s.transactionStatus == wiretypes.TxActive || s.transactionStatus == wiretypes.TxFailed
}

// PushSavepoint adds name to the top of the savepoint stack.
func (s *ConnState) PushSavepoint(name string) {
	s.savepoints = append(s.savepoints, Savepoint{Name: name})
}

// FindSavepoint reports whether name exists anywhere on the stack.
func (s *ConnState) FindSavepoint(name string) bool {
	for _, sp := range s.savepoints {
		if sp.Name == name {
			return true
		}
	}
	return false
}

// PopSavepointsTo unwinds the stack down to and including the most recent
// occurrence of name, used by ROLLBACK TO SAVEPOINT / RELEASE SAVEPOINT.
// It reports whether name was found.
func (s *ConnState) PopSavepointsTo(name string) bool {
	for i := len(s.savepoints) - 1; i >= 0; i-- {
		if s.savepoints[i].Name == name {
			s.savepoints = s.savepoints[:i]
			return true
		}
	}
	return false
}

// ClearSavepoints empties the savepoint stack, called on COMMIT/ROLLBACK of
// the enclosing transaction.
func (s *ConnState) ClearSavepoints() {
	s.savepoints = s.savepoints[:0]
}

// SetPreparedStatement stores stmt under name ("" is the unnamed slot),
// replacing any previous statement with the same name.
func (s *ConnState) SetPreparedStatement(name string, stmt *PreparedStatement) {
	s.preparedStatements[name] = stmt
}

// PreparedStatement looks up a prepared statement by name.
func (s *ConnState) PreparedStatement(name string) (*PreparedStatement, bool) {
	stmt, ok := s.preparedStatements[name]
	return stmt, ok
}

// ClosePreparedStatement removes a prepared statement by name.
func (s *ConnState) ClosePreparedStatement(name string) {
	delete(s.preparedStatements, name)
}

// SetPortal stores portal under name ("" is the unnamed slot), replacing
// any previous portal with the same name.
func (s *ConnState) SetPortal(name string, portal *Portal) {
	s.portals[name] = portal
}

// Portal looks up a bound portal by name.
func (s *ConnState) Portal(name string) (*Portal, bool) {
	portal, ok := s.portals[name]
	return portal, ok
}

// ClosePortal removes a portal by name.
func (s *ConnState) ClosePortal(name string) {
	delete(s.portals, name)
}

// ClearUnnamedPortal drops the unnamed portal, as required at the start of
// every Sync per the extended query protocol.
func (s *ConnState) ClearUnnamedPortal() {
	delete(s.portals, "")
}

// IncrementQueryCount records that one more query has been executed.
func (s *ConnState) IncrementQueryCount() {
	s.queriesExecuted++
}

// QueriesExecuted returns the number of queries executed on this
// connection so far.
func (s *ConnState) QueriesExecuted() uint64 {
	return s.queriesExecuted
}
