package connstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pgmock/pgmock/internal/wiretypes"
)

func TestGetParameterDistinguishesAbsentFromEmpty(t *testing.T) {
	s := New(1, 1, time.Now())

	_, ok := s.GetParameter("application_name")
	assert.False(t, ok, "unset parameter must report ok=false")

	s.SetParameter("application_name", "")
	value, ok := s.GetParameter("application_name")
	assert.True(t, ok, "explicitly empty parameter must report ok=true")
	assert.Equal(t, "", value)
}

func TestParametersPreserveInsertionOrder(t *testing.T) {
	s := New(1, 1, time.Now())
	s.SetParameter("b", "2")
	s.SetParameter("a", "1")
	s.SetParameter("b", "2-updated")

	params := s.Parameters()
	assert.Len(t, params, 2)
	assert.Equal(t, "b", params[0].Key)
	assert.Equal(t, "2-updated", params[0].Value)
	assert.Equal(t, "a", params[1].Key)
}

func TestPreparedStatementAndPortalCRUD(t *testing.T) {
	s := New(1, 1, time.Now())

	s.SetPreparedStatement("", &PreparedStatement{Query: "SELECT 1"})
	stmt, ok := s.PreparedStatement("")
	assert.True(t, ok)
	assert.Equal(t, "SELECT 1", stmt.Query)

	s.SetPortal("", &Portal{StatementName: "", Query: "SELECT 1"})
	_, ok = s.Portal("")
	assert.True(t, ok)

	s.ClosePreparedStatement("")
	_, ok = s.PreparedStatement("")
	assert.False(t, ok)
}

func TestClearUnnamedPortalLeavesNamedPortals(t *testing.T) {
	s := New(1, 1, time.Now())
	s.SetPortal("", &Portal{Query: "SELECT 1"})
	s.SetPortal("named", &Portal{Query: "SELECT 2"})

	s.ClearUnnamedPortal()

	_, ok := s.Portal("")
	assert.False(t, ok)

	_, ok = s.Portal("named")
	assert.True(t, ok)
}

func TestSavepointStack(t *testing.T) {
	s := New(1, 1, time.Now())
	s.PushSavepoint("a")
	s.PushSavepoint("b")
	s.PushSavepoint("c")

	assert.True(t, s.FindSavepoint("a"))

	ok := s.PopSavepointsTo("b")
	assert.True(t, ok)
	assert.False(t, s.FindSavepoint("b"))
	assert.True(t, s.FindSavepoint("a"))

	ok = s.PopSavepointsTo("missing")
	assert.False(t, ok)
}

func TestTransactionStatusTransitions(t *testing.T) {
	s := New(1, 1, time.Now())
	assert.Equal(t, wiretypes.TxIdle, s.TransactionStatus())
	assert.False(t, s.InTransaction())

	s.SetTransactionStatus(wiretypes.TxActive)
	assert.True(t, s.InTransaction())

	s.SetTransactionStatus(wiretypes.TxFailed)
	assert.True(t, s.InTransaction())
}

func TestQueryCounter(t *testing.T) {
	s := New(1, 1, time.Now())
	assert.Equal(t, uint64(0), s.QueriesExecuted())

	s.IncrementQueryCount()
	s.IncrementQueryCount()
	assert.Equal(t, uint64(2), s.QueriesExecuted())
}
