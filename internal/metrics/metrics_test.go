package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func getGaugeValue(g interface{ Write(*dto.Metric) error }) float64 {
	m := &dto.Metric{}
	g.Write(m) //nolint:errcheck
	return m.GetGauge().GetValue()
}

func getCounterValue(c interface{ Write(*dto.Metric) error }) float64 {
	m := &dto.Metric{}
	c.Write(m) //nolint:errcheck
	return m.GetCounter().GetValue()
}

func TestSetConnectionCounts(t *testing.T) {
	c := New()

	c.SetConnectionCounts(5, 2)
	if v := getGaugeValue(c.connectionsActive); v != 5 {
		t.Errorf("expected active=5, got %v", v)
	}
	if v := getGaugeValue(c.connectionsIdle); v != 2 {
		t.Errorf("expected idle=2, got %v", v)
	}

	c.SetConnectionCounts(1, 0)
	if v := getGaugeValue(c.connectionsActive); v != 1 {
		t.Errorf("expected a second call to replace rather than add: got %v", v)
	}
}

func TestConnectionAcceptedAndRejected(t *testing.T) {
	c := New()

	c.ConnectionAccepted()
	c.ConnectionAccepted()
	if v := getCounterValue(c.connectionsAccepted); v != 2 {
		t.Errorf("expected accepted=2, got %v", v)
	}

	c.ConnectionRejected("max_connections")
	c.ConnectionRejected("max_connections")
	c.ConnectionRejected("shutting_down")
	if v := getCounterValue(c.connectionsRejected.WithLabelValues("max_connections")); v != 2 {
		t.Errorf("expected max_connections rejections=2, got %v", v)
	}
	if v := getCounterValue(c.connectionsRejected.WithLabelValues("shutting_down")); v != 1 {
		t.Errorf("expected shutting_down rejections=1, got %v", v)
	}
}

func TestQueryExecuted(t *testing.T) {
	c := New()

	for i := 0; i < 3; i++ {
		c.QueryExecuted()
	}

	if v := getCounterValue(c.queriesExecuted); v != 3 {
		t.Errorf("expected queries executed=3, got %v", v)
	}
}

func TestAuthFailure(t *testing.T) {
	c := New()

	c.AuthFailure("scram-sha-256")
	c.AuthFailure("scram-sha-256")
	c.AuthFailure("trust")

	if v := getCounterValue(c.authFailures.WithLabelValues("scram-sha-256")); v != 2 {
		t.Errorf("expected scram-sha-256 failures=2, got %v", v)
	}
	if v := getCounterValue(c.authFailures.WithLabelValues("trust")); v != 1 {
		t.Errorf("expected trust failures=1, got %v", v)
	}
}

func TestSCRAMExchangeAndShutdownDrainObserve(t *testing.T) {
	c := New()

	c.SCRAMExchange(10 * time.Millisecond)
	c.ShutdownDrain(200 * time.Millisecond)

	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var sawSCRAM, sawDrain bool
	for _, f := range families {
		switch f.GetName() {
		case "pgmock_scram_exchange_duration_seconds":
			sawSCRAM = true
			if f.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("expected 1 scram exchange sample")
			}
		case "pgmock_shutdown_drain_duration_seconds":
			sawDrain = true
			if f.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("expected 1 shutdown drain sample")
			}
		}
	}
	if !sawSCRAM {
		t.Error("scram exchange metric not found")
	}
	if !sawDrain {
		t.Error("shutdown drain metric not found")
	}
}

func TestIdleReaperEviction(t *testing.T) {
	c := New()

	c.IdleReaperEviction()
	c.IdleReaperEviction()

	if v := getCounterValue(c.idleReaperEvictions); v != 2 {
		t.Errorf("expected evictions=2, got %v", v)
	}
}

func TestNewDoesNotPanicOnMultipleCalls(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("New() panicked on repeated calls: %v", r)
		}
	}()

	c1 := New()
	c2 := New()

	c1.ConnectionAccepted()
	c2.ConnectionAccepted()
	c2.ConnectionAccepted()

	if v := getCounterValue(c1.connectionsAccepted); v != 1 {
		t.Errorf("c1 expected accepted=1, got %v", v)
	}
	if v := getCounterValue(c2.connectionsAccepted); v != 2 {
		t.Errorf("c2 expected accepted=2, got %v", v)
	}
}
