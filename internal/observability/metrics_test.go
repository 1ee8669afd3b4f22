package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordInteraction("ticket_menu", OutcomeOK)
	m.RecordInteraction("ticket_menu", OutcomeOK)
	m.RecordInteraction("close_ticket", OutcomeTimeout)
	m.RecordRequest("/tickets", "GET", 200, 3*time.Millisecond)
	m.RecordError("/tickets", "GET", "UNAUTHORIZED")

	snap := m.Snapshot()
	if got := snap.Interactions["ticket_menu|ok"]; got != 2 {
		t.Fatalf("expected 2 ticket_menu ok, got %d", got)
	}
	if got := snap.Interactions["close_ticket|timeout"]; got != 1 {
		t.Fatalf("expected 1 close timeout, got %d", got)
	}
	if got := snap.Requests["/tickets|GET|200"]; got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
	if got := snap.RequestMS["/tickets|GET|200"]; got != 3 {
		t.Fatalf("expected 3ms, got %d", got)
	}
	if got := snap.Errors["/tickets|GET|UNAUTHORIZED"]; got != 1 {
		t.Fatalf("expected 1 error, got %d", got)
	}

	m.RecordInteraction("ticket_menu", OutcomeOK)
	if snap.Interactions["ticket_menu|ok"] != 2 {
		t.Fatal("snapshot must not change after later records")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInteraction("setup", OutcomeOK)
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	if snap := m.Snapshot(); snap.Interactions != nil {
		t.Fatal("expected empty snapshot")
	}
}
