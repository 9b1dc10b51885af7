package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/copysentry/internal/alerts"
	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventVisit, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventAlert},
	}}

	alertEvent := &Event{Type: EventAlert}
	visitEvent := &Event{Type: EventVisit}

	if !h.shouldSend(client, alertEvent) {
		t.Error("Should receive alert events")
	}
	if h.shouldSend(client, visitEvent) {
		t.Error("Should NOT receive visit events")
	}
}

func TestShouldSend_StoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		StoreIDs: []string{"store-1"},
	}}

	matching := &Event{Type: EventVisit, StoreID: "store-1"}
	notMatching := &Event{Type: EventVisit, StoreID: "store-2"}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on store ID")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated stores")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinScore: 40,
	}}

	high := &Event{Type: EventVisit, Score: 65}
	exact := &Event{Type: EventVisit, Score: 40}
	low := &Event{Type: EventVisit, Score: 15}

	if !h.shouldSend(client, high) {
		t.Error("Should receive high-score event")
	}
	if !h.shouldSend(client, exact) {
		t.Error("Should receive event exactly at the floor")
	}
	if h.shouldSend(client, low) {
		t.Error("Should NOT receive low-score event")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventVisit}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{Type: EventVisit, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_VisitRecorded(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.VisitRecorded(&session.VisitEvent{
		ID:        "visit_abc",
		StoreID:   "store-1",
		VisitorID: "vis-1",
		Path:      "/products",
		Risk:      risk.Analysis{Score: 65, Level: risk.LevelCritical},
	})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to decode broadcast: %v", err)
		}
		if event.Type != EventVisit {
			t.Errorf("Expected visit event, got %q", event.Type)
		}
		if event.StoreID != "store-1" {
			t.Errorf("Expected store-1, got %q", event.StoreID)
		}
		if event.Score != 65 {
			t.Errorf("Expected score 65, got %d", event.Score)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for visit broadcast")
	}
}

func TestHub_AlertCreated(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventAlert}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.AlertCreated(&alerts.Alert{
		ID:        "alert_xyz",
		StoreID:   "store-1",
		VisitorID: "vis-1",
		Score:     80,
		Level:     risk.LevelCritical,
		Status:    alerts.StatusNew,
	})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to decode broadcast: %v", err)
		}
		if event.Type != EventAlert {
			t.Errorf("Expected alert event, got %q", event.Type)
		}
		if event.Score != 80 {
			t.Errorf("Expected score 80, got %d", event.Score)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for alert broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants alerts
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventAlert}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a visit event (should be filtered out)
	h.Broadcast(&Event{Type: EventVisit, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive visit event")
	default:
		// Good - filtered out
	}

	// Send an alert event (should be received)
	h.Broadcast(&Event{Type: EventAlert, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive alert event")
	}
}
