package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/arjunrm/scamshield/internal/session"
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

	event := &Event{Type: EventAlert, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventAlert, EventScammerMatch},
	}}

	alertEvent := &Event{Type: EventAlert}
	scammerEvent := &Event{Type: EventScammerMatch}
	endedEvent := &Event{Type: EventSessionEnded}

	if !h.shouldSend(client, alertEvent) {
		t.Error("Should receive alert events")
	}
	if !h.shouldSend(client, scammerEvent) {
		t.Error("Should receive scammer_match events")
	}
	if h.shouldSend(client, endedEvent) {
		t.Error("Should NOT receive session_ended events")
	}
}

func TestShouldSend_SessionFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		SessionIDs: []string{"sess_watch"},
	}}

	matching := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"sessionId": "sess_watch", "tier": "high"},
	}
	notMatching := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"sessionId": "sess_other", "tier": "high"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on session id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated sessions")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"usr_a"},
	}}

	matching := &Event{
		Type: EventSessionEnded,
		Data: map[string]interface{}{"userId": "usr_a"},
	}
	notMatching := &Event{
		Type: EventSessionEnded,
		Data: map[string]interface{}{"userId": "usr_b"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on user id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other users")
	}
}

func TestShouldSend_MinTierFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinTier: "high",
	}}

	critical := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"tier": "critical"},
	}
	medium := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"tier": "medium"},
	}
	ended := &Event{
		Type: EventSessionEnded,
		Data: map[string]interface{}{"tier": "medium"},
	}

	if !h.shouldSend(client, critical) {
		t.Error("Should receive critical alert")
	}
	if h.shouldSend(client, medium) {
		t.Error("Should NOT receive medium alert below min tier")
	}
	if !h.shouldSend(client, ended) {
		t.Error("MinTier filter should only apply to alerts")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventAlert}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		SessionIDs: []string{"sess_watch"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventAlert,
		Data: "string data not a map",
	}

	// Session filter skips non-map data (can't extract ids), so event passes through
	if !h.shouldSend(client, event) {
		t.Error("Non-map data should pass through when session filter can't extract ids")
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

	// Broadcast an event
	h.Broadcast(&Event{Type: EventAlert, Timestamp: time.Now()})
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

func TestHub_BroadcastToClient(t *testing.T) {
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

	h.Broadcast(&Event{
		Type:      EventAlert,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"tier": "high"},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_NotifyAlert(t *testing.T) {
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

	h.NotifyAlert(ctx, &session.Alert{
		ID:        "alrt_1",
		SessionID: "sess_1",
		Tier:      "critical",
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive alert event")
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

	// Client only wants scammer matches
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventScammerMatch}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send an alert event (should be filtered out)
	h.Broadcast(&Event{Type: EventAlert, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive alert event")
	default:
		// Good - filtered out
	}

	// Send a scammer match event (should be received)
	h.BroadcastScammerMatch("usr_a", "vp_1", 0.92)

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive scammer_match event")
	}
}
