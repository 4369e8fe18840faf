package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arjunrm/scamshield/internal/session"
)

// noopValidator allows any URL (including loopback) for test servers.
func noopValidator(_ string) error { return nil }

// newTestDispatcher creates a dispatcher that skips SSRF checks for localhost test servers.
func newTestDispatcher(store Store) *Dispatcher {
	d := NewDispatcher(store)
	d.urlValidator = noopValidator
	return d
}

// ---------------------------------------------------------------------------
// MemoryStore tests
// ---------------------------------------------------------------------------

func TestMemoryStore_CRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub := &Subscription{
		ID:        "wh_test1",
		UserID:    "user1",
		URL:       "https://example.com/hook",
		Secret:    "secret123",
		Events:    []EventType{EventAlertRaised},
		Active:    true,
		CreatedAt: time.Now(),
	}

	// Create
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Get
	got, err := store.Get(ctx, "wh_test1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.URL != "https://example.com/hook" {
		t.Errorf("Expected URL, got %s", got.URL)
	}

	// Update
	sub.Active = false
	store.Update(ctx, sub)
	got, _ = store.Get(ctx, "wh_test1")
	if got.Active {
		t.Error("Expected inactive after update")
	}

	// Delete
	store.Delete(ctx, "wh_test1")
	_, err = store.Get(ctx, "wh_test1")
	if err == nil {
		t.Error("Expected error after delete")
	}
}

func TestMemoryStore_GetByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, &Subscription{ID: "wh1", UserID: "usr_a", Events: []EventType{EventAlertRaised}})
	store.Create(ctx, &Subscription{ID: "wh2", UserID: "usr_b", Events: []EventType{EventAlertRaised}})
	store.Create(ctx, &Subscription{ID: "wh3", UserID: "usr_a", Events: []EventType{EventSessionEnded}})

	subs, _ := store.GetByUser(ctx, "usr_a")
	if len(subs) != 2 {
		t.Errorf("Expected 2 subs for usr_a, got %d", len(subs))
	}
}

func TestMemoryStore_GetByEvent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, &Subscription{ID: "wh1", Events: []EventType{EventAlertRaised, EventScammerDetected}})
	store.Create(ctx, &Subscription{ID: "wh2", Events: []EventType{EventSessionEnded}})
	store.Create(ctx, &Subscription{ID: "wh3", Events: []EventType{EventAlertRaised}})

	subs, _ := store.GetByEvent(ctx, EventAlertRaised)
	if len(subs) != 2 {
		t.Errorf("Expected 2 subs for alert.raised, got %d", len(subs))
	}
}

// ---------------------------------------------------------------------------
// Signature tests
// ---------------------------------------------------------------------------

func TestSign(t *testing.T) {
	d := newTestDispatcher(NewMemoryStore())

	payload := []byte(`{"type":"alert.raised","data":{}}`)
	secret := "test_secret_key"

	sig := d.sign(payload, secret)

	// Verify manually
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if sig != expected {
		t.Errorf("Signature mismatch: got %s, want %s", sig, expected)
	}
}

func TestSign_DifferentSecrets(t *testing.T) {
	d := newTestDispatcher(NewMemoryStore())

	payload := []byte(`{"test": true}`)
	sig1 := d.sign(payload, "secret1")
	sig2 := d.sign(payload, "secret2")

	if sig1 == sig2 {
		t.Error("Different secrets should produce different signatures")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"alert.raised"}`)
	secret := "shared_secret"

	d := newTestDispatcher(NewMemoryStore())
	sig := d.sign(payload, secret)

	if !VerifySignature(payload, secret, sig) {
		t.Error("Expected signature to verify")
	}
	if VerifySignature(payload, "wrong_secret", sig) {
		t.Error("Expected verification to fail with wrong secret")
	}
	if VerifySignature([]byte(`tampered`), secret, sig) {
		t.Error("Expected verification to fail for tampered payload")
	}
}

// ---------------------------------------------------------------------------
// Dispatch tests
// ---------------------------------------------------------------------------

func TestDispatch_SendsToSubscribers(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := newTestDispatcher(store)
	event := &Event{
		Type:      EventAlertRaised,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"tier": "high"},
	}

	err := d.Dispatch(ctx, event)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	// Wait for async delivery
	time.Sleep(200 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Expected 1 webhook delivery, got %d", received.Load())
	}
}

func TestDispatch_SkipsInactiveSubscribers(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: false, // Inactive
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("Expected 0 deliveries for inactive sub, got %d", received.Load())
	}
}

func TestDispatch_IncludesSignature(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotSig string
	var gotBody []byte
	secret := "test_webhook_secret" //nolint:gosec // test credential

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-ScamShield-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
		Secret: secret,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{
		Type:      EventAlertRaised,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"tier": "critical"},
	})

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if gotSig == "" {
		t.Fatal("Expected signature header")
	}

	// Verify signature
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(gotBody)
	expected := hex.EncodeToString(h.Sum(nil))

	if gotSig != expected {
		t.Errorf("Signature mismatch: %s != %s", gotSig, expected)
	}
}

func TestDispatch_IncludesEventHeaders(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotEventType string
	var gotTimestamp string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotEventType = r.Header.Get("X-ScamShield-Event")
		gotTimestamp = r.Header.Get("X-ScamShield-Timestamp")
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventSessionEnded},
		Active: true,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventSessionEnded, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if gotEventType != "session.ended" {
		t.Errorf("Expected event type session.ended, got %s", gotEventType)
	}
	if gotTimestamp == "" {
		t.Error("Expected timestamp header")
	}
}

func TestDispatch_PayloadFormat(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{
		Type:      EventAlertRaised,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"sessionId": "sess_abc", "tier": "high"},
	})

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var parsed Event
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("Failed to parse webhook payload: %v", err)
	}
	if parsed.Type != EventAlertRaised {
		t.Errorf("Expected type alert.raised, got %s", parsed.Type)
	}
}

func TestDispatch_ErrorUpdatesSubscription(t *testing.T) {
	store := NewMemoryStore()

	// Server that returns 500
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := NewDispatcherWithRetry(store, RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		MaxFailures: 50,
	})
	d.urlValidator = noopValidator
	d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastError == "" {
		t.Error("Expected lastError to be set after 500 response")
	}
	if sub.ConsecutiveFailures != 1 {
		t.Errorf("Expected 1 consecutive failure, got %d", sub.ConsecutiveFailures)
	}
}

func TestDispatch_DisablesAfterMaxFailures(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := NewDispatcherWithRetry(store, RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		MaxFailures: 1,
	})
	d.urlValidator = noopValidator
	d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	sub, _ := store.Get(ctx, "wh1")
	if sub.Active {
		t.Error("Expected subscription deactivated after hitting failure limit")
	}
}

func TestDispatch_SuccessUpdatesSubscription(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:                  "wh1",
		URL:                 server.URL,
		Events:              []EventType{EventAlertRaised},
		Active:              true,
		ConsecutiveFailures: 3,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastSuccess == nil {
		t.Error("Expected lastSuccess to be set after successful delivery")
	}
	if sub.LastError != "" {
		t.Errorf("Expected no error after success, got %s", sub.LastError)
	}
	if sub.ConsecutiveFailures != 0 {
		t.Errorf("Expected failure counter reset, got %d", sub.ConsecutiveFailures)
	}
}

func TestDispatch_RetriesUntilSuccess(t *testing.T) {
	store := NewMemoryStore()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := NewDispatcherWithRetry(store, RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		MaxFailures: 50,
	})
	d.urlValidator = noopValidator
	d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(300 * time.Millisecond)

	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
	sub, _ := store.Get(ctx, "wh1")
	if sub.LastSuccess == nil {
		t.Error("Expected lastSuccess after eventual success")
	}
}

func TestDispatch_BlocksDisallowedEndpoints(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    "http://127.0.0.1:9/hook",
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	// Default dispatcher keeps the SSRF guard.
	d := NewDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastError == "" {
		t.Error("Expected loopback endpoint to be rejected")
	}
}

// ---------------------------------------------------------------------------
// DispatchToUser tests
// ---------------------------------------------------------------------------

func TestDispatchToUser_FiltersCorrectly(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	// User A has 2 hooks
	store.Create(ctx, &Subscription{ID: "wh1", UserID: "usr_a", URL: server.URL, Events: []EventType{EventAlertRaised}, Active: true})
	store.Create(ctx, &Subscription{ID: "wh2", UserID: "usr_a", URL: server.URL, Events: []EventType{EventSessionEnded}, Active: true})
	// User B has 1 hook
	store.Create(ctx, &Subscription{ID: "wh3", UserID: "usr_b", URL: server.URL, Events: []EventType{EventAlertRaised}, Active: true})

	d := newTestDispatcher(store)
	d.DispatchToUser(ctx, "usr_a", &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Expected 1 delivery (user A, alert.raised only), got %d", received.Load())
	}
}

func TestDispatchToUser_NoMatchingEvents(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "wh1", UserID: "usr_a", URL: server.URL, Events: []EventType{EventSessionEnded}, Active: true})

	d := newTestDispatcher(store)
	d.DispatchToUser(ctx, "usr_a", &Event{Type: EventAlertRaised, Timestamp: time.Now()})

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("Expected 0 deliveries for non-matching event, got %d", received.Load())
	}
}

// ---------------------------------------------------------------------------
// Emitter tests
// ---------------------------------------------------------------------------

func TestEmitter_NotifyAlert(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		UserID: "usr_a",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := newTestDispatcher(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmitter(d, logger)

	e.NotifyAlert(ctx, &session.Alert{
		ID:        "alrt_1",
		SessionID: "sess_1",
		UserID:    "usr_a",
		Tier:      "high",
	})

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var parsed Event
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}
	if parsed.Type != EventAlertRaised {
		t.Errorf("Expected alert.raised, got %s", parsed.Type)
	}
	if parsed.Data["sessionId"] != "sess_1" {
		t.Errorf("Expected sessionId in payload, got %v", parsed.Data["sessionId"])
	}
}

func TestEmitter_NilSafe(t *testing.T) {
	var e *Emitter
	// Must not panic when wiring left the emitter unset.
	e.NotifyAlert(context.Background(), &session.Alert{ID: "alrt_1"})
}

func TestDispatch_BreakerSuppressesDeadEndpoint(t *testing.T) {
	store := NewMemoryStore()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventAlertRaised},
		Active: true,
	})

	d := NewDispatcherWithRetry(store, RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		MaxFailures: 50,
	})
	d.urlValidator = noopValidator

	// Serialize dispatches so each failure is recorded before the next send.
	for i := 0; i < 8; i++ {
		d.Dispatch(ctx, &Event{Type: EventAlertRaised, Timestamp: time.Now()})
		time.Sleep(50 * time.Millisecond)
	}

	if got := hits.Load(); got > 5 {
		t.Errorf("breaker should have opened after 5 failures, endpoint saw %d requests", got)
	}
}
