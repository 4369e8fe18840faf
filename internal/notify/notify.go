// Package notify delivers scam alerts to external services.
//
// Companion apps and carrier integrations can register webhook URLs to
// receive notifications about:
// - Alerts raised during live calls
// - Call sessions ending
// - Known-scammer voice matches
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/arjunrm/scamshield/internal/circuitbreaker"
	"github.com/arjunrm/scamshield/internal/metrics"
	"github.com/arjunrm/scamshield/internal/security"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventAlertRaised     EventType = "alert.raised"
	EventSessionStarted  EventType = "session.started"
	EventSessionEnded    EventType = "session.ended"
	EventScammerDetected EventType = "scammer.detected"
)

// Event represents a webhook event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a webhook subscription
type Subscription struct {
	ID                  string      `json:"id"`
	UserID              string      `json:"userId"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // Used for HMAC signing
	Events              []EventType `json:"events"`
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"createdAt"`
	LastSuccess         *time.Time  `json:"lastSuccess,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"-"`
}

// Store persists webhook subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByUser(ctx context.Context, userID string) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// RetryConfig controls delivery retries and automatic disabling of
// endpoints that keep failing.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxFailures int // consecutive failures before the subscription is deactivated
}

// DefaultRetryConfig is used by NewDispatcher.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	MaxFailures: 50,
}

// Dispatcher sends webhook events. A per-subscription circuit breaker
// suppresses deliveries to endpoints that keep failing, so one dead
// endpoint cannot soak up dispatch goroutines.
type Dispatcher struct {
	store          Store
	client         *http.Client
	retry          RetryConfig
	urlValidator   func(string) error
	fallbackSecret string
	breaker        *circuitbreaker.Breaker
}

// NewDispatcher creates a new webhook dispatcher with default retries
func NewDispatcher(store Store) *Dispatcher {
	return NewDispatcherWithRetry(store, DefaultRetryConfig)
}

// NewDispatcherWithRetry creates a dispatcher with explicit retry behavior
func NewDispatcherWithRetry(store Store, retry RetryConfig) *Dispatcher {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:        retry,
		urlValidator: security.ValidateEndpointURL,
		breaker:      circuitbreaker.New(5, 30*time.Second),
	}
}

// WithFallbackSecret sets a signing secret used for subscriptions that
// have none of their own.
func (d *Dispatcher) WithFallbackSecret(secret string) *Dispatcher {
	d.fallbackSecret = secret
	return d
}

// Dispatch sends an event to all relevant subscribers
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Send async to avoid blocking
		go d.send(context.WithoutCancel(ctx), sub, event)
	}

	return nil
}

// DispatchToUser sends an event to a specific user's webhooks
func (d *Dispatcher) DispatchToUser(ctx context.Context, userID string, event *Event) error {
	subs, err := d.store.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Check if subscribed to this event type
		for _, et := range sub.Events {
			if et == event.Type {
				go d.send(context.WithoutCancel(ctx), sub, event)
				break
			}
		}
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if d.urlValidator != nil {
		if err := d.urlValidator(sub.URL); err != nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues("blocked").Inc()
			d.updateError(ctx, sub, fmt.Sprintf("endpoint rejected: %v", err))
			return
		}
	}

	if !d.breaker.Allow(sub.ID) {
		metrics.WebhookDeliveriesTotal.WithLabelValues("suppressed").Inc()
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	delay := d.retry.BaseDelay
	var lastErr string
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				d.updateError(ctx, sub, "delivery canceled")
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > d.retry.MaxDelay {
				delay = d.retry.MaxDelay
			}
		}

		ok, errMsg := d.attempt(ctx, sub, event, payload)
		if ok {
			metrics.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
			d.breaker.RecordSuccess(sub.ID)
			d.updateSuccess(ctx, sub)
			return
		}
		lastErr = errMsg
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	d.breaker.RecordFailure(sub.ID)
	d.updateError(ctx, sub, lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, sub *Subscription, event *Event, payload []byte) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		return false, "failed to create request"
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ScamShield-Event", string(event.Type))
	req.Header.Set("X-ScamShield-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

	// Sign the payload if a secret is available
	secret := sub.Secret
	if secret == "" {
		secret = d.fallbackSecret
	}
	if secret != "" {
		req.Header.Set("X-ScamShield-Signature", d.sign(payload, secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("status %d", resp.StatusCode)
}

func (d *Dispatcher) sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.ConsecutiveFailures = 0
	d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	sub.ConsecutiveFailures++
	if d.retry.MaxFailures > 0 && sub.ConsecutiveFailures >= d.retry.MaxFailures {
		sub.Active = false
	}
	d.store.Update(ctx, sub)
}

// VerifySignature checks a received webhook signature. Exposed for
// subscriber-side verification.
func VerifySignature(payload []byte, secret, signature string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MemoryStore is an in-memory implementation for testing
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]*Subscription),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("subscription not found")
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		for _, et := range sub.Events {
			if et == eventType {
				result = append(result, sub)
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
