package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arjunrm/scamshield/internal/idgen"
	"github.com/arjunrm/scamshield/internal/session"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scamshield",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scamshield",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events across subsystems.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

var _ session.Notifier = (*Emitter)(nil)

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(userID string, eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if userID == "" {
		// Anonymous activity goes to every subscriber of the event type.
		err = e.d.Dispatch(ctx, event)
	} else {
		err = e.d.DispatchToUser(ctx, userID, event)
	}
	if err != nil {
		webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("webhook emit failed", "event", eventType, "user", userID, "error", err)
	}
}

// NotifyAlert emits an alert.raised event for an in-call alert.
func (e *Emitter) NotifyAlert(_ context.Context, a *session.Alert) {
	data := map[string]interface{}{
		"alertId":       a.ID,
		"sessionId":     a.SessionID,
		"tier":          a.Tier,
		"fragmentIndex": a.FragmentIndex,
	}
	if a.Assessment != nil {
		data["score"] = a.Assessment.RawScore
		data["scamCategory"] = a.Assessment.ScamCategory
		data["recommendation"] = a.Assessment.Recommendation
	}
	e.emit(a.UserID, EventAlertRaised, data)
}

// EmitSessionStarted emits a session.started event.
func (e *Emitter) EmitSessionStarted(userID, sessionID, phoneNumber string) {
	e.emit(userID, EventSessionStarted, map[string]interface{}{
		"sessionId":   sessionID,
		"phoneNumber": phoneNumber,
	})
}

// EmitSessionEnded emits a session.ended event with the final verdict.
func (e *Emitter) EmitSessionEnded(userID string, s *session.Session) {
	data := map[string]interface{}{
		"sessionId":   s.ID,
		"phoneNumber": s.PhoneNumber,
		"endReason":   s.EndReason,
		"fragments":   s.FragmentCount,
	}
	if s.Worst != nil {
		data["tier"] = s.Worst.Tier
		data["score"] = s.Worst.RawScore
		data["scamCategory"] = s.Worst.ScamCategory
	}
	e.emit(userID, EventSessionEnded, data)
}

// EmitScammerDetected emits a scammer.detected event after a voiceprint
// matched a flagged fingerprint.
func (e *Emitter) EmitScammerDetected(userID, fingerprintID string, similarity float64) {
	e.emit(userID, EventScammerDetected, map[string]interface{}{
		"fingerprintId": fingerprintID,
		"similarity":    similarity,
	})
}
