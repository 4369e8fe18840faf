// Package session manages live call sessions: a stream of transcript
// fragments scored incrementally while the call is still running, with
// alerts pushed the moment the risk tier worsens.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/arjunrm/scamshield/internal/scoring"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyEnded is returned for operations on a session that has
	// already ended. Ending twice is also this error: end is a barrier,
	// not an idempotent no-op, so the caller learns it raced.
	ErrAlreadyEnded = errors.New("session already ended")
	// ErrAlertNotFound is returned when an alert id is unknown.
	ErrAlertNotFound = errors.New("alert not found")
	// errSessionNotIdle aborts an idle end when the session saw a
	// fragment between the sweep's scan and the lock acquisition.
	errSessionNotIdle = errors.New("session no longer idle")
)

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// EndReason records why a session ended.
type EndReason string

const (
	EndReasonCaller EndReason = "caller_ended"
	EndReasonIdle   EndReason = "idle_timeout"
)

// Session is one monitored call. Worst tracks the highest-scoring
// assessment seen so far and never regresses, even when later
// fragments are benign.
type Session struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"userId,omitempty"`
	PhoneNumber     string                  `json:"phoneNumber"`
	Status          Status                  `json:"status"`
	StartedAt       time.Time               `json:"startedAt"`
	EndedAt         *time.Time              `json:"endedAt,omitempty"`
	EndReason       EndReason               `json:"endReason,omitempty"`
	LastActivityAt  time.Time               `json:"lastActivityAt"`
	FragmentCount   int                     `json:"fragmentCount"`
	Transcript      string                  `json:"transcript,omitempty"`
	AmountMentioned *float64                `json:"amountMentioned,omitempty"`
	Worst           *scoring.RiskAssessment `json:"worst,omitempty"`

	// maxAlertedRank is the tier rank of the last alert raised; a new
	// alert fires only for a strictly higher tier.
	maxAlertedRank int
}

// Clone returns a deep copy safe to hand outside the manager's lock.
func (s *Session) Clone() *Session {
	cp := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	if s.AmountMentioned != nil {
		a := *s.AmountMentioned
		cp.AmountMentioned = &a
	}
	if s.Worst != nil {
		w := *s.Worst
		cp.Worst = &w
	}
	return &cp
}

// Alert is raised when a fragment pushes the session into a tier higher
// than any previously alerted for that session.
type Alert struct {
	ID            string                  `json:"id"`
	SessionID     string                  `json:"sessionId"`
	UserID        string                  `json:"userId,omitempty"`
	Tier          scoring.Tier            `json:"tier"`
	FragmentIndex int                     `json:"fragmentIndex"`
	Assessment    *scoring.RiskAssessment `json:"assessment,omitempty"`
	Acknowledged  bool                    `json:"acknowledged"`
	CreatedAt     time.Time               `json:"createdAt"`
}

// FragmentResult is what a caller gets back for one submitted fragment.
type FragmentResult struct {
	Assessment *scoring.RiskAssessment `json:"assessment"`
	Alert      *Alert                  `json:"alert,omitempty"`
	Worst      *scoring.RiskAssessment `json:"worst"`
}

// Store persists ended sessions and raised alerts. Active sessions
// live only inside the manager; the store is the historical record.
type Store interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error)
	SaveAlert(ctx context.Context, a *Alert) error
	ListAlerts(ctx context.Context, userID string, limit int) ([]*Alert, error)
	AcknowledgeAlert(ctx context.Context, id string) error
}

// Notifier receives alerts as they are raised. Implementations must not
// block; delivery is fire-and-forget from the manager's perspective.
type Notifier interface {
	NotifyAlert(ctx context.Context, a *Alert)
}

// Lifecycle receives session start and end events. End events fire for
// caller-ended and idle-ended sessions alike. Implementations must not
// block.
type Lifecycle interface {
	SessionStarted(s *Session)
	SessionEnded(s *Session)
}
