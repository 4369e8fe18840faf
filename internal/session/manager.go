package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arjunrm/scamshield/internal/idgen"
	"github.com/arjunrm/scamshield/internal/logging"
	"github.com/arjunrm/scamshield/internal/metrics"
	"github.com/arjunrm/scamshield/internal/scoring"
	"github.com/arjunrm/scamshield/internal/signal"
	"github.com/arjunrm/scamshield/internal/syncutil"
	"github.com/arjunrm/scamshield/internal/traces"
)

// DefaultIdleTimeout ends a session that has seen no fragments for this
// long; abandoned calls must not pin memory forever.
const DefaultIdleTimeout = 120 * time.Second

// Manager owns the set of active call sessions. All mutations of one
// session serialize on a per-session lock, so fragments are scored in
// arrival order and End acts as a barrier behind in-flight fragments.
type Manager struct {
	scorer      *scoring.Service
	store       Store
	notifier    Notifier
	lifecycle   Lifecycle
	locks       *syncutil.ContextShardedMutex
	live        sync.Map // map[string]*Session, active only
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a session manager on top of the scoring service.
func NewManager(scorer *scoring.Service, store Store) *Manager {
	return &Manager{
		scorer:      scorer,
		store:       store,
		locks:       syncutil.NewContextShardedMutex(),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
	}
}

// WithNotifier sets the alert sink.
func (m *Manager) WithNotifier(n Notifier) *Manager {
	m.notifier = n
	return m
}

// WithLifecycle sets the sink for session start and end events.
func (m *Manager) WithLifecycle(l Lifecycle) *Manager {
	m.lifecycle = l
	return m
}

// WithIdleTimeout overrides the idle auto-end window.
func (m *Manager) WithIdleTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.idleTimeout = d
	}
	return m
}

// Start opens a new active session for a call from phoneNumber.
func (m *Manager) Start(ctx context.Context, userID, phoneNumber string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:             idgen.WithPrefix("sess_"),
		UserID:         userID,
		PhoneNumber:    phoneNumber,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.live.Store(s.ID, s)
	metrics.ActiveCallSessions.Inc()
	logging.L(ctx).Info("session started", "session_id", s.ID, "phone", phoneNumber)
	if m.lifecycle != nil {
		m.lifecycle.SessionStarted(s.Clone())
	}
	return s.Clone(), nil
}

// AddFragment scores one transcript fragment against everything known
// about the session so far. The full accumulated transcript is
// re-analyzed each time, so risk ratchets up as evidence accumulates.
func (m *Manager) AddFragment(ctx context.Context, sessionID, text string, amount *float64) (*FragmentResult, error) {
	ctx, span := traces.StartSpan(ctx, "session.AddFragment", traces.SessionID(sessionID))
	defer span.End()

	unlock, err := m.locks.LockContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := m.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s.FragmentCount++
	if s.Transcript == "" {
		s.Transcript = text
	} else {
		s.Transcript = s.Transcript + " " + text
	}
	s.LastActivityAt = now
	if amount != nil {
		s.AmountMentioned = amount
	}

	assessment, err := m.scorer.Classify(ctx, s.UserID, s.ID, m.signalSet(s, now))
	if err != nil {
		return nil, err
	}

	if s.Worst == nil || assessment.RawScore > s.Worst.RawScore {
		s.Worst = assessment
	}

	result := &FragmentResult{Assessment: assessment, Worst: s.Worst}
	if alert := m.maybeAlert(ctx, s, assessment); alert != nil {
		result.Alert = alert
	}
	return result, nil
}

// End closes an active session and persists its final record. The
// final verdict is the worst assessment observed during the call.
func (m *Manager) End(ctx context.Context, sessionID string) (*Session, error) {
	return m.end(ctx, sessionID, EndReasonCaller)
}

func (m *Manager) end(ctx context.Context, sessionID string, reason EndReason) (*Session, error) {
	ctx, span := traces.StartSpan(ctx, "session.End", traces.SessionID(sessionID))
	defer span.End()

	unlock, err := m.locks.LockContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := m.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// An idle end races with fragment submission: the session may have
	// seen activity between the sweep's scan and this lock acquisition.
	if reason == EndReasonIdle && !s.LastActivityAt.Before(m.now().UTC().Add(-m.idleTimeout)) {
		return nil, errSessionNotIdle
	}

	now := m.now().UTC()
	s.Status = StatusEnded
	s.EndedAt = &now
	s.EndReason = reason

	// A session that never saw a fragment still gets a final verdict
	// from its caller and call-pattern signals.
	if s.Worst == nil {
		if assessment, cerr := m.scorer.Classify(ctx, s.UserID, s.ID, m.signalSet(s, now)); cerr == nil {
			s.Worst = assessment
		}
	}

	m.live.Delete(s.ID)
	metrics.ActiveCallSessions.Dec()

	if m.store != nil {
		if err := m.store.SaveSession(ctx, s.Clone()); err != nil {
			logging.L(ctx).Warn("session save failed", "session_id", s.ID, "error", err)
		}
	}
	logging.L(ctx).Info("session ended",
		"session_id", s.ID, "reason", string(reason), "fragments", s.FragmentCount)
	if m.lifecycle != nil {
		m.lifecycle.SessionEnded(s.Clone())
	}
	return s.Clone(), nil
}

// Get returns a session by id, live or historical.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if v, ok := m.live.Load(sessionID); ok {
		unlock, err := m.locks.LockContext(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		defer unlock()
		return v.(*Session).Clone(), nil
	}
	if m.store == nil {
		return nil, ErrNotFound
	}
	return m.store.GetSession(ctx, sessionID)
}

// EndIdle ends every active session whose last activity is older than
// the idle window. Returns how many were ended.
func (m *Manager) EndIdle(ctx context.Context) int {
	cutoff := m.now().UTC().Add(-m.idleTimeout)
	var stale []string
	m.live.Range(func(key, value any) bool {
		if value.(*Session).LastActivityAt.Before(cutoff) {
			stale = append(stale, key.(string))
		}
		return true
	})

	ended := 0
	for _, id := range stale {
		// end re-checks LastActivityAt under the session lock and
		// refuses if a fragment landed since the scan.
		if _, err := m.end(ctx, id, EndReasonIdle); err == nil {
			ended++
		}
	}
	return ended
}

// ActiveCount reports the number of currently active sessions.
func (m *Manager) ActiveCount() int {
	n := 0
	m.live.Range(func(_, _ any) bool { n++; return true })
	return n
}

// activeSession resolves an id to its live session, distinguishing
// never-existed from already-ended. Caller holds the session lock.
func (m *Manager) activeSession(ctx context.Context, sessionID string) (*Session, error) {
	if v, ok := m.live.Load(sessionID); ok {
		return v.(*Session), nil
	}
	if m.store != nil {
		if _, err := m.store.GetSession(ctx, sessionID); err == nil {
			return nil, ErrAlreadyEnded
		}
	}
	return nil, ErrNotFound
}

// signalSet assembles the analyzer input from everything the session
// has accumulated.
func (m *Manager) signalSet(s *Session, now time.Time) *signal.Set {
	set := &signal.Set{
		Phone: &signal.PhoneSignal{Number: s.PhoneNumber},
		CallPattern: &signal.CallPatternSignal{
			DurationSeconds: int(now.Sub(s.StartedAt).Seconds()),
			StartedAt:       s.StartedAt,
		},
	}
	if strings.TrimSpace(s.Transcript) != "" {
		set.Content = &signal.ContentSignal{Text: s.Transcript}
	}
	if s.AmountMentioned != nil {
		set.Financial = &signal.FinancialSignal{Amount: *s.AmountMentioned}
	}
	return set
}

// maybeAlert raises an alert if the assessment's tier is above LOW and
// strictly higher than anything already alerted for this session.
// Caller holds the session lock.
func (m *Manager) maybeAlert(ctx context.Context, s *Session, a *scoring.RiskAssessment) *Alert {
	rank := a.Tier.Rank()
	if rank <= scoring.TierLow.Rank() || rank <= s.maxAlertedRank {
		return nil
	}
	s.maxAlertedRank = rank

	alert := &Alert{
		ID:            idgen.WithPrefix("alrt_"),
		SessionID:     s.ID,
		UserID:        s.UserID,
		Tier:          a.Tier,
		FragmentIndex: s.FragmentCount,
		Assessment:    a,
		CreatedAt:     m.now().UTC(),
	}
	metrics.SessionAlertsTotal.WithLabelValues(string(a.Tier)).Inc()
	logging.L(ctx).Warn("session alert raised",
		"session_id", s.ID, "tier", string(a.Tier), "score", a.RawScore)

	if m.store != nil {
		go func(cp Alert) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.SaveAlert(ctx, &cp); err != nil {
				logging.L(ctx).Warn("alert save failed", "alert_id", cp.ID, "error", err)
			}
		}(*alert)
	}
	if m.notifier != nil {
		m.notifier.NotifyAlert(ctx, alert)
	}
	return alert
}
