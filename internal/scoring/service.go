package scoring

import (
	"context"
	"time"

	"github.com/arjunrm/scamshield/internal/idgen"
	"github.com/arjunrm/scamshield/internal/logging"
	"github.com/arjunrm/scamshield/internal/metrics"
	"github.com/arjunrm/scamshield/internal/pagination"
	"github.com/arjunrm/scamshield/internal/signal"
	"github.com/arjunrm/scamshield/internal/traces"
)

// Service runs the analyzer suite over a signal set and persists the
// resulting assessments.
type Service struct {
	analyzers []signal.Analyzer
	store     Store
}

// NewService creates a scoring service with the standard analyzer suite.
func NewService(store Store) *Service {
	return &Service{
		analyzers: signal.All(),
		store:     store,
	}
}

// WithAnalyzers replaces the analyzer suite. Used by tests and by
// deployments that disable a channel.
func (s *Service) WithAnalyzers(analyzers ...signal.Analyzer) *Service {
	s.analyzers = analyzers
	return s
}

// Classify scores one signal set. A failing analyzer is logged and
// excluded from the weighted aggregate; classification itself only
// fails when the set is empty. Persistence is asynchronous and
// best-effort: a storage outage never blocks the caller's answer.
func (s *Service) Classify(ctx context.Context, userID, sessionID string, set *signal.Set) (*RiskAssessment, error) {
	if set.Empty() {
		return nil, ErrNoSignal
	}

	ctx, span := traces.StartSpan(ctx, "scoring.Classify")
	defer span.End()

	results := make([]AnalyzerResult, 0, len(s.analyzers))
	for _, a := range s.analyzers {
		partial, err := a.Analyze(ctx, set)
		if err != nil {
			logging.L(ctx).Warn("analyzer failed, excluding from aggregate",
				"analyzer", a.Name(), "error", err)
			metrics.AnalyzerFailures.WithLabelValues(a.Name()).Inc()
			partial = signal.Partial{}
		}
		results = append(results, AnalyzerResult{Name: a.Name(), Weight: a.Weight(), Partial: partial})
	}

	out := Aggregate(results)
	assessment := &RiskAssessment{
		ID:             idgen.WithPrefix("rsk_"),
		UserID:         userID,
		SessionID:      sessionID,
		RawScore:       out.RawScore,
		Tier:           out.Tier,
		ScamCategory:   out.Category,
		Confidence:     Confidence(len(out.Evidence)),
		Evidence:       out.Evidence,
		Breakdown:      out.Breakdown,
		Recommendation: Recommendation(out.Tier),
		CreatedAt:      time.Now().UTC(),
	}

	span.SetAttributes(traces.AssessmentID(assessment.ID), traces.RiskTier(string(out.Tier)))
	metrics.AssessmentsTotal.WithLabelValues(string(out.Tier)).Inc()
	metrics.RiskScoreObserved.Observe(out.RawScore)

	if s.store != nil {
		go func(a RiskAssessment) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.Save(ctx, &a); err != nil {
				logging.L(ctx).Warn("assessment save failed", "id", a.ID, "error", err)
			}
		}(*assessment)
	}

	return assessment, nil
}

// Get returns a stored assessment by id.
func (s *Service) Get(ctx context.Context, id string) (*RiskAssessment, error) {
	return s.store.Get(ctx, id)
}

// History lists a user's recent assessments, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int, cursor string) ([]*RiskAssessment, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	// Fetch one extra row to detect whether another page exists.
	items, err := s.store.ListByUser(ctx, userID, limit+1, before)
	if err != nil {
		return nil, "", err
	}
	items, next, _ := pagination.ComputePage(items, limit, func(a *RiskAssessment) (time.Time, string) {
		return a.CreatedAt, a.ID
	})
	return items, next, nil
}

// Stats returns assessment counts grouped by tier.
func (s *Service) Stats(ctx context.Context) (map[Tier]int, error) {
	return s.store.CountByTier(ctx)
}
