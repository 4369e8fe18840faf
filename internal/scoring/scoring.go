// Package scoring combines per-channel analyzer verdicts into a single
// risk assessment: a weighted raw score, a tier, a dominant scam
// category, and a user-facing recommendation.
package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/arjunrm/scamshield/internal/pagination"
	"github.com/arjunrm/scamshield/internal/signal"
)

// Tier thresholds on the aggregated raw score.
const (
	TierMediumThreshold   = 0.30
	TierHighThreshold     = 0.50
	TierCriticalThreshold = 0.75
)

var (
	// ErrNoSignal is returned when a classification request carries no
	// signal at all.
	ErrNoSignal = errors.New("no signal provided")
	// ErrNotFound is returned when an assessment id is unknown.
	ErrNotFound = errors.New("assessment not found")
)

// Tier is the coarse risk band derived from the raw score.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

var tierRank = map[Tier]int{
	TierLow:      0,
	TierMedium:   1,
	TierHigh:     2,
	TierCritical: 3,
}

// Rank orders tiers for comparison; higher is worse.
func (t Tier) Rank() int { return tierRank[t] }

// TierForScore maps a raw score to its tier. The mapping is total and
// depends on nothing but the score.
func TierForScore(score float64) Tier {
	switch {
	case score >= TierCriticalThreshold:
		return TierCritical
	case score >= TierHighThreshold:
		return TierHigh
	case score >= TierMediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

var recommendations = map[Tier]string{
	TierCritical: "CRITICAL RISK: block this contact immediately and report it to the authorities",
	TierHigh:     "HIGH RISK: do not share information or make any payment",
	TierMedium:   "MODERATE RISK: proceed with extreme caution and verify independently",
	TierLow:      "LOW RISK: still verify the contact before sharing sensitive information",
}

// Recommendation returns the advice string for a tier.
func Recommendation(t Tier) string { return recommendations[t] }

// RiskAssessment is the result of one classification: either a one-shot
// /classify call or an incremental re-score inside a live call session.
type RiskAssessment struct {
	ID             string              `json:"id"`
	UserID         string              `json:"userId,omitempty"`
	SessionID      string              `json:"sessionId,omitempty"`
	RawScore       float64             `json:"rawScore"`
	Tier           Tier                `json:"tier"`
	ScamCategory   signal.Category     `json:"scamCategory,omitempty"`
	Confidence     float64             `json:"confidence"`
	Evidence       []signal.Evidence   `json:"evidence,omitempty"`
	Breakdown      map[string]float64  `json:"breakdown,omitempty"`
	Recommendation string              `json:"recommendation"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Store persists assessments for history and audit queries.
type Store interface {
	Save(ctx context.Context, a *RiskAssessment) error
	Get(ctx context.Context, id string) (*RiskAssessment, error)
	ListByUser(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*RiskAssessment, error)
	CountByTier(ctx context.Context) (map[Tier]int, error)
}
