// Package signal contains the per-channel scam analyzers. Each analyzer
// inspects one slice of a call or message (caller identity, content,
// call pattern, financial figures) and emits a bounded partial score
// with the evidence that produced it. Aggregation across analyzers
// lives in the scoring package.
package signal

import (
	"context"
	"time"
)

// Analyzer weights used by the aggregator. Weights over the analyzers
// that actually produced a signal are renormalized to sum to 1, so a
// text-only message is judged entirely on its content.
const (
	WeightCaller    = 0.20
	WeightContent   = 0.40
	WeightTemporal  = 0.20
	WeightFinancial = 0.20
)

// Category labels the scam pattern an analyzer believes it is seeing.
type Category string

const (
	CategoryNone            Category = ""
	CategoryDigitalArrest   Category = "digital_arrest"
	CategoryInvestmentFraud Category = "investment_fraud"
	CategoryLotteryScam     Category = "lottery_scam"
)

// severityRank orders categories for tie-breaking when two analyzers
// hint different patterns with equal weighted contribution.
var severityRank = map[Category]int{
	CategoryDigitalArrest:   3,
	CategoryInvestmentFraud: 2,
	CategoryLotteryScam:     1,
	CategoryNone:            0,
}

// SeverityRank returns the tie-break rank of c. Higher is more severe.
func SeverityRank(c Category) int {
	return severityRank[c]
}

// PhoneSignal is the caller identity as dialed, E.164 or close to it.
type PhoneSignal struct {
	Number string `json:"number"`
}

// ContentSignal is transcript or message text, optionally with a URL
// that arrived alongside it (e.g. from an SMS link extractor).
type ContentSignal struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// CallPatternSignal describes when the call happened and how long it ran.
type CallPatternSignal struct {
	DurationSeconds int       `json:"durationSeconds"`
	StartedAt       time.Time `json:"startedAt"`
}

// FinancialSignal is an amount mentioned during the interaction, in the
// caller's local currency.
type FinancialSignal struct {
	Amount float64 `json:"amount"`
}

// Set carries whatever signals are known for one classification. Nil
// fields mean the channel was not observed, not that it was clean.
type Set struct {
	Phone       *PhoneSignal       `json:"phone,omitempty"`
	Content     *ContentSignal     `json:"content,omitempty"`
	CallPattern *CallPatternSignal `json:"callPattern,omitempty"`
	Financial   *FinancialSignal   `json:"financial,omitempty"`
}

// Empty reports whether no signal at all was provided.
func (s *Set) Empty() bool {
	if s == nil {
		return true
	}
	return s.Phone == nil && s.Content == nil && s.CallPattern == nil && s.Financial == nil
}

// Evidence is one matched indicator: which rule fired, what it matched,
// and how much it contributed to the analyzer's partial score.
type Evidence struct {
	Kind   string  `json:"kind"`
	Detail string  `json:"detail"`
	Weight float64 `json:"weight"`
}

// Partial is a single analyzer's verdict. Present is false when the Set
// carried nothing for this analyzer; the aggregator then excludes its
// weight entirely instead of averaging in a zero.
type Partial struct {
	Score        float64    `json:"score"`
	Evidence     []Evidence `json:"evidence,omitempty"`
	CategoryHint Category   `json:"categoryHint,omitempty"`
	Present      bool       `json:"present"`
}

// Analyzer scores one channel of a signal set. Implementations must be
// safe for concurrent use and must not mutate the set.
type Analyzer interface {
	Name() string
	Weight() float64
	Analyze(ctx context.Context, set *Set) (Partial, error)
}

// All returns the standard analyzer suite in aggregation order.
func All() []Analyzer {
	return []Analyzer{
		&CallerAnalyzer{},
		&ContentAnalyzer{},
		&TemporalAnalyzer{},
		&FinancialAnalyzer{},
	}
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
