package scoring

import (
	"math"

	"github.com/arjunrm/scamshield/internal/signal"
)

// AnalyzerResult pairs an analyzer's partial with its name and static
// weight, ready for aggregation.
type AnalyzerResult struct {
	Name    string
	Weight  float64
	Partial signal.Partial
}

// Outcome is the aggregated verdict before persistence identifiers are
// attached.
type Outcome struct {
	RawScore  float64
	Tier      Tier
	Category  signal.Category
	Evidence  []signal.Evidence
	Breakdown map[string]float64
}

// Aggregate folds analyzer partials into one raw score. Weights are
// renormalized over the analyzers whose signal was actually present, so
// absent channels neither dilute nor inflate the result. The same
// partials always produce the same outcome.
func Aggregate(results []AnalyzerResult) Outcome {
	var totalWeight float64
	for _, r := range results {
		if r.Partial.Present {
			totalWeight += r.Weight
		}
	}

	out := Outcome{Breakdown: make(map[string]float64, len(results))}
	if totalWeight <= 0 {
		out.Tier = TierLow
		return out
	}

	var (
		score        float64
		bestCat      signal.Category
		bestCatContr float64
	)
	for _, r := range results {
		if !r.Partial.Present {
			continue
		}
		contribution := (r.Weight / totalWeight) * r.Partial.Score
		score += contribution
		out.Breakdown[r.Name] = math.Round(r.Partial.Score*1000) / 1000
		out.Evidence = append(out.Evidence, r.Partial.Evidence...)

		if hint := r.Partial.CategoryHint; hint != signal.CategoryNone {
			if contribution > bestCatContr ||
				(contribution == bestCatContr && signal.SeverityRank(hint) > signal.SeverityRank(bestCat)) {
				bestCat = hint
				bestCatContr = contribution
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	score = applyCompoundFloors(score, out.Evidence)

	out.RawScore = math.Round(score*1000) / 1000
	out.Tier = TierForScore(out.RawScore)
	out.Category = bestCat
	return out
}

// applyCompoundFloors raises the score for indicator combinations that
// are near-certain scams regardless of how the weighted sum lands. An
// explicit arrest threat delivered under an impersonated authority is
// the digital-arrest playbook and is floored into the critical band.
func applyCompoundFloors(score float64, evidence []signal.Evidence) float64 {
	kinds := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		kinds[ev.Kind] = true
	}
	if kinds["authority_impersonation"] && kinds["arrest_threat"] {
		return math.Max(score, TierCriticalThreshold)
	}
	return score
}
