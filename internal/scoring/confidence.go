package scoring

// Confidence bounds for evidence-based estimation.
const (
	confidenceBase    = 0.50
	confidencePerItem = 0.10
	confidenceCeiling = 0.95
)

// Confidence estimates how sure the engine is of an assessment from the
// number of independent evidence items behind it. It never reaches 1.0:
// heuristics corroborate, they do not prove.
func Confidence(evidenceCount int) float64 {
	c := confidenceBase + confidencePerItem*float64(evidenceCount)
	if c > confidenceCeiling {
		return confidenceCeiling
	}
	return c
}
