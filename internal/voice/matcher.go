package voice

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/arjunrm/scamshield/internal/idgen"
	"github.com/arjunrm/scamshield/internal/logging"
	"github.com/arjunrm/scamshield/internal/metrics"
	"github.com/arjunrm/scamshield/internal/traces"
)

// Similarity component weights and divisors. Pitch differences are
// judged against a 200 Hz span, spectral centroid against 3 kHz.
const (
	pitchDivisor    = 200.0
	spectralDivisor = 3000.0

	weightPitch    = 0.4
	weightEnergy   = 0.3
	weightSpectral = 0.3

	// maxCandidates bounds how many stored prints one match scans.
	maxCandidates = 1000
)

// Similarity scores two feature sets in [0, 1]. An exact hash match is
// a perfect score; otherwise the acoustic components blend 0.4/0.3/0.3.
func Similarity(a, b *Features) float64 {
	if a.Hash != "" && a.Hash == b.Hash {
		return 1.0
	}

	pitchSim := math.Max(0, 1-math.Abs(a.Pitch-b.Pitch)/pitchDivisor)
	energySim := math.Max(0, 1-math.Abs(a.Energy-b.Energy))
	spectralSim := math.Max(0, 1-math.Abs(a.SpectralCentroid-b.SpectralCentroid)/spectralDivisor)

	sim := pitchSim*weightPitch + energySim*weightEnergy + spectralSim*weightSpectral
	return math.Round(sim*1000) / 1000
}

// confidenceLabel buckets a similarity into a coarse confidence.
func confidenceLabel(sim float64) string {
	switch {
	case sim >= 0.9:
		return "high"
	case sim >= 0.8:
		return "medium"
	default:
		return "low"
	}
}

// Matcher registers voiceprints and matches probes against the corpus.
type Matcher struct {
	extractor        Extractor
	store            Store
	matchThreshold   float64
	scammerThreshold float64
}

// NewMatcher creates a matcher with the default hash extractor.
func NewMatcher(store Store) *Matcher {
	return &Matcher{
		extractor:        &HashExtractor{},
		store:            store,
		matchThreshold:   DefaultMatchThreshold,
		scammerThreshold: DefaultScammerThreshold,
	}
}

// WithExtractor swaps in a different feature extractor.
func (m *Matcher) WithExtractor(e Extractor) *Matcher {
	m.extractor = e
	return m
}

// WithThresholds overrides the match and scammer thresholds.
func (m *Matcher) WithThresholds(match, scammer float64) *Matcher {
	if match > 0 && match <= 1 {
		m.matchThreshold = match
	}
	if scammer >= m.matchThreshold && scammer <= 1 {
		m.scammerThreshold = scammer
	}
	return m
}

// RegisterParams describes a voice sample being enrolled.
type RegisterParams struct {
	UserID      string
	PhoneNumber string
	CallerName  string
	IsScammer   bool
	Audio       []byte
}

// Register enrolls a sample. Enrolling the same audio twice bumps the
// existing print's sample count instead of creating a duplicate.
func (m *Matcher) Register(ctx context.Context, p RegisterParams) (*Fingerprint, error) {
	features, err := m.extractor.Extract(p.Audio)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fp := &Fingerprint{
		ID:               idgen.WithPrefix("vp_"),
		UserID:           p.UserID,
		PhoneNumber:      p.PhoneNumber,
		CallerName:       p.CallerName,
		Hash:             features.Hash,
		Pitch:            features.Pitch,
		Energy:           features.Energy,
		SpectralCentroid: features.SpectralCentroid,
		IsScammer:        p.IsScammer,
		SampleCount:      1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, err := m.store.Upsert(ctx, fp)
	if err != nil {
		return nil, err
	}
	logging.L(ctx).Info("voiceprint registered",
		"id", stored.ID, "scammer", stored.IsScammer, "samples", stored.SampleCount)
	return stored, nil
}

// Match scores a probe sample against every stored print and returns
// candidates above the match threshold, best first. KnownScammer is set
// when any scammer-flagged print clears the scammer threshold.
func (m *Matcher) Match(ctx context.Context, audio []byte) (*MatchResult, error) {
	ctx, span := traces.StartSpan(ctx, "voice.Match")
	defer span.End()

	features, err := m.extractor.Extract(audio)
	if err != nil {
		return nil, err
	}

	prints, err := m.store.All(ctx, maxCandidates)
	if err != nil {
		return nil, err
	}

	result := &MatchResult{}
	for _, fp := range prints {
		sim := Similarity(features, &Features{
			Hash:             fp.Hash,
			Pitch:            fp.Pitch,
			Energy:           fp.Energy,
			SpectralCentroid: fp.SpectralCentroid,
		})
		if sim < m.matchThreshold {
			continue
		}
		result.Matches = append(result.Matches, Match{
			Fingerprint: fp,
			Similarity:  sim,
			Confidence:  confidenceLabel(sim),
		})
		if fp.IsScammer && sim >= m.scammerThreshold {
			result.KnownScammer = true
		}
	}
	sort.Slice(result.Matches, func(i, j int) bool {
		return result.Matches[i].Similarity > result.Matches[j].Similarity
	})

	outcome := "miss"
	if len(result.Matches) > 0 {
		outcome = "match"
	}
	if result.KnownScammer {
		outcome = "scammer"
	}
	metrics.VoiceMatchesTotal.WithLabelValues(outcome).Inc()
	return result, nil
}
