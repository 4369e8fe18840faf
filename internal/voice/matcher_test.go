package voice

import (
	"context"
	"errors"
	"testing"
)

func TestSimilarityExactHash(t *testing.T) {
	a := &Features{Hash: "abc", Pitch: 120, Energy: 0.5, SpectralCentroid: 1500}
	b := &Features{Hash: "abc", Pitch: 240, Energy: 0.9, SpectralCentroid: 3000}
	if sim := Similarity(a, b); sim != 1.0 {
		t.Errorf("identical hashes should be a perfect match, got %v", sim)
	}
}

func TestSimilarityIdenticalFeatures(t *testing.T) {
	a := &Features{Hash: "aaa", Pitch: 120, Energy: 0.5, SpectralCentroid: 1500}
	b := &Features{Hash: "bbb", Pitch: 120, Energy: 0.5, SpectralCentroid: 1500}
	if sim := Similarity(a, b); sim != 1.0 {
		t.Errorf("identical features should score 1.0, got %v", sim)
	}
}

func TestSimilarityComponentBlend(t *testing.T) {
	a := &Features{Hash: "aaa", Pitch: 100, Energy: 0.5, SpectralCentroid: 1500}
	// pitch off by 100 (sim 0.5), energy off by 0.2 (sim 0.8),
	// centroid off by 1500 (sim 0.5): 0.5*0.4 + 0.8*0.3 + 0.5*0.3 = 0.59
	b := &Features{Hash: "bbb", Pitch: 200, Energy: 0.7, SpectralCentroid: 3000}
	if sim := Similarity(a, b); sim != 0.59 {
		t.Errorf("expected 0.59, got %v", sim)
	}
}

func TestSimilarityDistantVoices(t *testing.T) {
	a := &Features{Hash: "aaa", Pitch: 80, Energy: 0.0, SpectralCentroid: 500}
	b := &Features{Hash: "bbb", Pitch: 380, Energy: 1.0, SpectralCentroid: 4000}
	if sim := Similarity(a, b); sim != 0 {
		t.Errorf("maximally distant voices should score 0, got %v", sim)
	}
}

func TestExtractorDeterministic(t *testing.T) {
	e := &HashExtractor{}
	audio := []byte("pretend this is a call recording")

	f1, err := e.Extract(audio)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	f2, _ := e.Extract(audio)
	if *f1 != *f2 {
		t.Errorf("extraction must be deterministic: %+v vs %+v", f1, f2)
	}
	if len(f1.Hash) != 32 {
		t.Errorf("hash should be 32 hex chars, got %d", len(f1.Hash))
	}
	if f1.Pitch < pitchFloor || f1.Pitch > pitchFloor+pitchSpan {
		t.Errorf("pitch out of range: %v", f1.Pitch)
	}
	if f1.Energy < 0 || f1.Energy > 1 {
		t.Errorf("energy out of range: %v", f1.Energy)
	}

	if _, err := e.Extract(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("empty audio should be rejected, got %v", err)
	}
}

func TestMatcherRegisterIdempotent(t *testing.T) {
	store := NewMemoryStore()
	m := NewMatcher(store)
	ctx := context.Background()
	audio := []byte("same caller, same sample")

	first, err := m.Register(ctx, RegisterParams{UserID: "u1", Audio: audio})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.SampleCount != 1 {
		t.Errorf("expected sample count 1, got %d", first.SampleCount)
	}

	second, err := m.Register(ctx, RegisterParams{UserID: "u1", Audio: audio})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.ID != first.ID {
		t.Error("same audio should update the existing print, not create a new one")
	}
	if second.SampleCount != 2 {
		t.Errorf("expected sample count 2, got %d", second.SampleCount)
	}
}

func TestMatcherFlagsKnownScammer(t *testing.T) {
	store := NewMemoryStore()
	m := NewMatcher(store)
	ctx := context.Background()
	scamAudio := []byte("recorded scam call sample")

	if _, err := m.Register(ctx, RegisterParams{
		CallerName: "fake officer", IsScammer: true, Audio: scamAudio,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// The identical sample is an exact-hash match at similarity 1.0.
	result, err := m.Match(ctx, scamAudio)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].Similarity != 1.0 || result.Matches[0].Confidence != "high" {
		t.Errorf("unexpected match %+v", result.Matches[0])
	}
	if !result.KnownScammer {
		t.Error("exact match to a scammer print must set KnownScammer")
	}

	// A completely different voice should not match.
	other, err := m.Match(ctx, []byte("someone else entirely speaking"))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if other.KnownScammer {
		t.Error("unrelated audio should not flag a scammer")
	}
}

func TestConfidenceLabels(t *testing.T) {
	cases := []struct {
		sim  float64
		want string
	}{
		{0.95, "high"},
		{0.9, "high"},
		{0.85, "medium"},
		{0.8, "medium"},
		{0.75, "low"},
	}
	for _, tc := range cases {
		if got := confidenceLabel(tc.sim); got != tc.want {
			t.Errorf("confidenceLabel(%v) = %q, want %q", tc.sim, got, tc.want)
		}
	}
}
