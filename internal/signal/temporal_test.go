package signal

import (
	"context"
	"testing"
	"time"
)

func analyzePattern(t *testing.T, dur int, start time.Time) Partial {
	t.Helper()
	a := &TemporalAnalyzer{}
	p, err := a.Analyze(context.Background(), &Set{
		CallPattern: &CallPatternSignal{DurationSeconds: dur, StartedAt: start},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return p
}

func TestTemporalAnalyzerVeryShortCall(t *testing.T) {
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := analyzePattern(t, 5, noon)
	if p.Score != temporalVeryShort {
		t.Errorf("expected %v, got %v", temporalVeryShort, p.Score)
	}
}

func TestTemporalAnalyzerLongCall(t *testing.T) {
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := analyzePattern(t, 900, noon)
	if p.Score != temporalLongCall {
		t.Errorf("expected %v, got %v", temporalLongCall, p.Score)
	}
}

func TestTemporalAnalyzerOddHour(t *testing.T) {
	lateNight := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	p := analyzePattern(t, 60, lateNight)
	if p.Score != temporalOddHour {
		t.Errorf("expected %v, got %v", temporalOddHour, p.Score)
	}

	earlyMorning := time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC)
	p = analyzePattern(t, 60, earlyMorning)
	if p.Score != temporalOddHour {
		t.Errorf("expected %v at 05:00, got %v", temporalOddHour, p.Score)
	}
}

func TestTemporalAnalyzerCombined(t *testing.T) {
	lateNight := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	p := analyzePattern(t, 4, lateNight)
	// very short 0.20 + odd hour 0.20
	if p.Score != 0.4 {
		t.Errorf("expected 0.4, got %v", p.Score)
	}
}

func TestTemporalAnalyzerNormalCall(t *testing.T) {
	noon := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	p := analyzePattern(t, 120, noon)
	if p.Score != 0 {
		t.Errorf("expected 0, got %v", p.Score)
	}
	if !p.Present {
		t.Error("expected present partial")
	}
}
