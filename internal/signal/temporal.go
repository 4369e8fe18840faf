package signal

import (
	"context"
	"fmt"
)

const (
	// Robocall probes hang up almost instantly; social-engineering
	// scripts keep victims on the line for a long time.
	veryShortCallSeconds = 10
	longCallSeconds      = 600

	// Late-night window:22:00 through 06:59 local time.
	oddHourStart = 22
	oddHourEnd   = 6

	temporalVeryShort = 0.20
	temporalLongCall  = 0.15
	temporalOddHour   = 0.20
)

// TemporalAnalyzer scores when a call happened and how long it lasted.
type TemporalAnalyzer struct{}

func (a *TemporalAnalyzer) Name() string    { return "temporal" }
func (a *TemporalAnalyzer) Weight() float64 { return WeightTemporal }

func (a *TemporalAnalyzer) Analyze(ctx context.Context, set *Set) (Partial, error) {
	if set == nil || set.CallPattern == nil {
		return Partial{}, nil
	}

	cp := set.CallPattern
	p := Partial{Present: true}

	if cp.DurationSeconds > 0 && cp.DurationSeconds < veryShortCallSeconds {
		p.add("very_short_call", fmt.Sprintf("%ds", cp.DurationSeconds), temporalVeryShort)
	} else if cp.DurationSeconds > longCallSeconds {
		p.add("long_call", fmt.Sprintf("%ds", cp.DurationSeconds), temporalLongCall)
	}

	if !cp.StartedAt.IsZero() {
		hour := cp.StartedAt.Hour()
		if hour >= oddHourStart || hour <= oddHourEnd {
			p.add("odd_hour_call", fmt.Sprintf("%02d:00", hour), temporalOddHour)
		}
	}

	p.finish()
	return p, nil
}
