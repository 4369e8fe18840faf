package signal

import (
	"context"
	"math"
	"strings"
)

// homeCountryPrefix marks numbers treated as domestic. Anything else
// with an explicit country code counts as international.
const homeCountryPrefix = "+91"

// voipSuffixes are trailing digit runs common in bulk-provisioned VoIP
// number blocks favored by call-center scam operations.
var voipSuffixes = []string{"0000", "1111", "9999"}

const (
	callerInternational = 0.30
	callerRepeatSuffix  = 0.20
	callerVoIPPattern   = 0.25
)

// CallerAnalyzer scores the caller's phone number shape: international
// origin, repeated-digit suffixes, and known VoIP block patterns.
// HomePrefix overrides the default domestic dialing prefix.
type CallerAnalyzer struct {
	HomePrefix string
}

func (a *CallerAnalyzer) Name() string    { return "caller" }
func (a *CallerAnalyzer) Weight() float64 { return WeightCaller }

func (a *CallerAnalyzer) homePrefix() string {
	if a.HomePrefix == "" {
		return homeCountryPrefix
	}
	return a.HomePrefix
}

func (a *CallerAnalyzer) Analyze(ctx context.Context, set *Set) (Partial, error) {
	if set == nil || set.Phone == nil {
		return Partial{}, nil
	}

	number := cleanNumber(set.Phone.Number)
	p := Partial{Present: true}

	if strings.HasPrefix(number, "+") && !strings.HasPrefix(number, a.homePrefix()) {
		p.add("international_number", number, callerInternational)
	}

	digits := digitsOnly(number)
	if len(digits) >= 4 {
		last4 := digits[len(digits)-4:]
		if allSameDigit(last4) {
			p.add("repeated_digit_suffix", last4, callerRepeatSuffix)
		}
		for _, suffix := range voipSuffixes {
			if strings.HasSuffix(digits, suffix) {
				p.add("voip_number_pattern", suffix, callerVoIPPattern)
				break
			}
		}
	}

	p.finish()
	return p, nil
}

// cleanNumber strips spaces and dashes but keeps the leading plus.
func cleanNumber(n string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(n) {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func digitsOnly(n string) string {
	var b strings.Builder
	for _, r := range n {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return len(s) > 0
}

// add appends evidence and accumulates the partial score.
func (p *Partial) add(kind, detail string, weight float64) {
	p.Evidence = append(p.Evidence, Evidence{Kind: kind, Detail: detail, Weight: weight})
	p.Score += weight
}

// finish clamps and rounds the accumulated score.
func (p *Partial) finish() {
	p.Score = math.Round(clamp01(p.Score)*1000) / 1000
}
