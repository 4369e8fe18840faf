package signal

import (
	"context"
	"testing"
)

func TestCallerAnalyzerDomesticClean(t *testing.T) {
	a := &CallerAnalyzer{}
	p, err := a.Analyze(context.Background(), &Set{Phone: &PhoneSignal{Number: "+91 98765 43210"}})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !p.Present {
		t.Fatal("expected caller signal to be present")
	}
	if p.Score != 0 {
		t.Errorf("expected score 0 for clean domestic number, got %v", p.Score)
	}
}

func TestCallerAnalyzerInternational(t *testing.T) {
	a := &CallerAnalyzer{}
	p, _ := a.Analyze(context.Background(), &Set{Phone: &PhoneSignal{Number: "+44 20 7946 0958"}})
	if p.Score != callerInternational {
		t.Errorf("expected %v, got %v", callerInternational, p.Score)
	}
	if len(p.Evidence) != 1 || p.Evidence[0].Kind != "international_number" {
		t.Errorf("unexpected evidence: %+v", p.Evidence)
	}
}

func TestCallerAnalyzerRepeatedSuffix(t *testing.T) {
	a := &CallerAnalyzer{}
	// International plus a repeated non-VoIP suffix
	p, _ := a.Analyze(context.Background(), &Set{Phone: &PhoneSignal{Number: "+19225552222"}})
	if p.Score != 0.5 {
		t.Errorf("expected 0.5 (international + repeated suffix), got %v", p.Score)
	}
}

func TestCallerAnalyzerVoIPBlock(t *testing.T) {
	a := &CallerAnalyzer{}
	p, _ := a.Analyze(context.Background(), &Set{Phone: &PhoneSignal{Number: "+1 415-555-0000"}})
	// international 0.30 + repeated suffix 0.20 + voip block 0.25
	if p.Score != 0.75 {
		t.Errorf("expected 0.75, got %v", p.Score)
	}
	kinds := map[string]bool{}
	for _, ev := range p.Evidence {
		kinds[ev.Kind] = true
	}
	for _, want := range []string{"international_number", "repeated_digit_suffix", "voip_number_pattern"} {
		if !kinds[want] {
			t.Errorf("missing evidence kind %q", want)
		}
	}
}

func TestCallerAnalyzerAbsent(t *testing.T) {
	a := &CallerAnalyzer{}
	p, _ := a.Analyze(context.Background(), &Set{Content: &ContentSignal{Text: "hello"}})
	if p.Present {
		t.Fatal("caller partial should not be present without a phone signal")
	}
}
