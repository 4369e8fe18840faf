package signal

import (
	"context"
	"math"
	"strconv"
)

// anchorAmounts are psychological price points scammers quote: just
// under a round threshold so the figure feels both urgent and payable.
var anchorAmounts = []float64{999, 1999, 4999, 9999, 49999, 99999}

const (
	anchorTolerance = 10.0

	roundAmountFloor = 10_000
	largeAmountFloor = 100_000

	financialRoundAmount     = 0.15
	financialLargeAmount     = 0.25
	financialThresholdAmount = 0.20
)

// FinancialAnalyzer scores the shape of a quoted amount. Real demands
// from real institutions rarely arrive as tidy round figures or
// just-below-threshold anchors.
type FinancialAnalyzer struct{}

func (a *FinancialAnalyzer) Name() string    { return "financial" }
func (a *FinancialAnalyzer) Weight() float64 { return WeightFinancial }

func (a *FinancialAnalyzer) Analyze(ctx context.Context, set *Set) (Partial, error) {
	if set == nil || set.Financial == nil {
		return Partial{}, nil
	}

	amount := set.Financial.Amount
	p := Partial{Present: true}
	detail := strconv.FormatFloat(amount, 'f', -1, 64)

	if amount >= roundAmountFloor && math.Mod(amount, 1000) == 0 {
		p.add("round_amount", detail, financialRoundAmount)
	}
	if amount >= largeAmountFloor {
		p.add("large_amount", detail, financialLargeAmount)
	}
	for _, anchor := range anchorAmounts {
		if math.Abs(amount-anchor) < anchorTolerance {
			p.add("threshold_amount", detail, financialThresholdAmount)
			break
		}
	}

	p.finish()
	return p, nil
}
