package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFromScores(t *testing.T) {
	cases := []struct {
		behavior, sellFly float64
		want              Tier
	}{
		{90, 20, TierT1},
		{80, 30, TierT1}, // boundary: >=80 and <=30
		{85, 40, TierT2}, // disciplined but sell-fly disqualifies T1
		{20, 10, TierT4},
		{29, 0, TierT4},  // behavior below 30
		{60, 85, TierT4}, // sell-fly at or above 80
		{40, 40, TierT3}, // behavior below 50
		{60, 60, TierT3}, // sell-fly at or above 50
		{60, 40, TierT2},
		{50, 49, TierT2}, // boundary: both just inside T2
	}
	for _, tc := range cases {
		got := TierFromScores(tc.behavior, tc.sellFly)
		assert.Equal(t, tc.want, got, "behavior=%.0f sellFly=%.0f", tc.behavior, tc.sellFly)
	}
}

func TestEffectiveRiskStateSymbolFallback(t *testing.T) {
	state := &EffectiveRiskState{
		Symbols: map[string]*SymbolRiskState{
			"AAPL": {Symbol: "AAPL", Tier: TierT1},
		},
	}
	assert.Equal(t, TierT1, state.Symbol("AAPL").Tier)
	assert.Equal(t, TierT2, state.Symbol("MSFT").Tier)
}

func TestDefaultTierFactorsMonotonic(t *testing.T) {
	// Worse tiers tighten triggers, cut harder and admit less new risk.
	order := []Tier{TierT1, TierT2, TierT3, TierT4}
	for i := 1; i < len(order); i++ {
		prev, cur := DefaultTierFactors[order[i-1]], DefaultTierFactors[order[i]]
		assert.Greater(t, prev.Threshold, cur.Threshold)
		assert.Less(t, prev.Reduce, cur.Reduce)
		assert.Greater(t, prev.MaxNewRisk, cur.MaxNewRisk)
	}
}

func TestExposurePctOfEquity(t *testing.T) {
	exp := &AccountExposure{Equity: 100_000, GammaUSD: -5_000, VegaUSD: 2_500, ThetaUSD: -1_000}
	assert.InDelta(t, 5, exp.GammaPctEquity(), 1e-9)
	assert.InDelta(t, 2.5, exp.VegaPctEquity(), 1e-9)
	assert.InDelta(t, 1, exp.ThetaPctEquity(), 1e-9)

	// Zero equity never divides.
	exp = &AccountExposure{GammaUSD: 5_000}
	assert.Zero(t, exp.GammaPctEquity())
}
