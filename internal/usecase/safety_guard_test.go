package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

func TestCheckOrderNotionalCap(t *testing.T) {
	g := NewSafetyGuard()

	res := g.CheckOrder(drepo.OrderSideBuy, 25_000, testLimits)
	assert.False(t, res.Allowed)
	assert.Equal(t, models.ReasonNotionalExceeded, res.Reason)
	assert.Contains(t, res.Detail, "25000")

	assert.True(t, g.CheckOrder(drepo.OrderSideBuy, 15_000, testLimits).Allowed)
	assert.True(t, g.CheckOrder(drepo.OrderSideBuy, 20_000, testLimits).Allowed)

	// Sell notionals are checked by magnitude.
	assert.False(t, g.CheckOrder(drepo.OrderSideSell, -25_000, testLimits).Allowed)

	// Zero cap disables the check.
	assert.True(t, g.CheckOrder(drepo.OrderSideBuy, 1e9, models.RiskLimits{}).Allowed)
}

func TestCheckGreeksExposure(t *testing.T) {
	g := NewSafetyGuard()

	exp := &models.AccountExposure{Equity: 100_000, GammaUSD: 6_000}
	res := g.CheckGreeksExposure(exp, testLimits) // 6% > 5% cap
	assert.False(t, res.Allowed)
	assert.Equal(t, models.ReasonGreeksExceeded, res.Reason)

	exp = &models.AccountExposure{Equity: 100_000, VegaUSD: -5_500}
	assert.False(t, g.CheckGreeksExposure(exp, testLimits).Allowed)

	exp = &models.AccountExposure{Equity: 100_000, GammaUSD: 4_000, VegaUSD: 4_000}
	assert.True(t, g.CheckGreeksExposure(exp, testLimits).Allowed)
}

func TestCheckThetaExposure(t *testing.T) {
	g := NewSafetyGuard()

	exp := &models.AccountExposure{Equity: 100_000, ThetaUSD: -2_500} // 2.5% > 2% cap
	res := g.CheckThetaExposure(exp, testLimits)
	assert.False(t, res.Allowed)
	assert.Equal(t, models.ReasonGreeksExceeded, res.Reason)

	exp = &models.AccountExposure{Equity: 100_000, ThetaUSD: -1_500}
	assert.True(t, g.CheckThetaExposure(exp, testLimits).Allowed)
}
