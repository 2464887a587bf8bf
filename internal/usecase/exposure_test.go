package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "TradeLoop/internal/domain/repository"
)

func TestComputeExposureFoldsPositions(t *testing.T) {
	broker := newFakeBroker()
	broker.equity = 200_000
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	broker.positions = []drepo.UnderlyingPosition{
		{Symbol: "AAPL", Quantity: 100, LastPrice: 50},
		{Symbol: "MSFT", Quantity: -20, LastPrice: 100},
	}
	broker.options = []drepo.OptionPosition{
		{
			// Long 2 contracts expiring in 3 days: counted short-DTE.
			Contract:        drepo.OptionContract{Underlying: "AAPL", Expiry: now.Add(3 * 24 * time.Hour), Multiplier: 100},
			Quantity:        2,
			Greeks:          drepo.Greeks{Delta: 0.5, Gamma: 0.01, Vega: 10, Theta: -5},
			UnderlyingPrice: 50,
		},
		{
			// Short 1 contract expiring in 30 days; zero multiplier
			// defaults to 100.
			Contract:        drepo.OptionContract{Underlying: "AAPL", Expiry: now.Add(30 * 24 * time.Hour)},
			Quantity:        -1,
			Greeks:          drepo.Greeks{Delta: 0.4, Gamma: 0.02, Vega: 8, Theta: -4},
			UnderlyingPrice: 50,
		},
	}

	a := NewExposureAggregator(broker, nopMetrics{})
	a.now = func() time.Time { return now }

	exp, err := a.ComputeExposure(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.Equal(t, "acc-1", exp.AccountID)
	assert.InDelta(t, 200_000, exp.Equity, 1e-9)
	assert.Equal(t, now, exp.AsOf)

	// Equity legs: 100*50 - 20*100 = 3000.
	// Option legs: 0.5*200*50 - 0.4*100*50 = 5000 - 2000 = 3000.
	assert.InDelta(t, 6_000, exp.DeltaNotionalUSD, 1e-6)
	// Gamma: 0.01*200*2500 - 0.02*100*2500 = 5000 - 5000 = 0.
	assert.InDelta(t, 0, exp.GammaUSD, 1e-6)
	// Vega: 10*200 - 8*100 = 1200.
	assert.InDelta(t, 1_200, exp.VegaUSD, 1e-6)
	// Theta: -5*200 + 4*100 = -600.
	assert.InDelta(t, -600, exp.ThetaUSD, 1e-6)

	// Only the 3-day contract lands in the short-DTE subtotals.
	assert.InDelta(t, 5_000, exp.ShortDTEGammaUSD, 1e-6)
	assert.InDelta(t, -1_000, exp.ShortDTEThetaUSD, 1e-6)

	aapl := exp.Symbols["AAPL"]
	require.NotNil(t, aapl)
	assert.InDelta(t, 100, aapl.EquityQuantity, 1e-9)
	assert.InDelta(t, 1, aapl.OptionContracts, 1e-9) // 2 long - 1 short
	assert.InDelta(t, 5_000+5_000-2_000, aapl.DeltaNotionalUSD, 1e-6)
}

func TestComputeExposureShortDTEBoundary(t *testing.T) {
	broker := newFakeBroker()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	broker.options = []drepo.OptionPosition{
		{
			// Expiring exactly at the window edge counts as short-DTE.
			Contract:        drepo.OptionContract{Underlying: "AAPL", Expiry: now.Add(ShortDTEWindow), Multiplier: 100},
			Quantity:        1,
			Greeks:          drepo.Greeks{Gamma: 0.01},
			UnderlyingPrice: 50,
		},
		{
			Contract:        drepo.OptionContract{Underlying: "AAPL", Expiry: now.Add(ShortDTEWindow + time.Second), Multiplier: 100},
			Quantity:        1,
			Greeks:          drepo.Greeks{Gamma: 0.01},
			UnderlyingPrice: 50,
		},
	}

	a := NewExposureAggregator(broker, nopMetrics{})
	a.now = func() time.Time { return now }

	exp, err := a.ComputeExposure(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.InDelta(t, exp.GammaUSD/2, exp.ShortDTEGammaUSD, 1e-6)
}

func TestComputeExposureBrokerError(t *testing.T) {
	broker := newFakeBroker()
	broker.equityErr = errors.New("gateway down")
	a := NewExposureAggregator(broker, nopMetrics{})

	_, err := a.ComputeExposure(context.Background(), "acc-1")
	assert.Error(t, err)
}
