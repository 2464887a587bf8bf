package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

// ShortDTEWindow is the calendar window inside which option gamma/theta is
// additionally counted toward the short-dated subtotals.
const ShortDTEWindow = 7 * 24 * time.Hour

// ExposureAggregator computes per-symbol and account-level Greeks/Delta
// exposure from current broker positions. It holds no cache: it is a pure
// function of the positions the broker reports, and callers apply their own
// short-TTL cache when they need one.
type ExposureAggregator struct {
	broker  drepo.BrokerClient
	metrics drepo.Metrics
	now     func() time.Time
}

// NewExposureAggregator creates an exposure aggregator.
func NewExposureAggregator(broker drepo.BrokerClient, metrics drepo.Metrics) *ExposureAggregator {
	return &ExposureAggregator{broker: broker, metrics: metrics, now: time.Now}
}

// ComputeExposure fetches positions and equity once and folds them into an
// AccountExposure snapshot.
//
// Equity positions contribute quantity*lastPrice to delta-notional. Option
// positions contribute per contract:
//
//	delta-notional = delta * contracts * multiplier * underlyingPrice
//	gamma-dollar  ~= gamma * contracts * multiplier * underlyingPrice^2
//	vega/theta-$   = vega/theta * contracts * multiplier
//
// where contracts is signed (negative for short).
func (a *ExposureAggregator) ComputeExposure(ctx context.Context, accountID string) (*models.AccountExposure, error) {
	start := a.now()

	equity, err := a.broker.GetAccountEquity(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account equity: %w", err)
	}
	underlying, err := a.broker.ListUnderlyingPositions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list underlying positions: %w", err)
	}
	options, err := a.broker.ListOptionPositions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list option positions: %w", err)
	}

	exp := &models.AccountExposure{
		AccountID: accountID,
		Equity:    equity,
		Symbols:   make(map[string]*models.SymbolExposure),
		AsOf:      start,
	}

	for _, p := range underlying {
		exp.AddEquityDelta(p.Symbol, p.Quantity, p.Quantity*p.LastPrice)
	}

	cutoff := start.Add(ShortDTEWindow)
	for _, p := range options {
		mult := p.Contract.Multiplier
		if mult == 0 {
			mult = 100
		}
		scale := p.Quantity * mult
		delta := p.Greeks.Delta * scale * p.UnderlyingPrice
		gamma := p.Greeks.Gamma * scale * p.UnderlyingPrice * p.UnderlyingPrice
		vega := p.Greeks.Vega * scale
		theta := p.Greeks.Theta * scale

		shortDTE := !p.Contract.Expiry.IsZero() && !p.Contract.Expiry.After(cutoff)
		exp.AddOptionGreeks(p.Contract.Underlying, p.Quantity, delta, gamma, vega, theta, shortDTE)
	}

	if a.metrics != nil {
		a.metrics.RecordExposure(accountID, exp.DeltaNotionalUSD, exp.GammaUSD, exp.VegaUSD, exp.ThetaUSD)
		a.metrics.RecordBrokerLatency("compute_exposure", a.now().Sub(start).Seconds())
	}
	return exp, nil
}
