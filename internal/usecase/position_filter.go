package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/logger"
)

// FilterStats summarizes one filter pass.
type FilterStats struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Filtered int `json:"filtered"`
}

// PositionFilter cross-checks candidate signals against live broker
// positions, rejecting signals whose semantics conflict with current
// holdings. Filtered signals are expired with a reason and committed in one
// batch at the end of the pass.
type PositionFilter struct {
	broker   drepo.BrokerClient
	store    drepo.SignalStore
	logger   *logger.Logger
	lotSizes map[string]float64
	now      func() time.Time
}

// NewPositionFilter creates a position filter. lotSizes maps lot-constrained
// symbols (HK-style boards) to their exchange minimum lot.
func NewPositionFilter(broker drepo.BrokerClient, store drepo.SignalStore, lg *logger.Logger, lotSizes map[string]float64) *PositionFilter {
	return &PositionFilter{broker: broker, store: store, logger: lg, lotSizes: lotSizes, now: time.Now}
}

// Filter fetches live positions once and applies per-type consistency rules
// to the batch. State changes are committed only once, at the end, so a
// failure mid-pass leaves no partially filtered batch behind.
func (f *PositionFilter) Filter(ctx context.Context, accountID string, signals []*models.Signal) ([]*models.Signal, FilterStats, error) {
	stats := FilterStats{Total: len(signals)}
	if len(signals) == 0 {
		return nil, stats, nil
	}

	positions, err := f.broker.ListUnderlyingPositions(ctx, accountID)
	if err != nil {
		return nil, stats, fmt.Errorf("list positions: %w", err)
	}
	equity, err := f.broker.GetAccountEquity(ctx, accountID)
	if err != nil {
		return nil, stats, fmt.Errorf("account equity: %w", err)
	}

	bySymbol := make(map[string]drepo.UnderlyingPosition, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}

	now := f.now()
	var passed, dropped []*models.Signal
	for _, sig := range signals {
		reason := f.check(sig, bySymbol, equity)
		if reason == "" {
			passed = append(passed, sig)
			continue
		}
		if err := sig.Fail(models.SignalStatusExpired, models.ReasonPositionConflict, reason, now); err != nil {
			f.logger.Warn("position filter: cannot expire signal",
				logger.String("signal_id", sig.ID), logger.Error(err))
			continue
		}
		sig.SetMeta("filter_reason", reason)
		dropped = append(dropped, sig)
		f.logger.Info("position filter dropped signal",
			logger.String("signal_id", sig.ID),
			logger.String("symbol", sig.Symbol),
			logger.String("reason", reason))
	}

	if len(dropped) > 0 {
		if err := f.store.UpdateBatch(ctx, dropped); err != nil {
			return nil, stats, fmt.Errorf("commit filtered signals: %w", err)
		}
	}
	stats.Passed = len(passed)
	stats.Filtered = len(dropped)
	return passed, stats, nil
}

// check returns a human-readable rejection reason, or "" when the signal is
// consistent with current holdings.
func (f *PositionFilter) check(sig *models.Signal, positions map[string]drepo.UnderlyingPosition, equity float64) string {
	pos, held := positions[sig.Symbol]
	qty := 0.0
	posDir := models.Direction("")
	if held {
		qty = pos.Quantity
		if qty > 0 {
			posDir = models.DirectionLong
		} else if qty < 0 {
			posDir = models.DirectionShort
		} else {
			held = false
		}
	}
	absQty := math.Abs(qty)

	switch sig.Type {
	case models.SignalTypeEntry:
		if held && posDir == sig.Direction && absQty >= sig.SuggestedQuantity {
			return fmt.Sprintf("already has %s position %.0f >= suggested quantity %.0f", posDir, absQty, sig.SuggestedQuantity)
		}
	case models.SignalTypeAdd:
		if !held || posDir != sig.Direction {
			return fmt.Sprintf("ADD requires an existing %s position", sig.Direction)
		}
	case models.SignalTypeReduce:
		if !held || absQty < sig.SuggestedQuantity {
			return fmt.Sprintf("REDUCE of %.0f exceeds held quantity %.0f", sig.SuggestedQuantity, absQty)
		}
	case models.SignalTypeExit:
		if !held {
			return "EXIT requires an existing position"
		}
	}

	if lot, ok := f.lotSizes[sig.Symbol]; ok && lot > 0 {
		price := sig.SuggestedPrice
		if price <= 0 && held {
			price = pos.LastPrice
		}
		if price > 0 {
			fraction := PositionSize(sig.Strength, sig.RiskScore)
			projected := equity * fraction / price
			if projected < lot {
				return fmt.Sprintf("projected %.0f shares below minimum lot %.0f", projected, lot)
			}
		}
	}
	return ""
}
