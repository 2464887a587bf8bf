package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/logger"
)

// ExecutorConfig carries order execution parameters.
type ExecutorConfig struct {
	MaxOrders    int
	Grace        time.Duration // wait before the post-submit re-check
	PriceSkewPct float64       // limit price skew, e.g. 0.002 = 0.2%
	MaxAttempts  int           // execution attempts before a signal is parked
	LotSizes     map[string]float64
}

// ExecutionResult reports the outcome of one signal in a batch.
type ExecutionResult struct {
	SignalID string              `json:"signal_id"`
	Symbol   string              `json:"symbol"`
	Status   models.SignalStatus `json:"status"`
	OrderID  string              `json:"order_id,omitempty"`
	Detail   string              `json:"detail,omitempty"`
}

// OrderExecutor turns VALIDATED signals into broker orders and reconciles
// broker-reported status. Broker failures never abort a batch: they are
// converted to signal-state transitions plus audit records, and the signal
// reappears in the pending list as retryable.
type OrderExecutor struct {
	store      drepo.SignalStore
	broker     drepo.BrokerClient
	guard      *SafetyGuard
	resolver   *RiskLimitResolver
	aggregator *ExposureAggregator
	prices     drepo.PriceSource
	audit      drepo.AuditTrail
	events     drepo.EventPublisher
	metrics    drepo.Metrics
	logger     *logger.Logger
	cfg        ExecutorConfig
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration)
}

// NewOrderExecutor creates an order executor.
func NewOrderExecutor(
	store drepo.SignalStore,
	broker drepo.BrokerClient,
	guard *SafetyGuard,
	resolver *RiskLimitResolver,
	aggregator *ExposureAggregator,
	prices drepo.PriceSource,
	audit drepo.AuditTrail,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	lg *logger.Logger,
	cfg ExecutorConfig,
) *OrderExecutor {
	if cfg.Grace <= 0 {
		cfg.Grace = 3 * time.Second
	}
	if cfg.PriceSkewPct <= 0 {
		cfg.PriceSkewPct = 0.002
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &OrderExecutor{
		store:      store,
		broker:     broker,
		guard:      guard,
		resolver:   resolver,
		aggregator: aggregator,
		prices:     prices,
		audit:      audit,
		events:     events,
		metrics:    metrics,
		logger:     lg,
		cfg:        cfg,
		now:        time.Now,
		wait:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ExecuteBatch pulls the highest-priority VALIDATED signals, de-duplicates
// by symbol (strongest wins), and executes them in strict descending
// strength order. Each signal's state transition is committed before the
// next signal begins, so a crash mid-batch leaves a consistent prefix of
// completed orders and untouched VALIDATED signals behind it.
func (x *OrderExecutor) ExecuteBatch(ctx context.Context, accountID string, maxOrders int) ([]ExecutionResult, error) {
	if maxOrders <= 0 {
		maxOrders = x.cfg.MaxOrders
	}
	validated, err := x.store.ListByStatus(ctx, accountID, models.SignalStatusValidated)
	if err != nil {
		return nil, fmt.Errorf("list validated signals: %w", err)
	}

	// ListByStatus returns strongest first; keep the first per symbol.
	seen := make(map[string]bool, len(validated))
	var batch []*models.Signal
	for _, sig := range validated {
		if seen[sig.Symbol] {
			continue
		}
		seen[sig.Symbol] = true
		batch = append(batch, sig)
		if len(batch) >= maxOrders {
			break
		}
	}
	if len(batch) == 0 {
		return nil, nil
	}

	symbols := make([]string, 0, len(batch))
	for _, sig := range batch {
		symbols = append(symbols, sig.Symbol)
	}
	risk, err := x.resolver.Resolve(ctx, accountID, symbols)
	if err != nil {
		return nil, fmt.Errorf("resolve risk limits: %w", err)
	}
	equity, err := x.broker.GetAccountEquity(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account equity: %w", err)
	}

	results := make([]ExecutionResult, 0, len(batch))
	for _, sig := range batch {
		results = append(results, x.executeOne(ctx, sig, risk, equity))
	}
	return results, nil
}

func (x *OrderExecutor) executeOne(ctx context.Context, sig *models.Signal, risk *models.EffectiveRiskState, equity float64) ExecutionResult {
	now := x.now()
	res := ExecutionResult{SignalID: sig.ID, Symbol: sig.Symbol}

	if err := sig.Transition(models.SignalStatusQueued, now); err != nil {
		res.Status, res.Detail = sig.Status, err.Error()
		return res
	}
	sig.ExecutionAttempts++
	if err := x.store.Update(ctx, sig); err != nil {
		res.Status, res.Detail = sig.Status, fmt.Sprintf("queue signal: %v", err)
		return res
	}
	x.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusQueued))

	if sig.ExecutionAttempts > x.cfg.MaxAttempts {
		x.terminate(ctx, sig, models.ReasonRetriesExhausted,
			fmt.Sprintf("execution attempts exhausted (%d)", x.cfg.MaxAttempts))
		res.Status, res.Detail = sig.Status, string(models.ReasonRetriesExhausted)
		return res
	}

	params, err := x.computeOrderParams(ctx, sig, equity)
	if err != nil {
		// Price or equity lookup failed: this signal only, batch continues.
		x.revert(ctx, sig, models.ReasonDataUnavailable, err.Error())
		res.Status, res.Detail = sig.Status, err.Error()
		return res
	}

	// Pre-submission re-check against the same guard the engine used at
	// validation time, closing the stale-data race between the two.
	if check := x.guard.CheckOrder(params.Side, params.Quantity*params.LimitPrice, risk.Limits); !check.Allowed {
		x.terminate(ctx, sig, check.Reason, check.Detail)
		res.Status, res.Detail = sig.Status, check.Detail
		return res
	}

	start := x.now()
	placed, err := x.broker.PlaceOrder(ctx, sig.AccountID, params)
	x.metrics.RecordBrokerLatency("place_order", x.now().Sub(start).Seconds())
	if err != nil || placed == nil || !placed.Success {
		detail := "broker rejected submission"
		if err != nil {
			detail = err.Error()
		} else if placed != nil && placed.Message != "" {
			detail = placed.Message
		}
		x.revert(ctx, sig, models.ReasonBrokerFailure, detail)
		res.Status, res.Detail = sig.Status, detail
		return res
	}

	now = x.now()
	if err := sig.Transition(models.SignalStatusExecuting, now); err != nil {
		res.Status, res.Detail = sig.Status, err.Error()
		return res
	}
	sig.BrokerOrderID = placed.OrderID
	if err := x.store.Update(ctx, sig); err != nil {
		res.Status, res.Detail = sig.Status, fmt.Sprintf("mark executing: %v", err)
		return res
	}
	x.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusExecuting))
	x.metrics.RecordOrderSubmitted(sig.AccountID, sig.Symbol)
	x.recordAudit(ctx, sig, "submitted", fmt.Sprintf("qty=%.0f limit=%.2f", params.Quantity, params.LimitPrice))
	x.publish(ctx, sig, "submitted")

	// A broker can silently cancel an order (e.g. insufficient funds)
	// faster than the happy-path response implies. Wait out the grace
	// period and re-poll once before declaring success.
	x.wait(ctx, x.cfg.Grace)
	status, err := x.broker.GetOrderStatus(ctx, sig.AccountID, placed.OrderID)
	if err != nil {
		// Leave EXECUTING; the periodic sync is the authoritative
		// reconciliation path.
		x.logger.Warn("grace-period status check failed",
			logger.String("signal_id", sig.ID),
			logger.String("order_id", placed.OrderID),
			logger.Error(err))
		res.Status, res.OrderID = sig.Status, placed.OrderID
		return res
	}

	switch {
	case status.Status == drepo.OrderStatusFilled:
		x.finalize(ctx, sig, params, status)
	case status.Status.IsClosed():
		x.revert(ctx, sig, models.ReasonBrokerCancelled,
			fmt.Sprintf("order %s %s during grace period", placed.OrderID, status.Status))
	}
	res.Status, res.OrderID = sig.Status, placed.OrderID
	return res
}

// computeOrderParams derives lot-adjusted quantity and a skewed limit price
// for the signal. Buys pay up by the skew, sells give it back.
func (x *OrderExecutor) computeOrderParams(ctx context.Context, sig *models.Signal, equity float64) (drepo.PlaceOrderParams, error) {
	side := drepo.OrderSideBuy
	if sig.Direction == models.DirectionShort || sig.Type == models.SignalTypeExit || sig.Type == models.SignalTypeReduce {
		side = drepo.OrderSideSell
	}

	price, err := x.prices.LastPrice(ctx, sig.Symbol)
	if err != nil || price <= 0 {
		if sig.SuggestedPrice > 0 {
			price = sig.SuggestedPrice
		} else {
			return drepo.PlaceOrderParams{}, fmt.Errorf("no price for %s: %w", sig.Symbol, err)
		}
	}

	qty := sig.SuggestedQuantity
	if qty <= 0 {
		if equity <= 0 {
			return drepo.PlaceOrderParams{}, fmt.Errorf("no equity to size %s", sig.Symbol)
		}
		qty = equity * PositionSize(sig.Strength, sig.RiskScore) / price
	}
	lot := x.cfg.LotSizes[sig.Symbol]
	if lot <= 0 {
		lot = 1
	}
	qty = lotAdjust(qty, lot)
	if qty <= 0 {
		return drepo.PlaceOrderParams{}, fmt.Errorf("quantity for %s rounds to zero at lot %.0f", sig.Symbol, lot)
	}

	skew := decimal.NewFromFloat(x.cfg.PriceSkewPct)
	if side == drepo.OrderSideSell {
		skew = skew.Neg()
	}
	limit, _ := decimal.NewFromFloat(price).
		Mul(decimal.NewFromInt(1).Add(skew)).
		Round(2).
		Float64()

	return drepo.PlaceOrderParams{
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   qty,
		LimitPrice: limit,
	}, nil
}

// lotAdjust floors quantity to a whole number of lots.
func lotAdjust(qty, lot float64) float64 {
	q := decimal.NewFromFloat(qty)
	l := decimal.NewFromFloat(lot)
	adjusted, _ := q.Div(l).Floor().Mul(l).Float64()
	return adjusted
}

// revert moves a signal back to VALIDATED so it stays visible and
// retryable, recording the failure reason and an audit event.
func (x *OrderExecutor) revert(ctx context.Context, sig *models.Signal, code models.ReasonCode, detail string) {
	now := x.now()
	if sig.BrokerOrderID != "" {
		sig.SetMeta("last_order_id", sig.BrokerOrderID)
	}
	if err := sig.Transition(models.SignalStatusValidated, now); err != nil {
		x.logger.Error("cannot revert signal",
			logger.String("signal_id", sig.ID), logger.Error(err))
		return
	}
	sig.Reason = code
	sig.ReasonDetail = detail
	sig.BrokerOrderID = ""
	if err := x.store.Update(ctx, sig); err != nil {
		x.logger.Error("commit revert failed",
			logger.String("signal_id", sig.ID), logger.Error(err))
		return
	}
	x.metrics.RecordOrderReverted(sig.AccountID, sig.Symbol, string(code))
	x.recordAudit(ctx, sig, "reverted", detail)
	x.publish(ctx, sig, "reverted")
	x.logger.Warn("signal reverted to VALIDATED",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("reason", string(code)),
		logger.String("detail", detail))
}

// terminate rejects a queued signal that failed a pre-submission check.
func (x *OrderExecutor) terminate(ctx context.Context, sig *models.Signal, code models.ReasonCode, detail string) {
	now := x.now()
	// The lifecycle has no QUEUED->REJECTED edge; step back through
	// VALIDATED first.
	if err := sig.Transition(models.SignalStatusValidated, now); err == nil {
		_ = sig.Fail(models.SignalStatusRejected, code, detail, now)
	}
	if err := x.store.Update(ctx, sig); err != nil {
		x.logger.Error("commit terminate failed",
			logger.String("signal_id", sig.ID), logger.Error(err))
		return
	}
	x.metrics.RecordSignalTransition(sig.AccountID, string(sig.Status))
	x.recordAudit(ctx, sig, "rejected", detail)
	x.publish(ctx, sig, "rejected")
}

// finalize marks a filled signal EXECUTED and records realized fill data.
func (x *OrderExecutor) finalize(ctx context.Context, sig *models.Signal, params drepo.PlaceOrderParams, status *drepo.OrderStatusInfo) {
	now := x.now()
	if err := sig.Transition(models.SignalStatusExecuted, now); err != nil {
		x.logger.Error("cannot finalize signal",
			logger.String("signal_id", sig.ID), logger.Error(err))
		return
	}
	sig.ExecutedPrice = status.AvgFillPrice
	sig.ExecutedQuantity = status.FilledQuantity
	if params.LimitPrice > 0 && status.AvgFillPrice > 0 {
		sig.Slippage = (status.AvgFillPrice - params.LimitPrice) / params.LimitPrice
	}
	if err := x.store.Update(ctx, sig); err != nil {
		x.logger.Error("commit executed failed",
			logger.String("signal_id", sig.ID), logger.Error(err))
		return
	}
	x.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusExecuted))
	x.recordAudit(ctx, sig, "executed",
		fmt.Sprintf("filled=%.0f avg=%.2f", status.FilledQuantity, status.AvgFillPrice))
	x.publish(ctx, sig, "executed")
	x.logger.Info("signal executed",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.Any("fill_price", status.AvgFillPrice))
}

// SyncExecutingOrders re-polls every EXECUTING signal and reconciles its
// state with the broker's record. Idempotent: with no broker-side change it
// performs no mutation, so it is safe on a timer. This is the authoritative
// path for EXECUTING signals whose grace-period check was missed.
func (x *OrderExecutor) SyncExecutingOrders(ctx context.Context, accountID string) (int, error) {
	executing, err := x.store.ListByStatus(ctx, accountID, models.SignalStatusExecuting)
	if err != nil {
		return 0, fmt.Errorf("list executing signals: %w", err)
	}
	changed := 0
	for _, sig := range executing {
		if sig.BrokerOrderID == "" {
			x.revert(ctx, sig, models.ReasonBrokerFailure, "executing signal has no broker order id")
			changed++
			continue
		}
		start := x.now()
		status, err := x.broker.GetOrderStatus(ctx, sig.AccountID, sig.BrokerOrderID)
		x.metrics.RecordBrokerLatency("get_order_status", x.now().Sub(start).Seconds())
		if err != nil {
			x.logger.Warn("sync: order status poll failed",
				logger.String("signal_id", sig.ID),
				logger.String("order_id", sig.BrokerOrderID),
				logger.Error(err))
			x.metrics.RecordError("sync_poll")
			continue
		}
		switch {
		case status.Status == drepo.OrderStatusFilled:
			params := drepo.PlaceOrderParams{Symbol: sig.Symbol, LimitPrice: sig.SuggestedPrice}
			x.finalize(ctx, sig, params, status)
			x.recordAudit(ctx, sig, "reconciled", "filled during sync")
			changed++
		case status.Status.IsClosed():
			x.revert(ctx, sig, models.ReasonBrokerCancelled,
				fmt.Sprintf("order %s %s found during sync", sig.BrokerOrderID, status.Status))
			changed++
		}
	}
	return changed, nil
}

func (x *OrderExecutor) recordAudit(ctx context.Context, sig *models.Signal, action, detail string) {
	if x.audit == nil {
		return
	}
	x.audit.Record(ctx, models.AuditEvent{
		AccountID: sig.AccountID,
		SignalID:  sig.ID,
		Symbol:    sig.Symbol,
		Action:    action,
		OrderID:   sig.BrokerOrderID,
		Detail:    detail,
		At:        x.now(),
	})
}

func (x *OrderExecutor) publish(ctx context.Context, sig *models.Signal, action string) {
	if x.events == nil {
		return
	}
	if err := x.events.PublishSignalEvent(ctx, sig, action); err != nil {
		x.logger.Warn("publish signal event failed",
			logger.String("signal_id", sig.ID),
			logger.String("action", action),
			logger.Error(err))
	}
}
