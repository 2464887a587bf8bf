package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	localrepo "TradeLoop/internal/repository"
)

type executorFixture struct {
	store    *localrepo.MemorySignalStore
	broker   *fakeBroker
	prices   *stubPrices
	audit    *auditRecorder
	events   *eventRecorder
	executor *OrderExecutor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		store:  localrepo.NewMemorySignalStore(nil),
		broker: newFakeBroker(),
		prices: &stubPrices{prices: map[string]float64{"AAPL": 50, "MSFT": 100, "TSLA": 200}},
		audit:  &auditRecorder{},
		events: &eventRecorder{},
	}
	f.executor = NewOrderExecutor(
		f.store,
		f.broker,
		NewSafetyGuard(),
		testResolver(nil),
		NewExposureAggregator(f.broker, nopMetrics{}),
		f.prices,
		f.audit,
		f.events,
		nopMetrics{},
		testLogger(t),
		ExecutorConfig{MaxOrders: 5, Grace: time.Millisecond, MaxAttempts: 2},
	)
	// Tests never sleep out the grace period.
	f.executor.wait = func(ctx context.Context, d time.Duration) {}
	return f
}

func (f *executorFixture) seedValidated(t *testing.T, id, symbol string, strength, qty, price float64) *models.Signal {
	t.Helper()
	return seedSignal(t, f.store, &models.Signal{
		ID:                id,
		AccountID:         "acc-1",
		Symbol:            symbol,
		Type:              models.SignalTypeEntry,
		Direction:         models.DirectionLong,
		Strength:          strength,
		Confidence:        0.8,
		RiskScore:         20,
		SuggestedQuantity: qty,
		SuggestedPrice:    price,
	}, models.SignalStatusValidated)
}

func TestExecuteBatchFilledDuringGrace(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.seedValidated(t, "s-1", "AAPL", 80, 100, 50)

	f.broker.placeResult = &drepo.PlaceOrderResult{Success: true, OrderID: "ord-1", Status: drepo.OrderStatusPending}
	f.broker.statuses["ord-1"] = &drepo.OrderStatusInfo{
		Status:         drepo.OrderStatusFilled,
		FilledQuantity: 100,
		AvgFillPrice:   50.10,
	}

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusExecuted, results[0].Status)
	assert.Equal(t, "ord-1", results[0].OrderID)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuted, stored.Status)
	assert.InDelta(t, 50.10, stored.ExecutedPrice, 1e-9)
	assert.InDelta(t, 100, stored.ExecutedQuantity, 1e-9)
	// Limit was 50*1.002=50.10, filled at 50.10: zero slippage.
	assert.InDelta(t, 0, stored.Slippage, 1e-9)
	assert.Equal(t, 1, stored.ExecutionAttempts)
	assert.Equal(t, []string{"submitted", "executed"}, f.audit.actions())
}

func TestExecuteBatchBrokerFailureRevertsToValidated(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.seedValidated(t, "s-1", "AAPL", 80, 100, 50)
	f.broker.placeErr = errors.New("gateway timeout")

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusValidated, results[0].Status)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusValidated, stored.Status)
	assert.Equal(t, models.ReasonBrokerFailure, stored.Reason)
	assert.Equal(t, 1, stored.ExecutionAttempts)
	assert.True(t, f.events.has("reverted"))

	// Still retryable: the next batch picks it up again.
	f.broker.placeErr = nil
	f.broker.placeResult = &drepo.PlaceOrderResult{Success: true, OrderID: "ord-2", Status: drepo.OrderStatusPending}
	f.broker.statuses["ord-2"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusFilled, FilledQuantity: 100, AvgFillPrice: 50}
	results, err = f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusExecuted, results[0].Status)
}

func TestExecuteBatchCancelledDuringGraceReverts(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.seedValidated(t, "s-1", "AAPL", 80, 100, 50)

	f.broker.placeResult = &drepo.PlaceOrderResult{Success: true, OrderID: "ord-1", Status: drepo.OrderStatusPending}
	f.broker.statuses["ord-1"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusCancelled}

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusValidated, results[0].Status)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusValidated, stored.Status)
	assert.Equal(t, models.ReasonBrokerCancelled, stored.Reason)
	assert.Empty(t, stored.BrokerOrderID)
	assert.Equal(t, "ord-1", stored.Metadata["last_order_id"])
}

func TestExecuteBatchPendingStatusLeavesExecuting(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.seedValidated(t, "s-1", "AAPL", 80, 100, 50)
	f.broker.placeResult = &drepo.PlaceOrderResult{Success: true, OrderID: "ord-1", Status: drepo.OrderStatusPending}

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusExecuting, results[0].Status)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuting, stored.Status)
	assert.Equal(t, "ord-1", stored.BrokerOrderID)
}

func TestExecuteBatchGuardRejectsOversizedOrder(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	// 100 * ~250 = $25k against the $20k cap.
	f.seedValidated(t, "s-1", "TSLA", 80, 100, 250)
	f.prices.prices["TSLA"] = 250

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusRejected, results[0].Status)
	assert.Empty(t, f.broker.placed)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusRejected, stored.Status)
	assert.Equal(t, models.ReasonNotionalExceeded, stored.Reason)
}

func TestExecuteBatchRetriesExhausted(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	sig := f.seedValidated(t, "s-1", "AAPL", 80, 100, 50)
	sig.ExecutionAttempts = 2 // MaxAttempts for this fixture
	require.NoError(t, f.store.Update(ctx, sig))

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusRejected, results[0].Status)
	assert.Equal(t, string(models.ReasonRetriesExhausted), results[0].Detail)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonRetriesExhausted, stored.Reason)
}

func TestExecuteBatchNoPriceReverts(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	// No quote and no suggested price to fall back on.
	f.seedValidated(t, "s-1", "NVDA", 80, 100, 0)

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SignalStatusValidated, results[0].Status)

	stored, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonDataUnavailable, stored.Reason)
}

func TestExecuteBatchDeduplicatesPerSymbol(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.seedValidated(t, "s-weak", "AAPL", 70, 10, 50)
	f.seedValidated(t, "s-strong", "AAPL", 90, 10, 50)
	f.seedValidated(t, "s-other", "MSFT", 60, 10, 100)
	f.broker.statuses["ord-1"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusFilled, FilledQuantity: 10, AvgFillPrice: 50}
	f.broker.statuses["ord-2"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusFilled, FilledQuantity: 10, AvgFillPrice: 100}

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Strongest first, one per symbol.
	assert.Equal(t, "s-strong", results[0].SignalID)
	assert.Equal(t, "s-other", results[1].SignalID)

	weak, err := f.store.Get(ctx, "s-weak")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusValidated, weak.Status)
}

func TestExecuteBatchHonorsMaxOrders(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.seedValidated(t, "s-1", "AAPL", 90, 10, 50)
	f.seedValidated(t, "s-2", "MSFT", 80, 10, 100)
	f.seedValidated(t, "s-3", "TSLA", 70, 1, 200)

	results, err := f.executor.ExecuteBatch(ctx, "acc-1", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestExecuteBatchEmptyBook(t *testing.T) {
	f := newExecutorFixture(t)
	results, err := f.executor.ExecuteBatch(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestComputeOrderParams(t *testing.T) {
	f := newExecutorFixture(t)
	f.executor.cfg.LotSizes = map[string]float64{"AAPL": 100}
	ctx := context.Background()

	// Equity sizing at lot granularity: 1M * PositionSize(80,20) / 50,
	// floored to whole hundreds.
	sig := &models.Signal{Symbol: "AAPL", Direction: models.DirectionLong, Strength: 80, RiskScore: 20}
	params, err := f.executor.computeOrderParams(ctx, sig, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, drepo.OrderSideBuy, params.Side)
	assert.InDelta(t, 4600, params.Quantity, 1e-9)
	// Buys pay up by the default 0.2% skew.
	assert.InDelta(t, 50.10, params.LimitPrice, 1e-9)

	// Exits sell and give the skew back.
	sig = &models.Signal{Symbol: "AAPL", Type: models.SignalTypeExit, Direction: models.DirectionLong, SuggestedQuantity: 200}
	params, err = f.executor.computeOrderParams(ctx, sig, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, drepo.OrderSideSell, params.Side)
	assert.InDelta(t, 200, params.Quantity, 1e-9)
	assert.InDelta(t, 49.90, params.LimitPrice, 1e-9)
}

func TestComputeOrderParamsQuantityRoundsToZero(t *testing.T) {
	f := newExecutorFixture(t)
	f.executor.cfg.LotSizes = map[string]float64{"AAPL": 500}
	sig := &models.Signal{Symbol: "AAPL", Direction: models.DirectionLong, SuggestedQuantity: 300}

	_, err := f.executor.computeOrderParams(context.Background(), sig, 1_000_000)
	assert.Error(t, err)
}

func TestSyncExecutingOrders(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	filled := seedSignal(t, f.store, &models.Signal{ID: "s-filled", AccountID: "acc-1", Symbol: "AAPL", SuggestedPrice: 50}, models.SignalStatusExecuting)
	filled.BrokerOrderID = "ord-filled"
	require.NoError(t, f.store.Update(ctx, filled))

	pending := seedSignal(t, f.store, &models.Signal{ID: "s-pending", AccountID: "acc-1", Symbol: "MSFT"}, models.SignalStatusExecuting)
	pending.BrokerOrderID = "ord-pending"
	require.NoError(t, f.store.Update(ctx, pending))

	polled := seedSignal(t, f.store, &models.Signal{ID: "s-err", AccountID: "acc-1", Symbol: "TSLA"}, models.SignalStatusExecuting)
	polled.BrokerOrderID = "ord-err"
	require.NoError(t, f.store.Update(ctx, polled))

	orphan := seedSignal(t, f.store, &models.Signal{ID: "s-orphan", AccountID: "acc-1", Symbol: "NVDA"}, models.SignalStatusExecuting)
	require.NoError(t, f.store.Update(ctx, orphan))

	f.broker.statuses["ord-filled"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusFilled, FilledQuantity: 100, AvgFillPrice: 50.5}
	f.broker.statuses["ord-pending"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusPending}
	f.broker.statusErrs["ord-err"] = errors.New("broker unavailable")

	changed, err := f.executor.SyncExecutingOrders(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	got, err := f.store.Get(ctx, "s-filled")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuted, got.Status)
	assert.InDelta(t, 50.5, got.ExecutedPrice, 1e-9)

	got, err = f.store.Get(ctx, "s-pending")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuting, got.Status)

	// Poll failures leave the signal for the next sweep.
	got, err = f.store.Get(ctx, "s-err")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuting, got.Status)

	// An EXECUTING signal without an order id is unrecoverable as-is.
	got, err = f.store.Get(ctx, "s-orphan")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusValidated, got.Status)
	assert.Equal(t, models.ReasonBrokerFailure, got.Reason)
}

func TestSyncExecutingOrdersIdempotent(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	sig := seedSignal(t, f.store, &models.Signal{ID: "s-1", AccountID: "acc-1", Symbol: "AAPL"}, models.SignalStatusExecuting)
	sig.BrokerOrderID = "ord-1"
	require.NoError(t, f.store.Update(ctx, sig))
	f.broker.statuses["ord-1"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusExecuting}

	for i := 0; i < 3; i++ {
		changed, err := f.executor.SyncExecutingOrders(ctx, "acc-1")
		require.NoError(t, err)
		assert.Zero(t, changed)
	}
	got, err := f.store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuting, got.Status)
	assert.Equal(t, "ord-1", got.BrokerOrderID)
}
