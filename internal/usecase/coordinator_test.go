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
)

type coordinatorFixture struct {
	buffer      *CandidateBuffer
	store       *engineFixture
	broker      *fakeBroker
	coordinator *LoopCoordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	ef := newEngineFixture(t)
	lg := testLogger(t)
	prices := &stubPrices{prices: map[string]float64{"AAPL": 100, "MSFT": 100}}
	audit := &auditRecorder{}

	executor := NewOrderExecutor(
		ef.store, ef.broker, NewSafetyGuard(), testResolver(nil),
		NewExposureAggregator(ef.broker, nopMetrics{}),
		prices, audit, ef.events, nopMetrics{}, lg,
		ExecutorConfig{MaxOrders: 5, Grace: time.Millisecond},
	)
	executor.wait = func(ctx context.Context, d time.Duration) {}

	buffer := NewCandidateBuffer()
	coordinator := NewLoopCoordinator(
		buffer,
		ef.engine,
		NewPositionFilter(ef.broker, ef.store, lg, nil),
		executor,
		NewPerformanceAnalyzer(ef.store),
		NewAdaptiveOptimizer(ef.store, ef.engine),
		nopMetrics{},
		lg,
		CoordinatorConfig{MaxOrdersPerCycle: 5, OptimizeEnabled: true},
	)
	return &coordinatorFixture{buffer: buffer, store: ef, broker: ef.broker, coordinator: coordinator}
}

func TestRunCycleEndToEnd(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	// Orders fill immediately during the grace re-poll.
	f.broker.placeResult = &drepo.PlaceOrderResult{Success: true, OrderID: "ord-1", Status: drepo.OrderStatusPending}
	f.broker.statuses["ord-1"] = &drepo.OrderStatusInfo{Status: drepo.OrderStatusFilled, FilledQuantity: 10, AvgFillPrice: 100}

	f.buffer.Add(CandidateBatch{
		Run: testRun("acc-1"),
		Candidates: []models.Candidate{
			testCandidate("AAPL", 80, 0.8),
			testCandidate("MSFT", 40, 0.8), // below the strength gate
		},
	})

	report := f.coordinator.RunCycle(ctx, "acc-1")
	require.Len(t, report.Phases, 5)
	for _, ph := range report.Phases {
		assert.True(t, ph.Ok, "phase %s: %s", ph.Phase, ph.Error)
	}
	assert.Equal(t, models.PhaseGenerate, report.Phases[0].Phase)
	assert.Equal(t, 1, report.Phases[0].Count) // one candidate passed the gate
	assert.Equal(t, models.PhaseValidate, report.Phases[1].Phase)
	assert.Equal(t, 1, report.Phases[1].Count)
	assert.Equal(t, models.PhaseExecute, report.Phases[2].Phase)
	assert.Equal(t, 1, report.Phases[2].Count)

	// The one signal ran the full lifecycle within the cycle.
	_, err := f.store.store.FindLive(ctx, "acc-1", "AAPL")
	require.ErrorIs(t, err, drepo.ErrSignalNotFound)
	executed, err := f.store.store.ListByStatus(ctx, "acc-1", models.SignalStatusExecuted)
	require.NoError(t, err)
	require.Len(t, executed, 1)
	assert.Equal(t, "AAPL", executed[0].Symbol)

	// Evaluate and optimize phases published their snapshots.
	assert.NotNil(t, f.coordinator.LastPerformance("acc-1"))
	opt := f.coordinator.LastOptimization("acc-1")
	require.NotNil(t, opt)
	assert.Equal(t, models.OptimizationNoData, opt.Status) // one trade is under the sample floor

	// The buffer drained: a second cycle generates nothing new.
	report = f.coordinator.RunCycle(ctx, "acc-1")
	assert.Zero(t, report.Phases[0].Count)
}

func TestRunCyclePhaseFailureDoesNotAbortLaterPhases(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	// Type inference needs positions; the broker outage fails the generate
	// phase only.
	f.broker.posErr = errors.New("positions unavailable")
	cand := testCandidate("AAPL", 80, 0.8)
	cand.Type = ""
	f.buffer.Add(CandidateBatch{Run: testRun("acc-1"), Candidates: []models.Candidate{cand}})

	report := f.coordinator.RunCycle(ctx, "acc-1")
	require.Len(t, report.Phases, 5)
	assert.False(t, report.Phases[0].Ok)
	assert.NotEmpty(t, report.Phases[0].Error)
	for _, ph := range report.Phases[1:] {
		assert.True(t, ph.Ok, "phase %s: %s", ph.Phase, ph.Error)
	}
}

func TestRunCycleOptimizeDisabled(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.coordinator.cfg.OptimizeEnabled = false

	report := f.coordinator.RunCycle(context.Background(), "acc-1")
	require.Len(t, report.Phases, 5)
	assert.True(t, report.Phases[4].Ok)
	assert.Zero(t, report.Phases[4].Count)
	assert.Nil(t, f.coordinator.LastOptimization("acc-1"))
}

func TestRunCycleExpiresStaleBeforeValidation(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	sig, err := f.store.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Hour)
	f.store.engine.now = func() time.Time { return later }

	report := f.coordinator.RunCycle(ctx, "acc-1")
	assert.True(t, report.Phases[1].Ok)
	assert.Zero(t, report.Phases[1].Count)

	stored, err := f.store.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExpired, stored.Status)
}
