package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	localrepo "TradeLoop/internal/repository"
	"TradeLoop/pkg/logger"
)

// fakeBroker is a scriptable BrokerClient for tests.
type fakeBroker struct {
	mu sync.Mutex

	equity    float64
	equityErr error
	positions []drepo.UnderlyingPosition
	options   []drepo.OptionPosition
	posErr    error

	placeResult *drepo.PlaceOrderResult
	placeErr    error
	placed      []drepo.PlaceOrderParams

	statuses   map[string]*drepo.OrderStatusInfo
	statusErrs map[string]error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		equity:     1_000_000,
		statuses:   make(map[string]*drepo.OrderStatusInfo),
		statusErrs: make(map[string]error),
	}
}

func (b *fakeBroker) ListUnderlyingPositions(ctx context.Context, accountID string) ([]drepo.UnderlyingPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.posErr != nil {
		return nil, b.posErr
	}
	return b.positions, nil
}

func (b *fakeBroker) ListOptionPositions(ctx context.Context, accountID string) ([]drepo.OptionPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.posErr != nil {
		return nil, b.posErr
	}
	return b.options, nil
}

func (b *fakeBroker) GetAccountEquity(ctx context.Context, accountID string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.equityErr != nil {
		return 0, b.equityErr
	}
	return b.equity, nil
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, accountID string, params drepo.PlaceOrderParams) (*drepo.PlaceOrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placed = append(b.placed, params)
	if b.placeErr != nil {
		return nil, b.placeErr
	}
	if b.placeResult != nil {
		return b.placeResult, nil
	}
	return &drepo.PlaceOrderResult{Success: true, OrderID: fmt.Sprintf("ord-%d", len(b.placed)), Status: drepo.OrderStatusPending}, nil
}

func (b *fakeBroker) GetOrderStatus(ctx context.Context, accountID, orderID string) (*drepo.OrderStatusInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.statusErrs[orderID]; ok {
		return nil, err
	}
	if st, ok := b.statuses[orderID]; ok {
		return st, nil
	}
	return &drepo.OrderStatusInfo{Status: drepo.OrderStatusPending}, nil
}

// fakeLocker grants or refuses every TryLock.
type fakeLocker struct {
	contended bool
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return !l.contended, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error { return nil }

// eventRecorder captures published lifecycle actions.
type eventRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *eventRecorder) PublishSignalEvent(ctx context.Context, s *models.Signal, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *eventRecorder) has(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a == action {
			return true
		}
	}
	return false
}

// auditRecorder captures audit events in order.
type auditRecorder struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *auditRecorder) Record(ctx context.Context, ev models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *auditRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

// nopMetrics satisfies drepo.Metrics without recording anything.
type nopMetrics struct{}

func (nopMetrics) RecordSignalTransition(accountID, status string)        {}
func (nopMetrics) RecordOrderSubmitted(accountID, symbol string)          {}
func (nopMetrics) RecordOrderReverted(accountID, symbol, reason string)   {}
func (nopMetrics) RecordBrokerLatency(op string, seconds float64)         {}
func (nopMetrics) RecordCyclePhase(phase string, seconds float64, b bool) {}
func (nopMetrics) RecordExposure(accountID string, d, g, v, t float64)    {}
func (nopMetrics) RecordError(kind string)                                {}

// stubPrices serves last prices from a fixed map.
type stubPrices struct {
	prices map[string]float64
}

func (s *stubPrices) LastPrice(ctx context.Context, symbol string) (float64, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}

// fakeStats serves behavior scores keyed by symbol.
type fakeStats struct {
	stats map[string]models.BehaviorStats
}

func (f *fakeStats) GetBehaviorStats(ctx context.Context, accountID string, symbols []string) (map[string]models.BehaviorStats, error) {
	out := make(map[string]models.BehaviorStats)
	for _, sym := range symbols {
		if st, ok := f.stats[sym]; ok {
			out[sym] = st
		}
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return lg
}

var testLimits = models.RiskLimits{
	MaxOrderNotionalUSD: 20_000,
	MaxGammaPctEquity:   5,
	MaxVegaPctEquity:    5,
	MaxThetaPctEquity:   2,
}

var testShock = models.ShockPolicy{
	AlertDropPct:        5,
	EmergencyDropPct:    10,
	EmergencyReducePct:  50,
	MaxNewRiskFactor:    1,
	EarningsGammaCapUSD: 10_000,
}

func testResolver(stats map[string]models.BehaviorStats) *RiskLimitResolver {
	return NewRiskLimitResolver(&fakeStats{stats: stats}, RiskProfile{Limits: testLimits, Shock: testShock})
}

// engineFixture bundles a SignalEngine with its scriptable collaborators.
type engineFixture struct {
	store  *localrepo.MemorySignalStore
	broker *fakeBroker
	locks  *fakeLocker
	events *eventRecorder
	engine *SignalEngine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:  localrepo.NewMemorySignalStore(nil),
		broker: newFakeBroker(),
		locks:  &fakeLocker{},
		events: &eventRecorder{},
	}
	f.engine = NewSignalEngine(
		f.store,
		f.broker,
		NewSafetyGuard(),
		testResolver(nil),
		NewExposureAggregator(f.broker, nopMetrics{}),
		f.locks,
		f.events,
		nopMetrics{},
		testLogger(t),
		EngineConfig{
			Mode:           "on",
			SignalTTL:      time.Hour,
			MinStrength:    60,
			MinConfidence:  0.6,
			MaxHoldingDays: 10,
		},
	)
	return f
}

func testRun(accountID string) models.StrategyRun {
	return models.StrategyRun{ID: "run-1", AccountID: accountID, Strategy: "momentum", CompletedAt: time.Now()}
}

func testCandidate(symbol string, strength, confidence float64) models.Candidate {
	return models.Candidate{
		Symbol:            symbol,
		Direction:         models.DirectionLong,
		Type:              models.SignalTypeEntry,
		Strength:          strength,
		Confidence:        confidence,
		RiskScore:         20,
		SuggestedQuantity: 10,
		SuggestedPrice:    100,
	}
}

// seedSignal stores a signal in the given status, walking the lifecycle from
// GENERATED so the state machine stays consistent.
func seedSignal(t *testing.T, store *localrepo.MemorySignalStore, sig *models.Signal, status models.SignalStatus) *models.Signal {
	t.Helper()
	now := time.Now()
	sig.Status = models.SignalStatusGenerated
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	if sig.ExpiresAt.IsZero() {
		sig.ExpiresAt = now.Add(time.Hour)
	}
	path := map[models.SignalStatus][]models.SignalStatus{
		models.SignalStatusGenerated: {},
		models.SignalStatusValidated: {models.SignalStatusValidated},
		models.SignalStatusQueued:    {models.SignalStatusValidated, models.SignalStatusQueued},
		models.SignalStatusExecuting: {models.SignalStatusValidated, models.SignalStatusQueued, models.SignalStatusExecuting},
		models.SignalStatusExecuted:  {models.SignalStatusValidated, models.SignalStatusQueued, models.SignalStatusExecuting, models.SignalStatusExecuted},
	}
	steps, ok := path[status]
	require.True(t, ok, "unsupported seed status %s", status)
	for _, st := range steps {
		require.NoError(t, sig.Transition(st, now))
	}
	require.NoError(t, store.Create(context.Background(), sig))
	return sig
}
