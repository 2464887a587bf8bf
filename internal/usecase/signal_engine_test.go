package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

func TestPositionSize(t *testing.T) {
	assert.InDelta(t, 0.10, PositionSize(0, 0), 1e-9)
	assert.InDelta(t, 0.30, PositionSize(100, 0), 1e-9)
	assert.InDelta(t, 0.15, PositionSize(100, 100), 1e-9)
	assert.InDelta(t, 0.05, PositionSize(0, 100), 1e-9)

	// Stronger signals size larger, riskier signals size smaller.
	assert.Greater(t, PositionSize(80, 20), PositionSize(50, 20))
	assert.Less(t, PositionSize(50, 80), PositionSize(50, 20))

	for _, strength := range []float64{0, 25, 50, 75, 100} {
		for _, risk := range []float64{0, 25, 50, 75, 100} {
			f := PositionSize(strength, risk)
			assert.GreaterOrEqual(t, f, 0.05)
			assert.LessOrEqual(t, f, 0.30)
		}
	}
}

func TestCreateSkipsCandidatesBelowThresholds(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 40, 0.9))
	require.NoError(t, err)
	assert.Nil(t, sig)

	sig, err = f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 90, 0.3))
	require.NoError(t, err)
	assert.Nil(t, sig)

	_, err = f.store.FindLive(ctx, "acc-1", "AAPL")
	assert.ErrorIs(t, err, drepo.ErrSignalNotFound)
}

func TestCreateDedupAbsorbsWeakerCandidate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 70, 0.9))
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 80.0, second.Strength)
	assert.Contains(t, second.Metadata, "absorbed_candidate")

	stored, err := f.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, stored.Strength)
}

func TestCreateDedupOverwritesWeakerSignalInPlace(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 70, 0.8))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 90, 0.8))
	require.NoError(t, err)
	require.NotNil(t, second)

	// The slot keeps the original id so (account, symbol) never holds two
	// live signals.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 90.0, second.Strength)
	assert.Equal(t, models.SignalStatusGenerated, second.Status)
	assert.Equal(t, "70", second.Metadata["replaced_strength"])
	assert.True(t, f.events.has("dedup_overwrite"))
}

func TestCreateDedupContended(t *testing.T) {
	f := newEngineFixture(t)
	f.locks.contended = true

	_, err := f.engine.CreateFromStrategyOutput(context.Background(), testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	assert.ErrorIs(t, err, ErrDedupContended)
}

func TestCreateInfersTypeFromPositions(t *testing.T) {
	f := newEngineFixture(t)
	f.broker.positions = []drepo.UnderlyingPosition{
		{Symbol: "AAPL", Quantity: 100, LastPrice: 50},
	}
	ctx := context.Background()

	cases := []struct {
		symbol    string
		direction models.Direction
		want      models.SignalType
	}{
		{"AAPL", models.DirectionLong, models.SignalTypeAdd},
		{"AAPL", models.DirectionShort, models.SignalTypeExit},
		{"MSFT", models.DirectionLong, models.SignalTypeEntry},
	}
	for _, tc := range cases {
		cand := testCandidate(tc.symbol, 80, 0.8)
		cand.Type = ""
		cand.Direction = tc.direction
		sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-"+tc.symbol+string(tc.direction)), cand)
		require.NoError(t, err)
		require.NotNil(t, sig)
		assert.Equal(t, tc.want, sig.Type, "symbol %s direction %s", tc.symbol, tc.direction)
	}
}

func TestValidateRejectsWhenTradeModeOff(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)

	f.engine.mu.Lock()
	f.engine.cfg.Mode = "off"
	f.engine.mu.Unlock()

	ok, err := f.engine.Validate(ctx, sig.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusRejected, stored.Status)
	assert.Equal(t, models.ReasonTradeModeOff, stored.Reason)
}

func TestValidateExpiresSignalPastTTL(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)

	f.engine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	ok, err := f.engine.Validate(ctx, sig.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExpired, stored.Status)
	assert.Equal(t, models.ReasonTTLElapsed, stored.Reason)
	assert.True(t, f.events.has("expired"))
}

func TestValidateRejectsNotionalAboveCap(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	cand := testCandidate("AAPL", 80, 0.8)
	cand.SuggestedQuantity = 100
	cand.SuggestedPrice = 250 // $25k against the $20k cap
	sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), cand)
	require.NoError(t, err)

	ok, err := f.engine.Validate(ctx, sig.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusRejected, stored.Status)
	assert.Equal(t, models.ReasonNotionalExceeded, stored.Reason)
}

func TestValidateHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)

	ok, err := f.engine.Validate(ctx, sig.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusValidated, stored.Status)
	assert.True(t, f.events.has("validated"))
}

func TestValidateRequiresGeneratedStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig := seedSignal(t, f.store, &models.Signal{ID: "s-1", AccountID: "acc-1", Symbol: "AAPL"}, models.SignalStatusValidated)

	_, err := f.engine.Validate(ctx, sig.ID)
	assert.Error(t, err)
}

func TestCancel(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)

	require.NoError(t, f.engine.Cancel(ctx, sig.ID, "operator request"))
	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusCancelled, stored.Status)
	assert.Equal(t, models.ReasonOperatorCancelled, stored.Reason)

	// Terminal states are final.
	err = f.engine.Cancel(ctx, sig.ID, "again")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestExpireStaleSweepsOnlyElapsedSignals(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	base := time.Now()

	f.engine.now = func() time.Time { return base }
	stale, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("AAPL", 80, 0.8))
	require.NoError(t, err)

	f.engine.now = func() time.Time { return base.Add(30 * time.Minute) }
	fresh, err := f.engine.CreateFromStrategyOutput(ctx, testRun("acc-1"), testCandidate("MSFT", 80, 0.8))
	require.NoError(t, err)

	// 70 minutes in: the first signal's one-hour TTL elapsed, the second's
	// has not.
	f.engine.now = func() time.Time { return base.Add(70 * time.Minute) }
	n, err := f.engine.ExpireStale(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gotStale, err := f.store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExpired, gotStale.Status)

	gotFresh, err := f.store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusGenerated, gotFresh.Status)
}

func TestEvaluateScoresExecutedSignal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig := seedSignal(t, f.store, &models.Signal{ID: "s-1", AccountID: "acc-1", Symbol: "AAPL"}, models.SignalStatusExecuted)

	// 50 for direction, 0.05*300=15 for magnitude, 20*(1-5/10)=10 for speed.
	score, err := f.engine.Evaluate(ctx, sig.ID, 0.05, 500, 5)
	require.NoError(t, err)
	assert.InDelta(t, 75, score, 1e-9)

	stored, err := f.store.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, stored.ActualReturn, 1e-9)
	assert.InDelta(t, 500, stored.RealizedPnL, 1e-9)
	assert.InDelta(t, 75, stored.EvaluationScore, 1e-9)
}

func TestEvaluateLosingSignal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig := seedSignal(t, f.store, &models.Signal{ID: "s-1", AccountID: "acc-1", Symbol: "AAPL"}, models.SignalStatusExecuted)

	// No direction points, 0.02*300=6 magnitude, holding at the limit
	// earns nothing.
	score, err := f.engine.Evaluate(ctx, sig.ID, -0.02, -200, 10)
	require.NoError(t, err)
	assert.InDelta(t, 6, score, 1e-9)
}

func TestEvaluateRequiresExecutedStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sig := seedSignal(t, f.store, &models.Signal{ID: "s-1", AccountID: "acc-1", Symbol: "AAPL"}, models.SignalStatusValidated)

	_, err := f.engine.Evaluate(ctx, sig.ID, 0.05, 500, 5)
	assert.Error(t, err)
}

func TestSetThresholds(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.SetThresholds(70, 0.7)
	cfg := f.engine.Config()
	assert.Equal(t, 70.0, cfg.MinStrength)
	assert.Equal(t, 0.7, cfg.MinConfidence)
}
