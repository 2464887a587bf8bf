package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/logger"
)

var ErrDedupContended = errors.New("signal slot locked by concurrent writer")

// Locker provides the short-lived lock guarding a (account, symbol) dedup
// decision. pkg/cache implementations (redis or memory) satisfy it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// EngineConfig carries the signal engine's tunable parameters. MinStrength
// and MinConfidence are the thresholds the adaptive optimizer proposes
// changes to.
type EngineConfig struct {
	Mode           string // on, off, dry-run
	SignalTTL      time.Duration
	MinStrength    float64
	MinConfidence  float64
	MaxHoldingDays int
}

// PositionSize returns the fraction of equity to deploy for a signal.
// Strength raises the base allocation, risk score scales it down, and the
// result is clamped to [0.05, 0.30].
func PositionSize(strength, riskScore float64) float64 {
	base := 0.10 + 0.20*(strength/100)
	riskAdjustment := 1 - 0.5*(riskScore/100)
	f := base * riskAdjustment
	if f < 0.05 {
		return 0.05
	}
	if f > 0.30 {
		return 0.30
	}
	return f
}

// SignalEngine owns the Signal entity: creation and de-duplication from
// strategy output, validation orchestration, and lifecycle transitions.
type SignalEngine struct {
	store      drepo.SignalStore
	broker     drepo.BrokerClient
	guard      *SafetyGuard
	resolver   *RiskLimitResolver
	aggregator *ExposureAggregator
	locks      Locker
	events     drepo.EventPublisher
	metrics    drepo.Metrics
	logger     *logger.Logger
	now        func() time.Time

	mu  sync.RWMutex
	cfg EngineConfig
}

// NewSignalEngine creates a signal engine.
func NewSignalEngine(
	store drepo.SignalStore,
	broker drepo.BrokerClient,
	guard *SafetyGuard,
	resolver *RiskLimitResolver,
	aggregator *ExposureAggregator,
	locks Locker,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	lg *logger.Logger,
	cfg EngineConfig,
) *SignalEngine {
	return &SignalEngine{
		store:      store,
		broker:     broker,
		guard:      guard,
		resolver:   resolver,
		aggregator: aggregator,
		locks:      locks,
		events:     events,
		metrics:    metrics,
		logger:     lg,
		now:        time.Now,
		cfg:        cfg,
	}
}

// Config returns the engine's current tunable parameters.
func (e *SignalEngine) Config() EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetThresholds applies new strength/confidence gates. Called only from the
// optimizer's explicit apply path.
func (e *SignalEngine) SetThresholds(minStrength, minConfidence float64) {
	e.mu.Lock()
	e.cfg.MinStrength = minStrength
	e.cfg.MinConfidence = minConfidence
	e.mu.Unlock()
}

// CreateFromStrategyOutput turns one strategy candidate into a signal. The
// signal type is inferred from current holdings when the candidate does not
// set it. The dedup decision is held under a per-(account, symbol) lock: if
// a live signal already exists the stronger one wins in place (same id) and
// the weaker is absorbed. Candidates under the configured strength or
// confidence gates are skipped and return (nil, nil).
func (e *SignalEngine) CreateFromStrategyOutput(ctx context.Context, run models.StrategyRun, cand models.Candidate) (*models.Signal, error) {
	cfg := e.Config()
	if cand.Strength < cfg.MinStrength || cand.Confidence < cfg.MinConfidence {
		e.logger.Debug("candidate below thresholds",
			logger.String("symbol", cand.Symbol),
			logger.Any("strength", cand.Strength),
			logger.Any("confidence", cand.Confidence))
		return nil, nil
	}

	sigType := cand.Type
	if sigType == "" {
		inferred, err := e.inferType(ctx, run.AccountID, cand)
		if err != nil {
			return nil, fmt.Errorf("infer signal type: %w", err)
		}
		sigType = inferred
	}

	lockKey := fmt.Sprintf("signal:dedup:%s:%s", run.AccountID, cand.Symbol)
	ok, err := e.locks.TryLock(ctx, lockKey, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dedup lock: %w", err)
	}
	if !ok {
		return nil, ErrDedupContended
	}
	defer func() { _ = e.locks.Unlock(ctx, lockKey) }()

	now := e.now()
	existing, err := e.store.FindLive(ctx, run.AccountID, cand.Symbol)
	if err != nil && !errors.Is(err, drepo.ErrSignalNotFound) {
		return nil, fmt.Errorf("find live signal: %w", err)
	}

	if existing != nil {
		if existing.Strength >= cand.Strength {
			// Existing is at least as strong; absorb the newcomer.
			existing.SetMeta("absorbed_candidate", fmt.Sprintf("run=%s strength=%.0f", run.ID, cand.Strength))
			existing.UpdatedAt = now
			if err := e.store.Update(ctx, existing); err != nil {
				return nil, fmt.Errorf("absorb candidate: %w", err)
			}
			return existing, nil
		}
		// Newcomer is stronger: overwrite in place, keeping the id so the
		// (account, symbol) slot never holds two live signals.
		replaced := existing.Strength
		e.applyCandidate(existing, run, cand, sigType, now)
		existing.SetMeta("replaced_strength", fmt.Sprintf("%.0f", replaced))
		if err := e.store.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("overwrite weaker signal: %w", err)
		}
		e.publish(ctx, existing, "dedup_overwrite")
		return existing, nil
	}

	sig := &models.Signal{
		ID:        uuid.NewString(),
		AccountID: run.AccountID,
		CreatedAt: now,
	}
	e.applyCandidate(sig, run, cand, sigType, now)
	if err := e.store.Create(ctx, sig); err != nil {
		return nil, fmt.Errorf("create signal: %w", err)
	}
	e.metrics.RecordSignalTransition(run.AccountID, string(models.SignalStatusGenerated))
	e.publish(ctx, sig, "created")
	e.logger.Info("signal created",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("type", string(sig.Type)),
		logger.Any("strength", sig.Strength))
	return sig, nil
}

func (e *SignalEngine) applyCandidate(sig *models.Signal, run models.StrategyRun, cand models.Candidate, sigType models.SignalType, now time.Time) {
	cfg := e.Config()
	sig.Symbol = cand.Symbol
	sig.Type = sigType
	sig.Source = models.SourceStrategy
	sig.Direction = cand.Direction
	sig.Strength = cand.Strength
	sig.Confidence = cand.Confidence
	sig.RiskScore = cand.RiskScore
	sig.SuggestedQuantity = cand.SuggestedQuantity
	sig.SuggestedPrice = cand.SuggestedPrice
	sig.StopLoss = cand.StopLoss
	sig.TakeProfit = cand.TakeProfit
	sig.FactorScores = cand.FactorScores
	sig.Status = models.SignalStatusGenerated
	sig.StrategyRunID = run.ID
	sig.Reason = models.ReasonNone
	sig.ReasonDetail = ""
	sig.BrokerOrderID = ""
	sig.ExecutionAttempts = 0
	sig.ExpiresAt = now.Add(cfg.SignalTTL)
	sig.UpdatedAt = now
}

// inferType maps (current position direction, requested direction) to the
// signal type: no position -> ENTRY, same direction -> ADD, opposite -> EXIT.
func (e *SignalEngine) inferType(ctx context.Context, accountID string, cand models.Candidate) (models.SignalType, error) {
	positions, err := e.broker.ListUnderlyingPositions(ctx, accountID)
	if err != nil {
		return "", err
	}
	for _, p := range positions {
		if p.Symbol != cand.Symbol || p.Quantity == 0 {
			continue
		}
		held := models.DirectionLong
		if p.Quantity < 0 {
			held = models.DirectionShort
		}
		if held == cand.Direction {
			return models.SignalTypeAdd, nil
		}
		return models.SignalTypeExit, nil
	}
	return models.SignalTypeEntry, nil
}

// Validate fails closed: trade mode off, elapsed TTL, or a safety guard
// rejection each terminate the signal with a structured reason and return
// false. Otherwise the signal transitions to VALIDATED.
func (e *SignalEngine) Validate(ctx context.Context, signalID string) (bool, error) {
	sig, err := e.store.Get(ctx, signalID)
	if err != nil {
		return false, fmt.Errorf("load signal: %w", err)
	}
	if sig.Status != models.SignalStatusGenerated {
		return false, fmt.Errorf("signal %s not in GENERATED state (%s)", signalID, sig.Status)
	}
	now := e.now()
	cfg := e.Config()

	if cfg.Mode == "off" {
		return false, e.reject(ctx, sig, models.ReasonTradeModeOff, "trade mode is off", now)
	}
	if sig.IsExpired(now) {
		if err := sig.Fail(models.SignalStatusExpired, models.ReasonTTLElapsed, "signal TTL elapsed before validation", now); err != nil {
			return false, err
		}
		if err := e.store.Update(ctx, sig); err != nil {
			return false, fmt.Errorf("expire signal: %w", err)
		}
		e.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusExpired))
		e.publish(ctx, sig, "expired")
		return false, nil
	}

	risk, err := e.resolver.Resolve(ctx, sig.AccountID, []string{sig.Symbol})
	if err != nil {
		return false, fmt.Errorf("resolve risk limits: %w", err)
	}
	exp, err := e.aggregator.ComputeExposure(ctx, sig.AccountID)
	if err != nil {
		return false, fmt.Errorf("compute exposure: %w", err)
	}

	notional := e.impliedNotional(sig, exp.Equity)
	side := drepo.OrderSideBuy
	if sig.Direction == models.DirectionShort || sig.Type == models.SignalTypeExit || sig.Type == models.SignalTypeReduce {
		side = drepo.OrderSideSell
	}

	for _, res := range []CheckResult{
		e.guard.CheckOrder(side, notional, risk.Limits),
		e.guard.CheckGreeksExposure(exp, risk.Limits),
		e.guard.CheckThetaExposure(exp, risk.Limits),
	} {
		if !res.Allowed {
			return false, e.reject(ctx, sig, res.Reason, res.Detail, now)
		}
	}

	if err := sig.Transition(models.SignalStatusValidated, now); err != nil {
		return false, err
	}
	if err := e.store.Update(ctx, sig); err != nil {
		return false, fmt.Errorf("mark validated: %w", err)
	}
	e.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusValidated))
	e.publish(ctx, sig, "validated")
	return true, nil
}

// impliedNotional estimates the order notional the signal would generate:
// the suggested quantity at the suggested price when both are set, otherwise
// the sizing fraction applied to account equity.
func (e *SignalEngine) impliedNotional(sig *models.Signal, equity float64) float64 {
	if sig.SuggestedQuantity > 0 && sig.SuggestedPrice > 0 {
		return sig.SuggestedQuantity * sig.SuggestedPrice
	}
	return equity * PositionSize(sig.Strength, sig.RiskScore)
}

func (e *SignalEngine) reject(ctx context.Context, sig *models.Signal, code models.ReasonCode, detail string, now time.Time) error {
	if err := sig.Fail(models.SignalStatusRejected, code, detail, now); err != nil {
		return err
	}
	if err := e.store.Update(ctx, sig); err != nil {
		return fmt.Errorf("mark rejected: %w", err)
	}
	e.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusRejected))
	e.publish(ctx, sig, "rejected")
	e.logger.Info("signal rejected",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("reason", string(code)),
		logger.String("detail", detail))
	return nil
}

// Cancel terminates a pending signal on operator action.
func (e *SignalEngine) Cancel(ctx context.Context, signalID, detail string) error {
	sig, err := e.store.Get(ctx, signalID)
	if err != nil {
		return fmt.Errorf("load signal: %w", err)
	}
	now := e.now()
	if err := sig.Fail(models.SignalStatusCancelled, models.ReasonOperatorCancelled, detail, now); err != nil {
		return err
	}
	if err := e.store.Update(ctx, sig); err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	e.metrics.RecordSignalTransition(sig.AccountID, string(models.SignalStatusCancelled))
	e.publish(ctx, sig, "cancelled")
	return nil
}

// ExpireStale sweeps GENERATED and VALIDATED signals whose TTL elapsed.
func (e *SignalEngine) ExpireStale(ctx context.Context, accountID string) (int, error) {
	sigs, err := e.store.ListByStatus(ctx, accountID, models.SignalStatusGenerated, models.SignalStatusValidated)
	if err != nil {
		return 0, fmt.Errorf("list pending signals: %w", err)
	}
	now := e.now()
	var expired []*models.Signal
	for _, sig := range sigs {
		if !sig.IsExpired(now) {
			continue
		}
		if err := sig.Fail(models.SignalStatusExpired, models.ReasonTTLElapsed, "signal TTL elapsed", now); err != nil {
			continue
		}
		expired = append(expired, sig)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := e.store.UpdateBatch(ctx, expired); err != nil {
		return 0, fmt.Errorf("commit expired signals: %w", err)
	}
	for _, sig := range expired {
		e.metrics.RecordSignalTransition(accountID, string(models.SignalStatusExpired))
		e.publish(ctx, sig, "expired")
	}
	return len(expired), nil
}

// Evaluate scores an executed signal against its realized outcome. The score
// is 0-100: 50 points for calling the direction right, up to 30 for absolute
// return magnitude, and up to 20 for closing ahead of the holding limit. The
// score feeds the optimizer and never blocks execution.
func (e *SignalEngine) Evaluate(ctx context.Context, signalID string, actualReturn, pnl float64, holdingDays int) (float64, error) {
	sig, err := e.store.Get(ctx, signalID)
	if err != nil {
		return 0, fmt.Errorf("load signal: %w", err)
	}
	if sig.Status != models.SignalStatusExecuted {
		return 0, fmt.Errorf("signal %s not executed (%s)", signalID, sig.Status)
	}
	cfg := e.Config()

	score := 0.0
	if actualReturn > 0 {
		score += 50
	}

	absPts := actualReturn * 300
	if absPts < 0 {
		absPts = -absPts
	}
	if absPts > 30 {
		absPts = 30
	}
	score += absPts

	if cfg.MaxHoldingDays > 0 && holdingDays >= 0 && holdingDays <= cfg.MaxHoldingDays {
		score += 20 * (1 - float64(holdingDays)/float64(cfg.MaxHoldingDays))
	}

	sig.ActualReturn = actualReturn
	sig.RealizedPnL = pnl
	sig.EvaluationScore = score
	sig.UpdatedAt = e.now()
	if err := e.store.Update(ctx, sig); err != nil {
		return 0, fmt.Errorf("store evaluation: %w", err)
	}
	e.publish(ctx, sig, "evaluated")
	return score, nil
}

func (e *SignalEngine) publish(ctx context.Context, sig *models.Signal, action string) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishSignalEvent(ctx, sig, action); err != nil {
		e.logger.Warn("publish signal event failed",
			logger.String("signal_id", sig.ID),
			logger.String("action", action),
			logger.Error(err))
	}
}
