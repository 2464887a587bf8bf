package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/logger"
)

// CoordinatorConfig bounds one cycle.
type CoordinatorConfig struct {
	MaxOrdersPerCycle int
	AnalysisWindow    time.Duration
	OptimizeEnabled   bool
}

// LoopCoordinator orchestrates one full cycle per account:
// generate -> validate -> execute -> evaluate -> optimize. Each phase's
// result is independent; partial failure in one phase is recorded and later
// phases continue.
type LoopCoordinator struct {
	buffer    *CandidateBuffer
	engine    *SignalEngine
	filter    *PositionFilter
	executor  *OrderExecutor
	analyzer  *PerformanceAnalyzer
	optimizer *AdaptiveOptimizer
	metrics   drepo.Metrics
	logger    *logger.Logger
	cfg       CoordinatorConfig
	now       func() time.Time

	mu          sync.RWMutex
	lastReports map[string]*models.OptimizationReport
	lastPerf    map[string]map[string]*models.StrategyPerformance
}

// NewLoopCoordinator creates a loop coordinator.
func NewLoopCoordinator(
	buffer *CandidateBuffer,
	engine *SignalEngine,
	filter *PositionFilter,
	executor *OrderExecutor,
	analyzer *PerformanceAnalyzer,
	optimizer *AdaptiveOptimizer,
	metrics drepo.Metrics,
	lg *logger.Logger,
	cfg CoordinatorConfig,
) *LoopCoordinator {
	if cfg.AnalysisWindow <= 0 {
		cfg.AnalysisWindow = 30 * 24 * time.Hour
	}
	return &LoopCoordinator{
		buffer:      buffer,
		engine:      engine,
		filter:      filter,
		executor:    executor,
		analyzer:    analyzer,
		optimizer:   optimizer,
		metrics:     metrics,
		logger:      lg,
		cfg:         cfg,
		now:         time.Now,
		lastReports: make(map[string]*models.OptimizationReport),
		lastPerf:    make(map[string]map[string]*models.StrategyPerformance),
	}
}

// RunCycle executes the five phases for one account.
func (c *LoopCoordinator) RunCycle(ctx context.Context, accountID string) *models.CycleReport {
	report := &models.CycleReport{AccountID: accountID, StartedAt: c.now()}

	c.runPhase(ctx, report, models.PhaseGenerate, func(ctx context.Context) (int, error) {
		return c.generate(ctx, accountID)
	})
	c.runPhase(ctx, report, models.PhaseValidate, func(ctx context.Context) (int, error) {
		return c.validate(ctx, accountID)
	})
	c.runPhase(ctx, report, models.PhaseExecute, func(ctx context.Context) (int, error) {
		results, err := c.executor.ExecuteBatch(ctx, accountID, c.cfg.MaxOrdersPerCycle)
		return len(results), err
	})
	c.runPhase(ctx, report, models.PhaseEvaluate, func(ctx context.Context) (int, error) {
		perf, err := c.analyzer.Analyze(ctx, accountID, c.cfg.AnalysisWindow)
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		c.lastPerf[accountID] = perf
		c.mu.Unlock()
		return len(perf), nil
	})
	c.runPhase(ctx, report, models.PhaseOptimize, func(ctx context.Context) (int, error) {
		if !c.cfg.OptimizeEnabled {
			return 0, nil
		}
		opt, err := c.optimizer.Optimize(ctx, accountID, c.cfg.AnalysisWindow)
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		c.lastReports[accountID] = opt
		c.mu.Unlock()
		return len(opt.Results), nil
	})

	report.FinishedAt = c.now()
	return report
}

func (c *LoopCoordinator) runPhase(ctx context.Context, report *models.CycleReport, phase models.CyclePhase, fn func(context.Context) (int, error)) {
	start := c.now()
	count, err := fn(ctx)
	res := models.PhaseResult{Phase: phase, Ok: err == nil, Count: count, Duration: c.now().Sub(start)}
	if err != nil {
		res.Error = err.Error()
		c.metrics.RecordError("cycle_" + string(phase))
		c.logger.Error("cycle phase failed",
			logger.String("account", report.AccountID),
			logger.String("phase", string(phase)),
			logger.Error(err))
	}
	c.metrics.RecordCyclePhase(string(phase), res.Duration.Seconds(), res.Ok)
	report.Phases = append(report.Phases, res)
}

// generate drains buffered strategy output into signals and position-filters
// the resulting batch.
func (c *LoopCoordinator) generate(ctx context.Context, accountID string) (int, error) {
	batches := c.buffer.Drain(accountID)
	var created []*models.Signal
	var firstErr error
	for _, batch := range batches {
		for _, cand := range batch.Candidates {
			sig, err := c.engine.CreateFromStrategyOutput(ctx, batch.Run, cand)
			if err != nil {
				if errors.Is(err, ErrDedupContended) {
					// Concurrent writer holds the slot; the candidate
					// will come around again on the next run.
					continue
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if sig != nil && sig.Status == models.SignalStatusGenerated {
				created = append(created, sig)
			}
		}
	}
	if len(created) > 0 {
		passed, stats, err := c.filter.Filter(ctx, accountID, created)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		c.logger.Info("generate phase complete",
			logger.String("account", accountID),
			logger.Int("created", len(created)),
			logger.Int("passed_filter", len(passed)),
			logger.Int("filtered", stats.Filtered))
	}
	return len(created), firstErr
}

// validate expires stale signals then validates the remaining GENERATED set.
func (c *LoopCoordinator) validate(ctx context.Context, accountID string) (int, error) {
	if _, err := c.engine.ExpireStale(ctx, accountID); err != nil {
		return 0, err
	}
	pending, err := c.engine.store.ListByStatus(ctx, accountID, models.SignalStatusGenerated)
	if err != nil {
		return 0, err
	}
	validated := 0
	var firstErr error
	for _, sig := range pending {
		ok, err := c.engine.Validate(ctx, sig.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			validated++
		}
	}
	return validated, firstErr
}

// LastOptimization returns the most recent optimization report for an
// account, or nil.
func (c *LoopCoordinator) LastOptimization(accountID string) *models.OptimizationReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReports[accountID]
}

// LastPerformance returns the most recent performance aggregation for an
// account, or nil.
func (c *LoopCoordinator) LastPerformance(accountID string) map[string]*models.StrategyPerformance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPerf[accountID]
}
