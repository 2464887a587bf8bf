package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
)

// PerformanceAnalyzer scores executed signals against realized outcomes,
// aggregated per strategy run and per signal source over a trailing window.
type PerformanceAnalyzer struct {
	store drepo.SignalStore
	now   func() time.Time
}

// NewPerformanceAnalyzer creates a performance analyzer.
func NewPerformanceAnalyzer(store drepo.SignalStore) *PerformanceAnalyzer {
	return &PerformanceAnalyzer{store: store, now: time.Now}
}

// Analyze aggregates win-rate, average return and a letter grade per
// strategy/source for signals executed within the trailing window.
func (a *PerformanceAnalyzer) Analyze(ctx context.Context, accountID string, window time.Duration) (map[string]*models.StrategyPerformance, error) {
	to := a.now()
	from := to.Add(-window)
	sigs, err := a.store.ListExecutedSince(ctx, accountID, from)
	if err != nil {
		return nil, fmt.Errorf("list executed signals: %w", err)
	}

	perf := make(map[string]*models.StrategyPerformance)
	for _, sig := range sigs {
		for _, key := range []string{sig.StrategyRunID, string(sig.Source)} {
			if key == "" {
				continue
			}
			p, ok := perf[key]
			if !ok {
				p = &models.StrategyPerformance{Key: key, WindowFrom: from, WindowTo: to}
				perf[key] = p
			}
			p.Trades++
			if sig.ActualReturn > 0 {
				p.Wins++
			}
			p.AvgReturn += sig.ActualReturn
			p.TotalPnL += sig.RealizedPnL
			p.AvgEvalScore += sig.EvaluationScore
		}
	}

	for _, p := range perf {
		if p.Trades > 0 {
			p.WinRate = float64(p.Wins) / float64(p.Trades)
			p.AvgReturn /= float64(p.Trades)
			p.AvgEvalScore /= float64(p.Trades)
		}
		p.Grade = grade(p.WinRate, p.AvgReturn)
	}
	return perf, nil
}

// grade assigns a letter grade from win rate and average return.
func grade(winRate, avgReturn float64) string {
	switch {
	case winRate >= 0.65 && avgReturn > 0.02:
		return "A"
	case winRate >= 0.55 && avgReturn > 0:
		return "B"
	case winRate >= 0.45:
		return "C"
	case winRate >= 0.35:
		return "D"
	default:
		return "F"
	}
}

// AdaptiveOptimizer grid-searches discrete threshold combinations against
// historical outcomes and recommends new defaults. Recommendations are never
// silently applied: Apply requires an explicit autoApply flag.
type AdaptiveOptimizer struct {
	store  drepo.SignalStore
	engine *SignalEngine
	now    func() time.Time

	// Search grid. Fixed and discrete so recommendations are reproducible.
	strengthGrid   []float64
	confidenceGrid []float64
	minTrades      int
}

// NewAdaptiveOptimizer creates an optimizer bound to the engine whose
// thresholds it tunes.
func NewAdaptiveOptimizer(store drepo.SignalStore, engine *SignalEngine) *AdaptiveOptimizer {
	return &AdaptiveOptimizer{
		store:          store,
		engine:         engine,
		now:            time.Now,
		strengthGrid:   []float64{50, 60, 70, 80},
		confidenceGrid: []float64{0.5, 0.6, 0.7, 0.8},
		minTrades:      5,
	}
}

// Optimize evaluates every strength x confidence gate against the trailing
// window of executed signals and recommends the combination with the best
// composite score. Returns a PENDING_APPROVAL report.
func (o *AdaptiveOptimizer) Optimize(ctx context.Context, accountID string, window time.Duration) (*models.OptimizationReport, error) {
	cfg := o.engine.Config()
	report := &models.OptimizationReport{
		AccountID:   accountID,
		Current:     models.ParamSet{MinStrength: cfg.MinStrength, MinConfidence: cfg.MinConfidence},
		Recommended: models.ParamSet{MinStrength: cfg.MinStrength, MinConfidence: cfg.MinConfidence},
		Status:      models.OptimizationNoData,
		GeneratedAt: o.now(),
	}

	sigs, err := o.store.ListExecutedSince(ctx, accountID, o.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("list executed signals: %w", err)
	}
	if len(sigs) == 0 {
		return report, nil
	}

	var best *models.GridResult
	for _, minStrength := range o.strengthGrid {
		for _, minConfidence := range o.confidenceGrid {
			res := o.evaluateGate(sigs, models.ParamSet{MinStrength: minStrength, MinConfidence: minConfidence})
			report.Results = append(report.Results, res)
			if res.Trades < o.minTrades {
				continue
			}
			if best == nil || res.Composite > best.Composite {
				b := res
				best = &b
			}
		}
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Composite > report.Results[j].Composite
	})

	if best != nil {
		report.Recommended = best.Params
		report.Status = models.OptimizationPendingApproval
	}
	return report, nil
}

// evaluateGate replays the gate against executed history: only signals that
// would have passed the gate count toward its result.
func (o *AdaptiveOptimizer) evaluateGate(sigs []*models.Signal, params models.ParamSet) models.GridResult {
	res := models.GridResult{Params: params}
	wins := 0
	for _, sig := range sigs {
		if sig.Strength < params.MinStrength || sig.Confidence < params.MinConfidence {
			continue
		}
		res.Trades++
		if sig.ActualReturn > 0 {
			wins++
		}
		res.AvgReturn += sig.ActualReturn
	}
	if res.Trades == 0 {
		return res
	}
	res.WinRate = float64(wins) / float64(res.Trades)
	res.AvgReturn /= float64(res.Trades)

	// Composite: win rate dominates, return magnitude second, sample size
	// keeps tiny gates from winning on noise.
	sample := float64(res.Trades) / float64(len(sigs))
	ret := res.AvgReturn * 10
	if ret > 1 {
		ret = 1
	}
	if ret < -1 {
		ret = -1
	}
	res.Composite = 0.5*res.WinRate + 0.3*ret + 0.2*sample
	return res
}

// Apply installs a recommendation. Without autoApply the report is returned
// unchanged in PENDING_APPROVAL for the operator to act on.
func (o *AdaptiveOptimizer) Apply(ctx context.Context, report *models.OptimizationReport, autoApply bool) (*models.OptimizationReport, error) {
	if report == nil {
		return nil, fmt.Errorf("nil optimization report")
	}
	if report.Status != models.OptimizationPendingApproval {
		return report, nil
	}
	if !autoApply {
		return report, nil
	}
	o.engine.SetThresholds(report.Recommended.MinStrength, report.Recommended.MinConfidence)
	report.Status = models.OptimizationApplied
	return report, nil
}
