package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"TradeLoop/internal/domain/models"
	drepo "TradeLoop/internal/domain/repository"
	icache "TradeLoop/internal/service/cache"
	apimetrics "TradeLoop/internal/service/metrics"
	"TradeLoop/internal/service/ratelimit"
	"TradeLoop/internal/usecase"
	xhttp "TradeLoop/pkg/http"
	xlogger "TradeLoop/pkg/logger"
)

// snapshotTTL bounds staleness of cached exposure and risk reads.
const snapshotTTL = 15 * time.Second

// TradingEchoHandler exposes the trading loop over HTTP for operators and
// dashboards. Mutating endpoints are rate limited per account.
type TradingEchoHandler struct {
	logger      *xlogger.Logger
	store       drepo.SignalStore
	engine      *usecase.SignalEngine
	executor    *usecase.OrderExecutor
	coordinator *usecase.LoopCoordinator
	aggregator  *usecase.ExposureAggregator
	resolver    *usecase.RiskLimitResolver
	optimizer   *usecase.AdaptiveOptimizer
	limiter     *ratelimit.Limiter
	snapshots   icache.BytesCache
}

func NewTradingEchoHandler(
	logger *xlogger.Logger,
	store drepo.SignalStore,
	engine *usecase.SignalEngine,
	executor *usecase.OrderExecutor,
	coordinator *usecase.LoopCoordinator,
	aggregator *usecase.ExposureAggregator,
	resolver *usecase.RiskLimitResolver,
	optimizer *usecase.AdaptiveOptimizer,
	limiter *ratelimit.Limiter,
	snapshots icache.BytesCache,
) *TradingEchoHandler {
	apimetrics.Register()
	return &TradingEchoHandler{
		logger:      logger,
		store:       store,
		engine:      engine,
		executor:    executor,
		coordinator: coordinator,
		aggregator:  aggregator,
		resolver:    resolver,
		optimizer:   optimizer,
		limiter:     limiter,
		snapshots:   snapshots,
	}
}

// observe records endpoint latency and errors.
func observe(endpoint string, start time.Time, err error) {
	apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
	}
}

func (h *TradingEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/accounts/:account/signals", h.ListSignals)
	g.GET("/accounts/:account/signals/executed", h.ListExecutedSignals)
	g.GET("/signals/:id", h.GetSignal)
	g.POST("/signals/:id/cancel", h.CancelSignal)
	g.POST("/signals/:id/evaluate", h.EvaluateSignal)
	g.POST("/accounts/:account/cycle", h.RunCycle)
	g.POST("/accounts/:account/execute", h.ExecuteBatch)
	g.POST("/accounts/:account/sync", h.SyncOrders)
	g.GET("/accounts/:account/exposure", h.Exposure)
	g.GET("/accounts/:account/risk", h.RiskState)
	g.GET("/accounts/:account/performance", h.Performance)
	g.GET("/accounts/:account/optimization", h.Optimization)
	g.POST("/accounts/:account/optimization/apply", h.ApplyOptimization)
}

// mutateAllowed enforces the per-account budget on mutating endpoints.
func (h *TradingEchoHandler) mutateAllowed(accountID string) bool {
	return h.limiter.Allow("mutate:"+accountID, 5, 0.5)
}

func (h *TradingEchoHandler) ListSignals(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	statuses := []models.SignalStatus{
		models.SignalStatusGenerated, models.SignalStatusValidated,
		models.SignalStatusQueued, models.SignalStatusExecuting,
	}
	if req.Status != "" {
		statuses = []models.SignalStatus{models.SignalStatus(req.Status)}
	}

	sigs, err := h.store.ListByStatus(c.Request().Context(), req.AccountID, statuses...)
	if err != nil {
		h.logger.Error("list signals", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

// ListExecutedSignals returns the executed tail for dashboards. since accepts
// RFC3339 or unix seconds and defaults to the trailing 30 days.
func (h *TradingEchoHandler) ListExecutedSignals(c echo.Context) error {
	account := c.Param("account")
	if account == "" {
		return xhttp.BadRequestResponse(c, "account is required")
	}
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Now().AddDate(0, 0, -30))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	sigs, err := h.store.ListExecutedSince(c.Request().Context(), account, since)
	if err != nil {
		h.logger.Error("list executed signals", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if limit > 0 && len(sigs) > limit {
		sigs = sigs[len(sigs)-limit:]
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

func (h *TradingEchoHandler) GetSignal(c echo.Context) error {
	id := c.Param("id")
	sig, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, drepo.ErrSignalNotFound) {
			return xhttp.NotFoundResponse(c, "signal not found")
		}
		h.logger.Error("get signal", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *TradingEchoHandler) CancelSignal(c echo.Context) error {
	req := &models.CancelSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.engine.Cancel(c.Request().Context(), req.SignalID, req.Reason); err != nil {
		if errors.Is(err, drepo.ErrSignalNotFound) {
			return xhttp.NotFoundResponse(c, "signal not found")
		}
		if errors.Is(err, models.ErrInvalidTransition) {
			return xhttp.BadRequestResponse(c, "signal is not cancellable in its current status")
		}
		h.logger.Error("cancel signal", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *TradingEchoHandler) EvaluateSignal(c echo.Context) error {
	req := &models.EvaluateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	score, err := h.engine.Evaluate(c.Request().Context(), req.SignalID, req.ActualReturn, req.RealizedPnL, req.HoldingDays)
	if err != nil {
		if errors.Is(err, drepo.ErrSignalNotFound) {
			return xhttp.NotFoundResponse(c, "signal not found")
		}
		h.logger.Error("evaluate signal", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]float64{"evaluation_score": score})
}

func (h *TradingEchoHandler) RunCycle(c echo.Context) error {
	req := &models.RunCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.mutateAllowed(req.AccountID) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	report := h.coordinator.RunCycle(c.Request().Context(), req.AccountID)
	return xhttp.SuccessResponse(c, report)
}

func (h *TradingEchoHandler) ExecuteBatch(c echo.Context) error {
	req := &models.ExecuteBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.mutateAllowed(req.AccountID) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	results, err := h.executor.ExecuteBatch(c.Request().Context(), req.AccountID, req.MaxOrders)
	if err != nil {
		h.logger.Error("execute batch", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, results, int64(len(results)))
}

func (h *TradingEchoHandler) SyncOrders(c echo.Context) error {
	account := c.Param("account")
	if account == "" {
		return xhttp.BadRequestResponse(c, "account is required")
	}

	settled, err := h.executor.SyncExecutingOrders(c.Request().Context(), account)
	if err != nil {
		h.logger.Error("sync orders", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]int{"settled": settled})
}

func (h *TradingEchoHandler) Exposure(c echo.Context) error {
	start := time.Now()
	account := c.Param("account")
	if account == "" {
		return xhttp.BadRequestResponse(c, "account is required")
	}

	// Exposure needs two broker round trips; serve a short-lived snapshot.
	cacheKey := "exposure:" + account
	if b, ok, _ := h.snapshots.GetBytes(cacheKey); ok {
		observe("exposure", start, nil)
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	exp, err := h.aggregator.ComputeExposure(c.Request().Context(), account)
	observe("exposure", start, err)
	if err != nil {
		h.logger.Error("compute exposure", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if b, err := json.Marshal(exp); err == nil {
		_ = h.snapshots.SetBytes(cacheKey, b, snapshotTTL)
	}
	return xhttp.SuccessResponse(c, exp)
}

func (h *TradingEchoHandler) RiskState(c echo.Context) error {
	start := time.Now()
	req := &models.RiskStateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	state, err := h.resolver.Resolve(c.Request().Context(), req.AccountID, req.Symbols)
	observe("risk_state", start, err)
	if err != nil {
		h.logger.Error("resolve risk state", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, state)
}

func (h *TradingEchoHandler) Performance(c echo.Context) error {
	account := c.Param("account")
	if account == "" {
		return xhttp.BadRequestResponse(c, "account is required")
	}

	perf := h.coordinator.LastPerformance(account)
	if perf == nil {
		return xhttp.NotFoundResponse(c, "no performance data yet")
	}
	return xhttp.SuccessResponse(c, perf)
}

func (h *TradingEchoHandler) Optimization(c echo.Context) error {
	account := c.Param("account")
	if account == "" {
		return xhttp.BadRequestResponse(c, "account is required")
	}

	report := h.coordinator.LastOptimization(account)
	if report == nil {
		return xhttp.NotFoundResponse(c, "no optimization report yet")
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *TradingEchoHandler) ApplyOptimization(c echo.Context) error {
	req := &models.ApplyOptimizationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.mutateAllowed(req.AccountID) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	report := h.coordinator.LastOptimization(req.AccountID)
	if report == nil {
		return xhttp.NotFoundResponse(c, "no optimization report to apply")
	}

	// Operator approval arrives as auto_apply=true on this explicit endpoint.
	applied, err := h.optimizer.Apply(c.Request().Context(), report, req.AutoApply)
	if err != nil {
		h.logger.Error("apply optimization", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, applied)
}
