package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalTransitions *prometheus.CounterVec
	ordersSubmitted   *prometheus.CounterVec
	ordersReverted    *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	brokerLatency     *prometheus.HistogramVec
	cyclePhase        *prometheus.HistogramVec
	exposure          *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_signal_transitions_total",
				Help: "Signal lifecycle transitions by resulting status",
			},
			[]string{"account", "status"},
		),
		ordersSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_orders_submitted_total",
				Help: "Orders submitted to the broker",
			},
			[]string{"account", "symbol"},
		),
		ordersReverted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_orders_reverted_total",
				Help: "Submissions reverted to VALIDATED for retry",
			},
			[]string{"account", "symbol", "reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		brokerLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeloop_broker_call_duration_seconds",
				Help:    "Duration of broker client calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cyclePhase: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeloop_cycle_phase_duration_seconds",
				Help:    "Duration of loop coordinator phases in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase", "ok"},
		),
		exposure: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeloop_account_exposure_usd",
				Help: "Last computed account exposure in dollars",
			},
			[]string{"account", "kind"},
		),
	}
}

// RecordSignalTransition records a signal entering a lifecycle status.
func (r *Recorder) RecordSignalTransition(accountID, status string) {
	r.signalTransitions.WithLabelValues(accountID, status).Inc()
}

// RecordOrderSubmitted records a broker submission.
func (r *Recorder) RecordOrderSubmitted(accountID, symbol string) {
	r.ordersSubmitted.WithLabelValues(accountID, symbol).Inc()
}

// RecordOrderReverted records a submission reverted for retry.
func (r *Recorder) RecordOrderReverted(accountID, symbol, reason string) {
	r.ordersReverted.WithLabelValues(accountID, symbol, reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBrokerLatency records broker call latency in seconds.
func (r *Recorder) RecordBrokerLatency(op string, seconds float64) {
	r.brokerLatency.WithLabelValues(op).Observe(seconds)
}

// RecordCyclePhase records a coordinator phase duration.
func (r *Recorder) RecordCyclePhase(phase string, seconds float64, ok bool) {
	label := "true"
	if !ok {
		label = "false"
	}
	r.cyclePhase.WithLabelValues(phase, label).Observe(seconds)
}

// RecordExposure records the latest exposure snapshot gauges.
func (r *Recorder) RecordExposure(accountID string, deltaNotional, gammaUSD, vegaUSD, thetaUSD float64) {
	r.exposure.WithLabelValues(accountID, "delta_notional").Set(deltaNotional)
	r.exposure.WithLabelValues(accountID, "gamma").Set(gammaUSD)
	r.exposure.WithLabelValues(accountID, "vega").Set(vegaUSD)
	r.exposure.WithLabelValues(accountID, "theta").Set(thetaUSD)
}
