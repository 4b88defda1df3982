package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gate metrics
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_engine_gate_decisions_total",
			Help: "Admission decisions by outcome and rejection reason",
		},
		[]string{"outcome", "reason"},
	)

	reservedExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_reserved_exposure_dollars",
			Help: "Risk budget held by unconfirmed reservations",
		},
	)

	openRiskExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_open_risk_dollars",
			Help: "Risk committed to open positions",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_open_positions",
			Help: "Number of open positions",
		},
	)

	// Capital metrics
	drawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_drawdown_pct",
			Help: "Current drawdown from peak balance",
		},
	)

	riskReductionFactor = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_risk_reduction_factor",
			Help: "Active drawdown-protection sizing multiplier",
		},
	)

	accountBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_balance_dollars",
			Help: "Current account balance",
		},
	)

	// Trade metrics
	tradeClosuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_engine_trade_closures_total",
			Help: "Realized trade closures by result",
		},
		[]string{"result"},
	)

	realizedPnL = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decision_engine_realized_pnl_dollars",
			Help:    "Distribution of realized trade PnL",
			Buckets: []float64{-500, -200, -100, -50, -20, 0, 20, 50, 100, 200, 500},
		},
	)

	// Pipeline metrics
	regimeActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "decision_engine_regime_active",
			Help: "Active market regime (1 for current, 0 otherwise)",
		},
		[]string{"regime"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decision_engine_cycle_duration_seconds",
			Help:    "Full decision cycle duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	diversificationScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_diversification_score",
			Help: "Portfolio diversification score over the configured instruments (0-1)",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_engine_errors_total",
			Help: "Errors by taxonomy category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(gateDecisionsTotal)
	prometheus.MustRegister(reservedExposure)
	prometheus.MustRegister(openRiskExposure)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(drawdownPct)
	prometheus.MustRegister(riskReductionFactor)
	prometheus.MustRegister(accountBalance)
	prometheus.MustRegister(tradeClosuresTotal)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(regimeActive)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(diversificationScore)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler serves the Prometheus scrape endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordGateDecision records an admission decision outcome
func RecordGateDecision(outcome, reason string) {
	gateDecisionsTotal.WithLabelValues(outcome, reason).Inc()
}

// SetReservedExposure updates the reserved budget gauge
func SetReservedExposure(amount float64) {
	reservedExposure.Set(amount)
}

// SetOpenRiskExposure updates the open-position risk gauge
func SetOpenRiskExposure(amount float64) {
	openRiskExposure.Set(amount)
}

// SetOpenPositions updates the open position count gauge
func SetOpenPositions(count int) {
	openPositions.Set(float64(count))
}

// UpdateCapital updates the capital state gauges
func UpdateCapital(balance, drawdown, factor float64) {
	accountBalance.Set(balance)
	drawdownPct.Set(drawdown)
	riskReductionFactor.Set(factor)
}

// RecordTradeClosure records a realized trade closure
func RecordTradeClosure(pnl float64) {
	result := "win"
	if pnl < 0 {
		result = "loss"
	} else if pnl == 0 {
		result = "flat"
	}
	tradeClosuresTotal.WithLabelValues(result).Inc()
	realizedPnL.Observe(pnl)
}

// UpdateRegime marks the given regime as active
func UpdateRegime(current string) {
	for _, r := range []string{"TRENDING", "RANGING", "VOLATILE", "QUIET", "NEWS_EVENT"} {
		v := 0.0
		if r == current {
			v = 1.0
		}
		regimeActive.WithLabelValues(r).Set(v)
	}
}

// ObserveCycleDuration records one full decision cycle
func ObserveCycleDuration(seconds float64) {
	cycleDuration.Observe(seconds)
}

// SetDiversificationScore updates the portfolio diversification gauge
func SetDiversificationScore(score float64) {
	diversificationScore.Set(score)
}

// RecordError records an error by taxonomy category
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
