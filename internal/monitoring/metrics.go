package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Market data metrics
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Total number of market data ticks processed",
		},
		[]string{"symbol"},
	)

	markPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_mark_price",
			Help: "Current mark price per instrument",
		},
		[]string{"symbol"},
	)

	// Signal metrics
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Total number of signals emitted",
		},
		[]string{"symbol", "direction"},
	)

	signalStrength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_signal_strength",
			Help: "Strength of the most recent signal",
		},
		[]string{"symbol"},
	)

	// Execution metrics
	ordersSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_submitted_total",
			Help: "Total number of orders dispatched to the venue",
		},
		[]string{"symbol", "side"},
	)

	orderRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_order_rejections_total",
			Help: "Total number of intents rejected before or at the venue",
		},
		[]string{"symbol", "reason"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_fills_total",
			Help: "Total number of fills applied to the ledger",
		},
		[]string{"symbol", "side"},
	)

	fillNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_fill_notional",
			Help:    "Distribution of fill notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		},
		[]string{"symbol"},
	)

	// Account metrics
	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_account_equity",
			Help: "Current account equity (cash plus marked positions)",
		},
	)

	sessionPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_session_pnl",
			Help: "Realized plus unrealized profit and loss for the session",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)

	degradedMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_degraded_mode",
			Help: "1 while the engine refuses new orders, 0 otherwise",
		},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(markPrice)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(signalStrength)
	prometheus.MustRegister(ordersSubmittedTotal)
	prometheus.MustRegister(orderRejectionsTotal)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(fillNotional)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(sessionPnL)
	prometheus.MustRegister(errorsTotal)
	prometheus.MustRegister(degradedMode)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordTick records a processed tick and its mark price
func RecordTick(symbol string, mark float64) {
	ticksTotal.WithLabelValues(symbol).Inc()
	markPrice.WithLabelValues(symbol).Set(mark)
}

// RecordSignal records an emitted signal
func RecordSignal(symbol, direction string, strength float64) {
	signalsTotal.WithLabelValues(symbol, direction).Inc()
	signalStrength.WithLabelValues(symbol).Set(strength)
}

// RecordOrderSubmitted records a dispatched order
func RecordOrderSubmitted(symbol, side string) {
	ordersSubmittedTotal.WithLabelValues(symbol, side).Inc()
}

// RecordOrderRejection records a rejected intent with its reason
func RecordOrderRejection(symbol, reason string) {
	orderRejectionsTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordFill records a fill applied to the ledger
func RecordFill(symbol, side string, notional float64) {
	fillsTotal.WithLabelValues(symbol, side).Inc()
	fillNotional.WithLabelValues(symbol).Observe(notional)
}

// UpdateAccount updates the equity and session PnL gauges
func UpdateAccount(equity, pnl float64) {
	accountEquity.Set(equity)
	sessionPnL.Set(pnl)
}

// RecordError records an error metric by category
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}

// SetDegraded updates the degraded mode gauge
func SetDegraded(degraded bool) {
	if degraded {
		degradedMode.Set(1)
	} else {
		degradedMode.Set(0)
	}
}
