package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zentrade_trades_total",
			Help: "Total number of fills executed",
		},
		[]string{"side"},
	)

	stopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zentrade_stops_total",
			Help: "Total number of protective stops triggered",
		},
		[]string{"kind"},
	)

	// Order lifecycle metrics
	orderPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zentrade_order_polls_total",
			Help: "Total number of working-order status polls",
		},
	)

	orderRepricesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zentrade_order_reprices_total",
			Help: "Total number of stale orders canceled and re-placed",
		},
		[]string{"side"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zentrade_current_price",
			Help: "Latest fill or tick price seen by the engine",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zentrade_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(stopsTotal)
	prometheus.MustRegister(orderPollsTotal)
	prometheus.MustRegister(orderRepricesTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(errorsTotal)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTrade records a completed fill.
func RecordTrade(side string) {
	tradesTotal.WithLabelValues(side).Inc()
}

// RecordStop records a triggered protective stop.
func RecordStop(kind string) {
	stopsTotal.WithLabelValues(kind).Inc()
}

// RecordOrderPoll records one working-order status poll.
func RecordOrderPoll() {
	orderPollsTotal.Inc()
}

// RecordReprice records a cancel-and-replace of a stale order.
func RecordReprice(side string) {
	orderRepricesTotal.WithLabelValues(side).Inc()
}

// SetCurrentPrice updates the latest price gauge.
func SetCurrentPrice(price float64) {
	currentPrice.Set(price)
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
