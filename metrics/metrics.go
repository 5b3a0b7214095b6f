package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendbot_signals_total",
			Help: "Crossover signals detected, by symbol and side.",
		},
		[]string{"symbol", "side"},
	)

	SignalsFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendbot_signals_filtered_total",
			Help: "Signals dropped before execution, by reason (spread, rsi, volume, sizing).",
		},
		[]string{"symbol", "reason"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendbot_orders_total",
			Help: "Gateway order calls, by action (open, close, modify_stop) and result.",
		},
		[]string{"action", "result"},
	)

	CyclesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendbot_symbol_skips_total",
			Help: "Per-symbol cycle skips, by reason (no_data, insufficient_data, manual_review).",
		},
		[]string{"symbol", "reason"},
	)

	TrailingUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendbot_trailing_updates_total",
			Help: "Trailing stop modifications sent to the gateway.",
		},
		[]string{"symbol"},
	)

	ManualReview = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trendbot_manual_review",
			Help: "1 while a symbol is locked for manual review after a failed reversal close.",
		},
		[]string{"symbol"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendbot_equity",
			Help: "Current account equity as reported by the gateway.",
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendbot_positions_open",
			Help: "Open positions carrying this bot's magic number.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsDetected,
		SignalsFiltered,
		OrdersSubmitted,
		CyclesSkipped,
		TrailingUpdates,
		ManualReview,
		EquityGauge,
		PositionsOpen,
	)
}

// Serve exposes /metrics on addr in the background. The caller shuts the
// server down via the returned handle.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
