// Package metrics provides Prometheus instrumentation for the
// simulation engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts simulation runs by final status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdp_runs_total",
		Help: "Simulation runs by final status",
	}, []string{"status"})

	// RunDuration tracks wall-clock duration of full runs.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cdp_run_duration_seconds",
		Help:    "Full simulation run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BitesTotal counts liquidations across all runs.
	BitesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdp_bites_total",
		Help: "Total positions liquidated",
	})

	// BidsTotal counts placed auction bids.
	BidsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdp_bids_total",
		Help: "Total auction bids placed",
	})

	// DealsTotal counts settled auctions.
	DealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdp_deals_total",
		Help: "Total auctions settled",
	})

	// VaultsOpenedTotal counts positions opened across all runs.
	VaultsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdp_vaults_opened_total",
		Help: "Total vaults opened",
	})

	// SystemDebt is the total debt of the most recently recorded
	// timestep, in rad.
	SystemDebt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdp_system_debt",
		Help: "Total system debt at the last recorded timestep",
	})

	// Litter is the debt in liquidation at the last recorded timestep.
	Litter = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdp_litter",
		Help: "Debt currently in liquidation at the last recorded timestep",
	})

	// OpenAuctions counts open auctions at the last recorded timestep.
	OpenAuctions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdp_open_auctions",
		Help: "Open auctions at the last recorded timestep",
	})

	// ActiveRuns tracks concurrently executing simulations.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdp_active_runs",
		Help: "Number of simulations currently executing",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdp_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdp_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdp_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
