// Package metrics provides Prometheus instrumentation for the economy engine.
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
	// TransfersTotal counts roster transfers, partitioned by action
	// (BUY, SELL, SWAP_OUT, SWAP_IN, EXPIRY, AUTO_FILL).
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpit_transfers_total",
		Help: "Total number of roster transfer events",
	}, []string{"action"})

	// TransferRejections counts rejected transfers by reason.
	TransferRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpit_transfer_rejections_total",
		Help: "Transfers rejected by the transfer engine",
	}, []string{"reason"})

	// RacesProcessed counts completed races fed through the engine.
	RacesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridpit_races_processed_total",
		Help: "Completed races processed",
	})

	// ContractExpiries counts contracts expired by the sweep.
	ContractExpiries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridpit_contract_expiries_total",
		Help: "Contracts auto-expired at the end of their length",
	})

	// AutoFillPurchases counts reserve auto-fill purchases.
	AutoFillPurchases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridpit_autofill_purchases_total",
		Help: "Driver slots filled by the reserve auto-fill",
	})

	// ActiveRosters tracks the number of registered rosters.
	ActiveRosters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridpit_active_rosters",
		Help: "Number of registered rosters",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridpit_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpit_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridpit_http_request_duration_seconds",
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

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
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
