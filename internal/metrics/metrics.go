// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsTotal counts accepted deposits.
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_deposits_total",
		Help: "Total number of accepted deposits",
	})

	// DepositRejections counts rejected deposits, partitioned by reason.
	DepositRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_deposit_rejections_total",
		Help: "Deposits rejected by admission, phase or cap checks",
	}, []string{"reason"})

	// DepositLatency tracks deposit processing time, including persistence.
	DepositLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_deposit_latency_seconds",
		Help:    "Deposit processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ClaimsTotal counts settlement claims by outcome.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_claims_total",
		Help: "Settlement claims by outcome",
	}, []string{"outcome"})

	// WithdrawalsTotal counts proceeds withdrawals by outcome.
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_withdrawals_total",
		Help: "Proceeds withdrawals by outcome",
	}, []string{"outcome"})

	// CurrentPrice is the price observed at the last accepted deposit or latch.
	// Float gauge for dashboards only; the ledger never reads it.
	CurrentPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_current_price",
		Help: "Clearing price at the last state change",
	})

	// TotalDeposited mirrors the aggregate deposit total.
	TotalDeposited = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_total_deposited",
		Help: "Aggregate deposited funds",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// CacheInvalidationFailures counts Redis deletes that failed after a commit.
	CacheInvalidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_cache_invalidation_failures_total",
		Help: "Cache invalidations that failed after a successful primary write",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_http_request_duration_seconds",
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
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
