// Package metrics provides Prometheus instrumentation for the ledger engine.
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
	// LedgerOpsTotal counts completed ledger operations, partitioned by kind.
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_ops_total",
		Help: "Total number of completed ledger operations",
	}, []string{"op"})

	// RejectionsTotal counts operations rejected by business rules.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Operations rejected by business rules",
	}, []string{"op", "reason"})

	// LiquidationsTotal counts force-closed positions.
	LiquidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_liquidations_total",
		Help: "Positions force-closed by the liquidation pass",
	})

	// DistributionPayoutsTotal counts individual distribution credits.
	DistributionPayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_distribution_payouts_total",
		Help: "Individual holder payouts from distribution events",
	})

	// AuditAppendFailures counts swallowed audit-log append errors.
	AuditAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_audit_append_failures_total",
		Help: "Audit log appends that failed and were logged",
	})

	// SnapshotSaveFailures counts degraded snapshot writes.
	SnapshotSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_snapshot_save_failures_total",
		Help: "Snapshot saves that failed; state continued in memory",
	})

	// Accounts tracks the number of known accounts.
	Accounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_accounts",
		Help: "Number of accounts in the snapshot",
	})

	// WebSocketClients tracks connected event-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
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
