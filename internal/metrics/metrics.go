// Package metrics provides Prometheus instrumentation for the planner,
// reconciliation, and HTTP surfaces.
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
	// PlansTotal counts built plans, partitioned by kind and validity.
	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "condbot_plans_total",
		Help: "Total number of plans built",
	}, []string{"kind", "valid"})

	// PlanBuildDuration tracks plan construction time by kind.
	PlanBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "condbot_plan_build_duration_seconds",
		Help:    "Plan build duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ConvergenceFallbacks counts equilibrium searches that fell back to the
	// best candidate or the single-pool approximation.
	ConvergenceFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "condbot_convergence_fallbacks_total",
		Help: "Plan legs whose search did not fully converge",
	}, []string{"kind"})

	// ReconcileRunsTotal counts reconciliation runs by outcome.
	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "condbot_reconcile_runs_total",
		Help: "Total reconciliation runs",
	}, []string{"result"}) // passed, failed, error

	// ReconcileLegError tracks the per-leg relative error observed during
	// reconciliation, in percent.
	ReconcileLegError = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "condbot_reconcile_leg_error_pct",
		Help:    "Relative error between local and venue shares in percent",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
	})

	// PoolFetchesTotal counts venue pool fetches by result.
	PoolFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "condbot_pool_fetches_total",
		Help: "Total venue pool state fetches",
	}, []string{"result"}) // ok, error

	// MarketsTracked reports the number of joint markets in the store.
	MarketsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "condbot_markets_tracked",
		Help: "Number of joint markets currently tracked",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "condbot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "condbot_http_request_duration_seconds",
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
