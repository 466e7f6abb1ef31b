package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/progress"
)

const unmatched = "unmatched"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcbench_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpcbench_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rpcCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcbench_rpc_calls_total",
			Help: "Benchmark calls by method and outcome kind.",
		},
		[]string{"method", "kind"},
	)

	rpcCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpcbench_rpc_call_duration_seconds",
			Help:    "Benchmark call latency in seconds, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"method"},
	)

	activeJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rpcbench_jobs_active",
		Help: "Jobs currently running.",
	})

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcbench_jobs_finished_total",
			Help: "Finished jobs by terminal status.",
		},
		[]string{"status"},
	)

	burstThroughput = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpcbench_load_throughput_rps",
			Help: "Throughput of the most recent load burst per provider and test.",
		},
		[]string{"provider", "test"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(rpcCallsTotal)
	prometheus.MustRegister(rpcCallDuration)
	prometheus.MustRegister(activeJobs)
	prometheus.MustRegister(jobsFinished)
	prometheus.MustRegister(burstThroughput)
}

// InstrumentCaller records every resolved call in the RPC metrics.
func InstrumentCaller(inner jsonrpc.Caller) jsonrpc.Caller {
	return jsonrpc.CallerFunc(func(ctx context.Context, req jsonrpc.Request) jsonrpc.Outcome {
		out := inner.Call(ctx, req)
		kind := string(out.Kind)
		if out.Success {
			kind = "ok"
		}
		rpcCallsTotal.WithLabelValues(req.Method, kind).Inc()
		rpcCallDuration.WithLabelValues(req.Method).Observe(out.Latency.Seconds())
		return out
	})
}

// observeEvent feeds load burst results into the throughput gauge.
func observeEvent(e progress.Event) {
	if e.Type == progress.LoadTestComplete && e.ThroughputRPS != nil {
		burstThroughput.WithLabelValues(e.ProviderID, e.TestName).Set(*e.ThroughputRPS)
	}
}

// metricsMiddleware records request count and duration for every HTTP request.
// Uses the chi route pattern (not the raw path) to avoid unbounded cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
