package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Verification engine decisions by outcome",
		},
		[]string{"outcome"},
	)

	LISPullsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lis_pulls_total",
			Help: "LIS pull passes by status",
		},
		[]string{"status"},
	)
	LISUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lis_uploads_total",
			Help: "Results uploaded to the LIS by status",
		},
		[]string{"status"},
	)

	InstrumentQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instrument_queries_total",
			Help: "Host queries served to instruments by status",
		},
		[]string{"status"},
	)
	InstrumentResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instrument_results_total",
			Help: "Results submitted by instruments by status",
		},
		[]string{"status"},
	)

	WorkerPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_passes_total",
			Help: "Background worker passes by loop and status",
		},
		[]string{"loop", "status"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(VerificationsTotal)
	prometheus.MustRegister(LISPullsTotal)
	prometheus.MustRegister(LISUploadsTotal)
	prometheus.MustRegister(InstrumentQueriesTotal)
	prometheus.MustRegister(InstrumentResultsTotal)
	prometheus.MustRegister(WorkerPassesTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// WorkerPass records one background loop iteration.
func WorkerPass(loop string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	WorkerPassesTotal.WithLabelValues(loop, status).Inc()
}
