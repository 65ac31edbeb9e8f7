package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrstream/employee-import/internal/health"
)

var (
	// Worker metrics

	JobPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "employee_import",
		Name:      "job_pickup_latency_seconds",
		Help:      "Time from job creation to a worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "employee_import",
		Name:      "job_duration_seconds",
		Help:      "Duration of one import attempt.",
		Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"queue", "outcome"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "employee_import",
		Name:      "worker_jobs_in_flight",
		Help:      "Number of import jobs currently being processed.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "jobs_completed_total",
		Help:      "Total import attempts finished, by outcome.",
	}, []string{"outcome"})

	RowsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "rows_processed_total",
		Help:      "Total rows accounted for, by result.",
	}, []string{"result"})

	ChunksCommittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "chunks_committed_total",
		Help:      "Total chunk transactions committed.",
	})

	// Resumption and locking

	ResumptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "resumptions_total",
		Help:      "Total resumption attempts, by result.",
	}, []string{"result"})

	LockContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "lock_contention_total",
		Help:      "Times a worker failed to acquire a job lock.",
	})

	// Reaper metrics

	ReaperRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "reaper_rescued_total",
		Help:      "Total stale jobs handled by the reaper.",
	}, []string{"action"})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "employee_import",
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Retention sweeper

	SweptJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "swept_jobs_total",
		Help:      "Terminal jobs removed by the retention sweeper.",
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "employee_import",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "employee_import",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "employee_import",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		JobPickupLatency,
		JobDuration,
		JobsInFlight,
		JobsCompletedTotal,
		RowsProcessedTotal,
		ChunksCommittedTotal,
		ResumptionsTotal,
		LockContentionTotal,
		ReaperRescuedTotal,
		ReaperCycleDuration,
		SweptJobsTotal,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics alongside the health probes so the worker
// binary, which has no API router, still answers readiness checks.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		code := http.StatusOK
		if result.Status != "up" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
