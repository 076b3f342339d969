package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(pipelineJobsTotal, stageDurationSeconds, inferenceDurationSeconds) }

var pipelineJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_jobs_total",
		Help: "Pipelines finished, labeled by terminal state.",
	},
	[]string{"state"}, // 'completed', 'failed', 'cancelled'
)

var stageDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Wall-clock duration of one pipeline stage.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 60},
	},
	[]string{"stage"},
)

var inferenceDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "inference_call_duration_seconds",
		Help:    "Latency of inference endpoint invocations.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"stage", "outcome"},
)

func IncPipelineJob(state string) {
	pipelineJobsTotal.WithLabelValues(norm(state)).Inc()
}

func ObserveStageDuration(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(norm(stage)).Observe(d.Seconds())
}

func ObserveInference(stage string, d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	inferenceDurationSeconds.WithLabelValues(norm(stage), outcome).Observe(d.Seconds())
}
