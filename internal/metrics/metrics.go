// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "maven_indexer"

// Outcomes of a pipeline run.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Recorder receives pipeline measurements. NoopRecorder is used when metrics are disabled.
type Recorder interface {
	ObserveStage(stage string, d time.Duration, err error)
	ObserveRun(outcome string, d time.Duration)
	SetPackageCount(repository string, n int)
	IncJobRetry(kind string)
}

// NoopRecorder discards every measurement.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStage(string, time.Duration, error) {}
func (NoopRecorder) ObserveRun(string, time.Duration)          {}
func (NoopRecorder) SetPackageCount(string, int)               {}
func (NoopRecorder) IncJobRetry(string)                        {}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	packages      *prometheus.GaugeVec
	jobRetries    *prometheus.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),
		stageResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete indexing runs by outcome",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"outcome"}),
		packages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repository_packages",
			Help:      "Packages found in the last completed run per repository",
		}, []string{"repository"}),
		jobRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Job attempts that were retried by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(r.stageDuration, r.stageResults, r.runDuration, r.packages, r.jobRetries)
	return r
}

func (r *PrometheusRecorder) ObserveStage(stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	r.stageResults.WithLabelValues(stage, result).Inc()
}

func (r *PrometheusRecorder) ObserveRun(outcome string, d time.Duration) {
	r.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (r *PrometheusRecorder) SetPackageCount(repository string, n int) {
	r.packages.WithLabelValues(repository).Set(float64(n))
}

func (r *PrometheusRecorder) IncJobRetry(kind string) {
	r.jobRetries.WithLabelValues(kind).Inc()
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
