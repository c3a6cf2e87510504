package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for pipeline execution.
type Metrics struct {
	// Step outcomes by service and final status
	StepOutcome *prometheus.CounterVec

	// Step latencies by service
	StepLatency *prometheus.HistogramVec

	// Pipeline runs by mode and result
	PipelineRuns *prometheus.CounterVec
}

// New creates a new Metrics instance with all flow metrics registered.
func New() *Metrics {
	return &Metrics{
		StepOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_step_outcomes_total",
			Help: "Total integration step outcomes by service and status",
		}, []string{"service", "status"}),

		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loanflow_step_duration_seconds",
			Help:    "Duration of integration steps by service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),

		PipelineRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanflow_pipeline_runs_total",
			Help: "Total pipeline runs by mode and result",
		}, []string{"mode", "result"}),
	}
}

// ObserveStep records one step outcome and its duration.
func (m *Metrics) ObserveStep(service, status string, d time.Duration) {
	if m != nil {
		m.StepOutcome.WithLabelValues(service, status).Inc()
		m.StepLatency.WithLabelValues(service).Observe(d.Seconds())
	}
}

// IncrementRun records one pipeline run result.
func (m *Metrics) IncrementRun(mode, result string) {
	if m != nil {
		m.PipelineRuns.WithLabelValues(mode, result).Inc()
	}
}
