// Package metrics exposes Prometheus instrumentation for the reporting pipeline.
// A nil *Pipeline is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "advisor_reports"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Pipeline holds the collectors for ingestion, rendering, delivery, and jobs.
type Pipeline struct {
	rowsIngested prometheus.Counter
	rowsSkipped  prometheus.Counter
	imports      *prometheus.CounterVec
	renders      *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobRuns      *prometheus.CounterVec
}

// New registers the pipeline collectors on reg. A nil registerer yields a
// no-op Pipeline.
func New(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		return &Pipeline{}
	}
	p := &Pipeline{
		rowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Performance records written by imports.",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Extract rows excluded during extraction (blank or system advisors).",
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Extract imports by outcome.",
		}, []string{"outcome"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_renders_total",
			Help:      "Report render attempts by format and outcome.",
		}, []string{"format", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by template and outcome.",
		}, []string{"template", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by outcome.",
		}, []string{"job", "outcome"}),
	}
	reg.MustRegister(p.rowsIngested, p.rowsSkipped, p.imports, p.renders, p.deliveries, p.jobDuration, p.jobRuns)
	return p
}

// ObserveImport records one import attempt.
func (p *Pipeline) ObserveImport(written, skipped int, err error) {
	if p == nil || p.imports == nil {
		return
	}
	p.imports.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	p.rowsIngested.Add(float64(written))
	p.rowsSkipped.Add(float64(skipped))
}

// ObserveRender records one report render attempt.
func (p *Pipeline) ObserveRender(format string, err error) {
	if p == nil || p.renders == nil {
		return
	}
	p.renders.WithLabelValues(normalizeLabel(format), outcome(err)).Inc()
}

// ObserveDelivery records one notification delivery attempt.
func (p *Pipeline) ObserveDelivery(template string, err error) {
	if p == nil || p.deliveries == nil {
		return
	}
	p.deliveries.WithLabelValues(normalizeLabel(template), outcome(err)).Inc()
}

// ObserveJob records a scheduled job's duration and outcome.
func (p *Pipeline) ObserveJob(job string, duration time.Duration, err error) {
	if p == nil || p.jobDuration == nil {
		return
	}
	job = normalizeLabel(job)
	p.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	p.jobRuns.WithLabelValues(job, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeSuccess
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
