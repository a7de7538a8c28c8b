package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zj00777/feishu-power-skill/internal/schedule"
)

// Request outcomes
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Metrics are the worker's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
	rendered prometheus.Counter
	ticks    prometheus.Counter
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "report_jobs_total",
			Help: "Report jobs run, by job type and status",
		}, []string{"type", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "report_job_duration_seconds",
			Help:    "Report job run time",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"type"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "report_requests_total",
			Help: "Stream requests handled, by outcome",
		}, []string{"outcome"}),
		rendered: f.NewCounter(prometheus.CounterOpts{
			Name: "report_templates_rendered_total",
			Help: "Template reports rendered successfully",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "report_schedule_ticks_total",
			Help: "Schedule checks performed",
		}),
	}
}

// ObserveJob records one job result
func (m *Metrics) ObserveJob(r schedule.JobResult) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(r.Type, r.Status).Inc()
	m.duration.WithLabelValues(r.Type).Observe(r.Elapsed)
	if r.Type == schedule.TypeTemplate && r.Status == schedule.StatusSuccess {
		m.rendered.Inc()
	}
}

// ObserveRequest records the outcome of one stream request
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveTick records one schedule check
func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}
