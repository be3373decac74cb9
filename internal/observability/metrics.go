package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finitefield.org/leadscore/internal/lead"
	"finitefield.org/leadscore/internal/scoring"
)

// Submission outcomes recorded on leadscore_submissions_total.
const (
	OutcomeScored = "scored"
	OutcomeFailed = "failed"
)

// Metrics groups the service's Prometheus collectors on a dedicated registry.
type Metrics struct {
	registry        *prometheus.Registry
	Submissions     *prometheus.CounterVec
	ScoringDuration prometheus.Histogram
	FormsMounted    prometheus.Gauge
	FieldsUpdated   prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscore_submissions_total",
				Help: "Lead submissions to the scoring service by outcome",
			},
			[]string{"outcome"},
		),
		ScoringDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscore_scoring_duration_seconds",
				Help:    "Round-trip time of scoring requests",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		FormsMounted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscore_forms_mounted",
				Help: "Lead forms currently mounted",
			},
		),
		FieldsUpdated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscore_form_fields_updated_total",
				Help: "Field updates applied to mounted forms",
			},
		),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// FormMounted increments the mounted-forms gauge.
func (m *Metrics) FormMounted() { m.FormsMounted.Inc() }

// FormUnmounted decrements the mounted-forms gauge.
func (m *Metrics) FormUnmounted() { m.FormsMounted.Dec() }

// FieldUpdated counts one applied field update.
func (m *Metrics) FieldUpdated() { m.FieldsUpdated.Inc() }

// Analyzer is the scoring call being measured.
type Analyzer interface {
	Analyze(ctx context.Context, in lead.Input) (scoring.Response, error)
}

// InstrumentedAnalyzer records duration and outcome for every scoring call.
type InstrumentedAnalyzer struct {
	next    Analyzer
	metrics *Metrics
}

// Instrument wraps next with submission metrics.
func (m *Metrics) Instrument(next Analyzer) *InstrumentedAnalyzer {
	return &InstrumentedAnalyzer{next: next, metrics: m}
}

// Analyze forwards to the wrapped analyzer.
func (a *InstrumentedAnalyzer) Analyze(ctx context.Context, in lead.Input) (scoring.Response, error) {
	start := time.Now()
	resp, err := a.next.Analyze(ctx, in)
	a.metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	outcome := OutcomeScored
	if err != nil {
		outcome = OutcomeFailed
	}
	a.metrics.Submissions.WithLabelValues(outcome).Inc()
	return resp, err
}
