// Package metrics exposes evaluation counters for scraping or for a
// node_exporter textfile.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalnine/stratgate/internal/result"
)

// Recorder holds the evaluation metrics on its own registry. A nil
// Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Scenarios        *prometheus.CounterVec
	ScenarioDuration *prometheus.HistogramVec
	Evaluations      *prometheus.CounterVec
	LoadFailures     *prometheus.CounterVec
	Overall          prometheus.Histogram
	Interrupted      prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Scenarios: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgate_scenarios_total",
				Help: "Scenario executions by category and outcome",
			},
			[]string{"category", "status"},
		),
		ScenarioDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratgate_scenario_duration_seconds",
				Help:    "Wall time of one scenario execution",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 10},
			},
			[]string{"category"},
		),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgate_evaluations_total",
				Help: "Completed candidate evaluations by grade",
			},
			[]string{"grade"},
		),
		LoadFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgate_load_failures_total",
				Help: "Candidates rejected at load time by reason",
			},
			[]string{"reason"},
		),
		Overall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratgate_overall_score",
			Help:    "Overall score of evaluated candidates",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		Interrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratgate_interrupted_evaluations_total",
			Help: "Evaluations cut short by cancellation",
		}),
	}
	r.registry.MustRegister(r.Scenarios, r.ScenarioDuration, r.Evaluations, r.LoadFailures, r.Overall, r.Interrupted)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveScenario(e result.ExecutionResult) {
	if r == nil {
		return
	}
	r.Scenarios.WithLabelValues(string(e.Category), string(e.Status)).Inc()
	r.ScenarioDuration.WithLabelValues(string(e.Category)).Observe(time.Duration(e.DurationMS * float64(time.Millisecond)).Seconds())
}

func (r *Recorder) ObserveReport(rep *result.Report) {
	if r == nil {
		return
	}
	r.Evaluations.WithLabelValues(rep.Grade).Inc()
	r.Overall.Observe(rep.Overall)
	if rep.Interrupted {
		r.Interrupted.Inc()
	}
}

func (r *Recorder) ObserveLoadFailure(reason string) {
	if r == nil {
		return
	}
	r.LoadFailures.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile
// collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
