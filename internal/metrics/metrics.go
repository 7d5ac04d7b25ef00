// Package metrics records run statistics in the Prometheus text format, for
// collection by a node exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/rpattn/afsync/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder accumulates the metrics of one invocation.
type Recorder struct {
	registry *prometheus.Registry

	applied       *prometheus.CounterVec
	parseProblems *prometheus.CounterVec
	localProblems *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	open          *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afsync_records_applied_total",
			Help: "Records stored by the import, by kind.",
		}, []string{"kind"}),
		parseProblems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afsync_parse_problems_total",
			Help: "Lines rejected by the parser, by kind.",
		}, []string{"kind"}),
		localProblems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afsync_local_problems_total",
			Help: "Parsed lines skipped because of missing owners or unknown values, by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afsync_transitions_total",
			Help: "Problem state transitions, by kind and case.",
		}, []string{"kind", "case"}),
		open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "afsync_open_problems",
			Help: "Entities with unresolved problems after the run, by kind.",
		}, []string{"kind"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "afsync_last_run_timestamp_seconds",
			Help: "Unix time the last import run finished.",
		}),
	}
	r.registry.MustRegister(r.applied, r.parseProblems, r.localProblems, r.transitions, r.open, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FileApplied records the counters of one file.
func (r *Recorder) FileApplied(kind domain.Kind, applied, parseProblems, localProblems int) {
	r.applied.WithLabelValues(string(kind)).Add(float64(applied))
	r.parseProblems.WithLabelValues(string(kind)).Add(float64(parseProblems))
	r.localProblems.WithLabelValues(string(kind)).Add(float64(localProblems))
}

// Transitions records n transitions of the named case.
func (r *Recorder) Transitions(kind domain.Kind, caseName string, n int) {
	if n == 0 {
		return
	}
	r.transitions.WithLabelValues(string(kind), caseName).Add(float64(n))
}

// OpenProblems sets the number of open markers of kind.
func (r *Recorder) OpenProblems(kind domain.Kind, n int) {
	r.open.WithLabelValues(string(kind)).Set(float64(n))
}

// Finished stamps the end of the run.
func (r *Recorder) Finished(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
