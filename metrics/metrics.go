// Package metrics counts import outcomes for prometheus. Batch runs write the
// counters as a node-exporter textfile when they finish.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eddata"

// File outcomes.
const (
	FileImported = "imported"
	FileFailed   = "failed"
	FileSkipped  = "skipped"
)

// Recorder holds the counters of one process.
type Recorder struct {
	registry *prometheus.Registry
	actions  *prometheus.CounterVec
	files    *prometheus.CounterVec
	facts    prometheus.Counter
}

// NewRecorder creates counters in a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_actions_total",
			Help:      "Upsert outcomes by table and action.",
		}, []string{"table", "action"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Exam files processed by outcome.",
		}, []string{"status"}),
		facts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_facts_extracted_total",
			Help:      "Score facts extracted from exam files.",
		}),
	}
	r.registry.MustRegister(r.actions, r.files, r.facts)
	return r
}

// ObserveAction counts one upsert outcome.
func (r *Recorder) ObserveAction(table, action string) {
	r.actions.WithLabelValues(table, action).Inc()
}

// FileProcessed counts one file with its outcome.
func (r *Recorder) FileProcessed(status string) {
	r.files.WithLabelValues(status).Inc()
}

// FactsExtracted counts extracted score facts.
func (r *Recorder) FactsExtracted(n int) {
	r.facts.Add(float64(n))
}

// WriteTextfile writes all counters to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
