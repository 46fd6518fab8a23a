// Package metrics exposes Prometheus collectors describing an import run.
// Runs are short lived, so the collectors are written to a node_exporter
// textfile when the run ends instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Entry outcomes.
const (
	OutcomeImported  = "imported"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeFiltered  = "filtered"
	OutcomeResumed   = "resumed"
)

// Import holds the collectors for one run. A nil *Import records nothing.
type Import struct {
	Entries          *prometheus.CounterVec
	PlacesCreated    prometheus.Counter
	OriginsCreated   prometheus.Counter
	BatchesCommitted prometheus.Counter
	CommitDuration   prometheus.Histogram
}

// New registers the import collectors on reg.
func New(reg prometheus.Registerer) *Import {
	factory := promauto.With(reg)

	return &Import{
		Entries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placesimport_entries_total",
				Help: "History entries processed, by outcome",
			},
			[]string{"outcome"}, // "imported", "duplicate", "failed", "filtered", "resumed"
		),
		PlacesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "placesimport_places_created_total",
				Help: "moz_places rows created in committed batches",
			},
		),
		OriginsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "placesimport_origins_created_total",
				Help: "moz_origins rows created in committed batches",
			},
		),
		BatchesCommitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "placesimport_batches_committed_total",
				Help: "Destination transactions committed",
			},
		),
		CommitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "placesimport_batch_commit_duration_seconds",
				Help:    "Duration of batch commits in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
			},
		),
	}
}

// RecordEntries adds n entries with the given outcome.
func (m *Import) RecordEntries(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Entries.WithLabelValues(outcome).Add(float64(n))
}

// RecordCommit records one committed batch and the rows it created.
func (m *Import) RecordCommit(d time.Duration, placesCreated, originsCreated int) {
	if m == nil {
		return
	}
	m.BatchesCommitted.Inc()
	m.CommitDuration.Observe(d.Seconds())
	m.PlacesCreated.Add(float64(placesCreated))
	m.OriginsCreated.Add(float64(originsCreated))
}

// WriteTextfile writes everything gathered from g to path in the text
// exposition format. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
