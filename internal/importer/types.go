package importer

import (
	"time"
)

// DefaultBatchSize is the number of entries committed per transaction when
// no batch size is configured.
const DefaultBatchSize = 1000

// Stats holds statistics about an import run. The outcome counters only
// include entries whose batch was committed (or, on a dry run, completed).
type Stats struct {
	RunID     string `json:"run_id"`
	SourceKey string `json:"source_key,omitempty"`
	BatchSize int    `json:"batch_size"`
	DryRun    bool   `json:"dry_run"`

	// Read is the number of elements pulled from the source, including
	// entries of a batch that never committed.
	Read int64 `json:"read"`

	// Resumed is the number of entries skipped because a previous run
	// already committed them.
	Resumed int64 `json:"resumed"`

	Imported   int64 `json:"imported"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
	Filtered   int64 `json:"filtered"`

	PlacesCreated  int64 `json:"places_created"`
	OriginsCreated int64 `json:"origins_created"`
	Batches        int64 `json:"batches"`

	// NextIndex is the source position following the last committed entry.
	NextIndex int64 `json:"next_index"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Committed returns the number of entries covered by committed batches.
func (s *Stats) Committed() int64 {
	return s.Imported + s.Duplicates + s.Failed + s.Filtered
}

// Duration returns the duration of the import run.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// RecordsPerSecond returns the import rate over committed entries.
func (s *Stats) RecordsPerSecond() float64 {
	duration := s.Duration().Seconds()
	if duration == 0 {
		return 0
	}
	return float64(s.Committed()) / duration
}

// tally counts the outcomes of the batch in flight.
type tally struct {
	entries        int
	imported       int64
	duplicates     int64
	failed         int64
	filtered       int64
	placesCreated  int64
	originsCreated int64
}

func (s *Stats) add(t tally) {
	s.Imported += t.imported
	s.Duplicates += t.duplicates
	s.Failed += t.failed
	s.Filtered += t.filtered
	s.PlacesCreated += t.placesCreated
	s.OriginsCreated += t.originsCreated
}
