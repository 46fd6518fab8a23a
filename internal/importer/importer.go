// Package importer drives a history import: it pulls entries from a takeout
// source, applies them to the destination in batches and keeps the run's
// statistics and resume point.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/placesimport/internal/logger"
	"github.com/runnerr0/placesimport/internal/metrics"
	"github.com/runnerr0/placesimport/internal/places"
	"github.com/runnerr0/placesimport/internal/takeout"
)

// Options configures a Driver.
type Options struct {
	// BatchSize is the number of entries per transaction. Zero or less
	// commits once at the end of the source; 1 commits every entry.
	BatchSize int

	// DryRun applies every batch and then rolls it back.
	DryRun bool

	// SourceKey names the source/destination pair in the progress store.
	SourceKey string

	// Resume skips the entries a previous run already committed.
	Resume bool

	Progress ProgressTracker
	Filter   *Filter
	Logger   logger.Logger
	Metrics  *metrics.Import
}

// Driver imports a source into a destination, one entry at a time.
type Driver struct {
	dest Destination
	opts Options
	log  logger.Logger
}

// NewDriver creates a Driver. A nil Logger discards log output.
func NewDriver(dest Destination, opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Driver{dest: dest, opts: opts, log: log}
}

// run is the state of one call to Run.
type run struct {
	stats   *Stats
	log     logger.Logger
	batch   Batch
	pending tally
	index   int64
}

// Run imports every entry of src. Per-entry failures are logged and counted;
// the returned error is set only when the run stopped early because the
// source could not be read or a batch could not begin or commit. Batches
// committed before such an error stay committed and are reflected in the
// returned Stats.
func (d *Driver) Run(ctx context.Context, src takeout.Source) (*Stats, error) {
	r := &run{
		stats: &Stats{
			RunID:     uuid.NewString(),
			SourceKey: d.opts.SourceKey,
			BatchSize: d.opts.BatchSize,
			DryRun:    d.opts.DryRun,
			StartTime: time.Now(),
		},
	}
	r.log = d.log.With(logger.String("run_id", r.stats.RunID))
	defer func() { r.stats.EndTime = time.Now() }()

	resumeFrom, err := d.resumePoint(ctx, r)
	if err != nil {
		return r.stats, err
	}
	r.stats.NextIndex = resumeFrom

	r.log.Info("Starting import",
		logger.Int("batch_size", d.opts.BatchSize),
		logger.Bool("dry_run", d.opts.DryRun),
		logger.Int64("resume_from", resumeFrom),
	)

	if err := d.consume(ctx, r, src, resumeFrom); err != nil {
		d.abort(r)
		return r.stats, err
	}

	if err := d.flush(ctx, r); err != nil {
		return r.stats, err
	}

	if d.opts.Progress != nil && !d.opts.DryRun && d.opts.SourceKey != "" {
		if err := d.opts.Progress.Clear(ctx, d.opts.SourceKey); err != nil {
			r.log.Warn("Failed to clear progress", logger.Error(err))
		}
	}

	r.stats.EndTime = time.Now()
	r.log.Info("Import completed",
		logger.Int64("read", r.stats.Read),
		logger.Int64("imported", r.stats.Imported),
		logger.Int64("duplicates", r.stats.Duplicates),
		logger.Int64("failed", r.stats.Failed),
		logger.Int64("filtered", r.stats.Filtered),
		logger.Int64("places_created", r.stats.PlacesCreated),
		logger.Int64("origins_created", r.stats.OriginsCreated),
		logger.Duration("duration", r.stats.Duration()),
	)
	return r.stats, nil
}

func (d *Driver) resumePoint(ctx context.Context, r *run) (int64, error) {
	if !d.opts.Resume || d.opts.Progress == nil || d.opts.SourceKey == "" {
		return 0, nil
	}
	prev, err := d.opts.Progress.Load(ctx, d.opts.SourceKey)
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}
	if prev == nil {
		return 0, nil
	}
	r.log.Info("Resuming import",
		logger.Int64("next_index", prev.NextIndex),
		logger.String("previous_run_id", prev.RunID),
	)
	return prev.NextIndex, nil
}

func (d *Driver) consume(ctx context.Context, r *run, src takeout.Source, resumeFrom int64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var entryErr *takeout.EntryError
		if err != nil && !errors.As(err, &entryErr) {
			return fmt.Errorf("read source: %w", err)
		}

		index := r.index
		r.index++
		r.stats.Read++

		if index < resumeFrom {
			r.stats.Resumed++
			d.opts.Metrics.RecordEntries(metrics.OutcomeResumed, 1)
			continue
		}

		if r.batch == nil {
			batch, err := d.dest.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin batch: %w", err)
			}
			r.batch = batch
		}

		if entryErr != nil {
			r.pending.failed++
			r.log.Error("Failed to decode history entry",
				logger.Int64("index", index),
				logger.String("raw", entryErr.Raw),
				logger.Error(entryErr.Err),
			)
		} else if err := d.apply(ctx, r, index, entry); err != nil {
			return err
		}

		r.pending.entries++
		if d.opts.BatchSize > 0 && r.pending.entries >= d.opts.BatchSize {
			if err := d.flush(ctx, r); err != nil {
				return err
			}
		}
	}
}

// apply imports one decoded entry into the open batch. Only errors that break
// the batch are returned.
func (d *Driver) apply(ctx context.Context, r *run, index int64, entry takeout.Entry) error {
	if d.opts.Filter.Excluded(entry.URL) {
		r.pending.filtered++
		r.log.Debug("Skipping excluded entry",
			logger.Int64("index", index),
			logger.String("url", entry.URL),
		)
		return nil
	}

	res, err := r.batch.Apply(ctx, entry.URL, entry.Title, entry.TimeUsec)
	switch {
	case errors.Is(err, places.ErrBatchBroken):
		return err
	case err != nil:
		r.pending.failed++
		r.log.Error("Failed to import history entry",
			logger.Int64("index", index),
			logger.String("url", entry.URL),
			logger.String("title", entry.Title),
			logger.Uint64("time_usec", entry.TimeUsec),
			logger.String("page_transition", entry.PageTransition),
			logger.Error(err),
		)
	case res.Duplicate:
		r.pending.duplicates++
		r.log.Info("Skipping duplicate visit",
			logger.Int64("index", index),
			logger.String("url", entry.URL),
			logger.Uint64("time_usec", entry.TimeUsec),
		)
	default:
		r.pending.imported++
		if res.PlaceCreated {
			r.pending.placesCreated++
		}
		if res.OriginCreated {
			r.pending.originsCreated++
		}
	}
	return nil
}

// flush ends the open batch: committed normally, rolled back on a dry run.
// The pending tally only reaches the stats once the batch has ended cleanly.
func (d *Driver) flush(ctx context.Context, r *run) error {
	if r.batch == nil {
		return nil
	}
	batch := r.batch
	r.batch = nil

	start := time.Now()
	if d.opts.DryRun {
		if err := batch.Rollback(); err != nil {
			return fmt.Errorf("roll back dry-run batch: %w", err)
		}
	} else if err := batch.Commit(); err != nil {
		batch.Rollback() //nolint:errcheck
		r.log.Error("Batch commit failed",
			logger.Int64("first_index", r.index-int64(r.pending.entries)),
			logger.Int("entries", r.pending.entries),
			logger.Error(err),
		)
		r.pending = tally{}
		return fmt.Errorf("batch ending at entry %d: %w", r.index, err)
	}
	elapsed := time.Since(start)

	p := r.pending
	r.pending = tally{}

	r.stats.add(p)
	r.stats.Batches++
	r.stats.NextIndex = r.index

	d.opts.Metrics.RecordEntries(metrics.OutcomeImported, int(p.imported))
	d.opts.Metrics.RecordEntries(metrics.OutcomeDuplicate, int(p.duplicates))
	d.opts.Metrics.RecordEntries(metrics.OutcomeFailed, int(p.failed))
	d.opts.Metrics.RecordEntries(metrics.OutcomeFiltered, int(p.filtered))
	if !d.opts.DryRun {
		d.opts.Metrics.RecordCommit(elapsed, int(p.placesCreated), int(p.originsCreated))
	}

	if d.opts.Progress != nil && !d.opts.DryRun && d.opts.SourceKey != "" {
		err := d.opts.Progress.Save(ctx, &Progress{
			SourceKey: d.opts.SourceKey,
			NextIndex: r.stats.NextIndex,
			RunID:     r.stats.RunID,
			Imported:  r.stats.Imported,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			r.log.Warn("Failed to save progress", logger.Error(err))
		}
	}

	r.log.Info("Batch committed",
		logger.Int64("batch", r.stats.Batches),
		logger.Int("entries", p.entries),
		logger.Int64("next_index", r.stats.NextIndex),
		logger.Int64("imported", r.stats.Imported),
		logger.Int64("failed", r.stats.Failed),
		logger.Duration("commit", elapsed),
		logger.Float64("records_per_second", r.stats.RecordsPerSecond()),
	)
	return nil
}

// abort discards the batch in flight after a fatal error.
func (d *Driver) abort(r *run) {
	if r.batch == nil {
		return
	}
	if err := r.batch.Rollback(); err != nil {
		r.log.Warn("Failed to roll back batch", logger.Error(err))
	}
	if r.pending.entries > 0 {
		r.log.Warn("Discarded uncommitted batch", logger.Int("entries", r.pending.entries))
	}
	r.batch = nil
	r.pending = tally{}
}
