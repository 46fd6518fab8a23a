package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/placesimport/internal/config"
	"github.com/runnerr0/placesimport/internal/importer"
	"github.com/runnerr0/placesimport/internal/logger"
	"github.com/runnerr0/placesimport/internal/metrics"
	"github.com/runnerr0/placesimport/internal/takeout"
)

// importJSON is the JSON output structure for the import command.
type importJSON struct {
	*importer.Stats
	Committed        int64   `json:"committed"`
	DurationSeconds  float64 `json:"duration_seconds"`
	RecordsPerSecond float64 `json:"records_per_second"`
	Error            string  `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if err := c.applyFlags(cfg); err != nil {
		return err
	}

	log := c.log
	if log == nil {
		log, err = newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
	}

	stats, runErr := c.run(context.Background(), cfg, log)
	if stats != nil {
		if err := c.printSummary(stats, runErr); err != nil {
			return err
		}
	}
	return runErr
}

// applyFlags overrides config values with the flags that were given.
func (c *ImportCommand) applyFlags(cfg *config.Config) error {
	if c.BatchSize != nil {
		cfg.Import.BatchSize = *c.BatchSize
	}
	if c.Stream {
		cfg.Import.Mode = "stream"
	}
	if c.DryRun {
		cfg.Import.DryRun = true
	}
	if c.StrictVisits {
		cfg.Import.VisitIdentity = "place"
	}
	if c.Schema != "" {
		cfg.Import.Schema = c.Schema
	}
	if c.ProgressDir != "" {
		cfg.Progress.Dir = c.ProgressDir
	}
	if c.Resume {
		cfg.Progress.Resume = true
	}
	cfg.Filter.ExcludeDomains = append(cfg.Filter.ExcludeDomains, c.ExcludeDomain...)
	if c.MetricsFile != "" {
		cfg.Metrics.Textfile = c.MetricsFile
	}
	return cfg.Validate()
}

// run performs the import. Setup failures return nil stats; once the driver
// has started, stats are returned even when the run stopped early.
func (c *ImportCommand) run(ctx context.Context, cfg *config.Config, log logger.Logger) (*importer.Stats, error) {
	filter, err := importer.NewFilter(cfg.ExcludedDomains(), cfg.Filter.ExcludeRegex)
	if err != nil {
		return nil, err
	}

	src, closeSource, err := openSource(c.Args.Takeout, cfg.Import.Mode)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	store, db, err := openStore(ctx, cfg, c.Args.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	defer store.Close()

	log.Info("Opened destination",
		logger.String("path", c.Args.Database),
		logger.String("schema", store.Schema().Name()),
		logger.String("visit_identity", store.VisitIdentity().String()),
	)

	opts := importer.Options{
		BatchSize: cfg.Import.BatchSize,
		DryRun:    cfg.Import.DryRun,
		SourceKey: importer.SourceKey(c.Args.Takeout, c.Args.Database),
		Resume:    cfg.Progress.Resume,
		Filter:    filter,
		Logger:    log,
	}

	if cfg.Progress.Dir != "" {
		dir, err := config.ExpandPath(cfg.Progress.Dir)
		if err != nil {
			return nil, err
		}
		progress, err := importer.OpenBadgerProgress(dir)
		if err != nil {
			return nil, err
		}
		defer progress.Close()
		opts.Progress = progress
	} else if cfg.Progress.Resume {
		return nil, fmt.Errorf("--resume needs a progress directory")
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Textfile != "" {
		reg = prometheus.NewRegistry()
		opts.Metrics = metrics.New(reg)
	}

	stats, runErr := importer.NewDriver(importer.StoreDestination{Store: store}, opts).Run(ctx, src)

	if reg != nil {
		path, err := config.ExpandPath(cfg.Metrics.Textfile)
		if err == nil {
			err = metrics.WriteTextfile(path, reg)
		}
		if err != nil {
			log.Warn("Failed to write metrics", logger.Error(err))
		}
	}

	return stats, runErr
}

// openSource opens the export and wraps it in the decoder selected by mode.
// Buffered mode reads and parses the whole document here, so a malformed
// file fails before the destination is touched.
func openSource(path, mode string) (takeout.Source, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open takeout file: %w", err)
	}
	closeFile := func() { f.Close() }

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if mode == "stream" {
		return takeout.NewStream(r), closeFile, nil
	}

	src, err := takeout.ReadAll(r)
	closeFile()
	if err != nil {
		return nil, nil, fmt.Errorf("read takeout file: %w", err)
	}
	return src, func() {}, nil
}

func (c *ImportCommand) printSummary(stats *importer.Stats, runErr error) error {
	if c.globals != nil && c.globals.JSON {
		out := importJSON{
			Stats:            stats,
			Committed:        stats.Committed(),
			DurationSeconds:  stats.Duration().Seconds(),
			RecordsPerSecond: stats.RecordsPerSecond(),
		}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	title := "Import Complete"
	switch {
	case runErr != nil:
		title = "Import Stopped"
	case stats.DryRun:
		title = "Import Dry Run"
	}
	fmt.Println(title)
	fmt.Println("===============")
	fmt.Printf("Run ID:        %s\n", stats.RunID)
	fmt.Printf("Read:          %s\n", formatNumber(stats.Read))
	if stats.Resumed > 0 {
		fmt.Printf("Resumed:       %s (already committed)\n", formatNumber(stats.Resumed))
	}
	fmt.Printf("Imported:      %s\n", formatNumber(stats.Imported))
	fmt.Printf("Duplicates:    %s\n", formatNumber(stats.Duplicates))
	fmt.Printf("Failed:        %s\n", formatNumber(stats.Failed))
	if stats.Filtered > 0 {
		fmt.Printf("Filtered:      %s\n", formatNumber(stats.Filtered))
	}
	fmt.Printf("Places:        %s created\n", formatNumber(stats.PlacesCreated))
	fmt.Printf("Origins:       %s created\n", formatNumber(stats.OriginsCreated))
	fmt.Printf("Batches:       %s\n", formatNumber(stats.Batches))
	fmt.Printf("Duration:      %s (%.0f entries/s)\n", stats.Duration().Round(time.Millisecond), stats.RecordsPerSecond())

	if stats.DryRun {
		fmt.Println()
		fmt.Println("Dry run: nothing was written.")
	}
	if stats.Failed > 0 {
		fmt.Println()
		fmt.Println("Some entries failed; see the log for details.")
	}
	return nil
}
