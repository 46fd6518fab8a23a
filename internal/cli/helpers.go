package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runnerr0/placesimport/internal/config"
	"github.com/runnerr0/placesimport/internal/logger"
	"github.com/runnerr0/placesimport/internal/places"
)

// loadConfig loads --config when given, else the default config file if it
// exists, else the built-in defaults.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if globals != nil && globals.Config != "" {
		path, pathErr := config.ExpandPath(globals.Config)
		if pathErr != nil {
			return nil, pathErr
		}
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if globals != nil && globals.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the stderr logger described by cfg.
func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

// openOptions maps the destination config section to places.OpenOptions.
func openOptions(cfg *config.Config, mustExist bool) places.OpenOptions {
	return places.OpenOptions{
		JournalMode: cfg.Destination.JournalMode,
		Synchronous: cfg.Destination.Synchronous,
		BusyTimeout: time.Duration(cfg.Destination.BusyTimeoutMS) * time.Millisecond,
		MustExist:   mustExist,
	}
}

// openStore opens an existing places database and prepares a Store on it.
func openStore(ctx context.Context, cfg *config.Config, path string) (*places.Store, *sql.DB, error) {
	db, err := places.Open(path, openOptions(cfg, true))
	if err != nil {
		return nil, nil, err
	}

	storeCfg := places.StoreConfig{}
	if cfg.Import.Schema != places.SchemaAuto {
		schema, err := places.SchemaByName(cfg.Import.Schema)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		storeCfg.Schema = schema
	}
	identity, ok := places.ParseVisitIdentity(cfg.Import.VisitIdentity)
	if !ok {
		db.Close()
		return nil, nil, fmt.Errorf("unknown visit identity %q", cfg.Import.VisitIdentity)
	}
	storeCfg.VisitIdentity = identity

	store, err := places.NewStore(ctx, db, storeCfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open places store: %w", err)
	}
	return store, db, nil
}
