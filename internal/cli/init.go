package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/runnerr0/placesimport/internal/places"
)

// Execute implements the go-flags Commander interface for InitCommand.
func (c *InitCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	schema, err := places.SchemaByName(c.Schema)
	if err != nil {
		return err
	}

	db, err := places.Open(c.Args.Database, openOptions(cfg, false))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := places.Bootstrap(db, schema); err != nil {
		return fmt.Errorf("initialize %s: %w", c.Args.Database, err)
	}

	// Bootstrap leaves populated databases alone; report what is there.
	detected, err := places.DetectSchema(context.Background(), db)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"database_path": c.Args.Database,
			"schema":        detected.Name(),
		})
	}

	fmt.Printf("Initialized %s (schema %s)\n", c.Args.Database, detected.Name())
	return nil
}
