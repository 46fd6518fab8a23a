package places

import (
	"database/sql"
	"fmt"
)

// Bootstrap creates an empty places schema of the given layout. Every
// statement uses IF NOT EXISTS and an existing non-zero user_version is left
// alone, so running it against a populated database is a no-op.
func Bootstrap(db *sql.DB, schema Schema) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version != 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range schema.CreateSQL() {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create %s schema: %w", schema.Name(), err)
		}
	}

	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schema.UserVersion())); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return tx.Commit()
}
