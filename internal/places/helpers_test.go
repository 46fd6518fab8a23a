package places

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// openTestDB creates an empty places database of the given layout in a temp dir.
func openTestDB(t *testing.T, schema Schema) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.sqlite")
	db, err := Open(path, OpenOptions{JournalMode: "wal", Synchronous: "normal", BusyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Bootstrap(db, schema))
	return db
}

// openTestStore creates a bootstrapped Store for testing.
func openTestStore(t *testing.T, schema Schema, identity VisitIdentity) (*Store, *sql.DB) {
	t.Helper()
	db := openTestDB(t, schema)

	store, err := NewStore(context.Background(), db, StoreConfig{VisitIdentity: identity})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db
}

// begin starts a batch and rolls it back at cleanup if the test did not end it.
func begin(t *testing.T, store *Store) *Batch {
	t.Helper()
	batch, err := store.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = batch.Rollback() })
	return batch
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
