package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/placesimport/internal/places"
	"github.com/runnerr0/placesimport/internal/takeout"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// isolateHome points HOME at an empty temp dir so no user config is loaded.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

// setupDatabase creates a bootstrapped v2 places database and returns its path.
func setupDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.sqlite")
	db, err := places.Open(path, places.OpenOptions{JournalMode: "wal"})
	require.NoError(t, err)
	defer db.Close()

	schema, err := places.SchemaByName(places.SchemaV2)
	require.NoError(t, err)
	require.NoError(t, places.Bootstrap(db, schema))
	return path
}

// openTestStore opens the database at path for assertions.
func openTestStore(t *testing.T, path string) (*places.Store, *sql.DB) {
	t.Helper()
	db, err := places.Open(path, places.OpenOptions{BusyTimeout: time.Second, MustExist: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := places.NewStore(context.Background(), db, places.StoreConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, db
}

// writeTakeout writes entries as a BrowserHistory.json and returns its path.
func writeTakeout(t *testing.T, entries ...takeout.Entry) string {
	t.Helper()
	data, err := json.Marshal(map[string][]takeout.Entry{takeout.HistoryKey: entries})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "BrowserHistory.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
