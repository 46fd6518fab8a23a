package importer

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/runnerr0/placesimport/internal/logger"
	"github.com/runnerr0/placesimport/internal/places"
	"github.com/runnerr0/placesimport/internal/takeout"
)

var errInjected = errors.New("injected commit failure")

// testDestination is a bootstrapped places database in a temp dir.
type testDestination struct {
	db    *sql.DB
	store *places.Store
}

func newTestDestination(t *testing.T) *testDestination {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.sqlite")
	db, err := places.Open(path, places.OpenOptions{JournalMode: "wal", Synchronous: "normal", BusyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := places.SchemaByName(places.SchemaV2)
	require.NoError(t, err)
	require.NoError(t, places.Bootstrap(db, schema))

	store, err := places.NewStore(context.Background(), db, places.StoreConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &testDestination{db: db, store: store}
}

func (d *testDestination) dest() Destination {
	return StoreDestination{Store: d.store}
}

func (d *testDestination) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, d.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// document renders entries as a takeout export.
func document(t *testing.T, entries ...takeout.Entry) string {
	t.Helper()
	data, err := json.Marshal(map[string][]takeout.Entry{takeout.HistoryKey: entries})
	require.NoError(t, err)
	return string(data)
}

func sourceOf(t *testing.T, entries ...takeout.Entry) takeout.Source {
	t.Helper()
	src, err := takeout.ReadAll(strings.NewReader(document(t, entries...)))
	require.NoError(t, err)
	return src
}

// numbered returns n entries with distinct URLs and timestamps.
func numbered(n int) []takeout.Entry {
	entries := make([]takeout.Entry, n)
	for i := range entries {
		entries[i] = takeout.Entry{
			URL:      "https://example.com/page/" + string(rune('a'+i)),
			Title:    "Page",
			TimeUsec: uint64(1_700_000_000_000_000 + i),
		}
	}
	return entries
}

func observedLogger() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

// failingDestination wraps a Destination and fails the Nth commit.
type failingDestination struct {
	inner        Destination
	failCommitAt int
	commits      int
}

func (f *failingDestination) Begin(ctx context.Context) (Batch, error) {
	b, err := f.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingBatch{Batch: b, dest: f}, nil
}

type failingBatch struct {
	Batch
	dest *failingDestination
}

func (b *failingBatch) Commit() error {
	b.dest.commits++
	if b.dest.commits == b.dest.failCommitAt {
		_ = b.Batch.Rollback()
		return errInjected
	}
	return b.Batch.Commit()
}

// errSource yields its entries and then a read error.
type errSource struct {
	entries []takeout.Entry
	err     error
}

func (s *errSource) Next() (takeout.Entry, error) {
	if len(s.entries) == 0 {
		return takeout.Entry{}, s.err
	}
	e := s.entries[0]
	s.entries = s.entries[1:]
	return e, nil
}
