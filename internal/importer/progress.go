package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// progressPrefix namespaces progress records in BadgerDB.
const progressPrefix = "import:progress:"

// Progress is the resume point of one source/destination pair.
type Progress struct {
	SourceKey string    `json:"source_key"`
	NextIndex int64     `json:"next_index"`
	RunID     string    `json:"run_id"`
	Imported  int64     `json:"imported"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressTracker defines the interface for tracking import progress.
type ProgressTracker interface {
	// Save persists the resume point for p.SourceKey.
	Save(ctx context.Context, p *Progress) error

	// Load returns the saved resume point, or nil, nil if there is none.
	Load(ctx context.Context, sourceKey string) (*Progress, error)

	// Clear removes the saved resume point (for fresh imports).
	Clear(ctx context.Context, sourceKey string) error
}

// SourceKey identifies an import by its source file and destination database.
func SourceKey(sourcePath, destPath string) string {
	if abs, err := filepath.Abs(sourcePath); err == nil {
		sourcePath = abs
	}
	if abs, err := filepath.Abs(destPath); err == nil {
		destPath = abs
	}
	return sourcePath + "|" + destPath
}

// BadgerProgress implements ProgressTracker using BadgerDB for persistence.
// This enables resumable imports across process restarts.
type BadgerProgress struct {
	db    *badger.DB
	owned bool
}

// NewBadgerProgress creates a progress tracker on an already opened BadgerDB.
func NewBadgerProgress(db *badger.DB) *BadgerProgress {
	return &BadgerProgress{db: db}
}

// OpenBadgerProgress opens (or creates) a BadgerDB in dir for progress records.
func OpenBadgerProgress(dir string) (*BadgerProgress, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open progress store: %w", err)
	}
	return &BadgerProgress{db: db, owned: true}, nil
}

// Close closes the BadgerDB if it was opened by OpenBadgerProgress.
func (p *BadgerProgress) Close() error {
	if !p.owned {
		return nil
	}
	return p.db.Close()
}

// Save persists the resume point to BadgerDB.
func (p *BadgerProgress) Save(_ context.Context, progress *Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(progressPrefix+progress.SourceKey), data)
	})
}

// Load retrieves the saved resume point from BadgerDB.
func (p *BadgerProgress) Load(_ context.Context, sourceKey string) (*Progress, error) {
	var progress *Progress

	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(progressPrefix + sourceKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			progress = &Progress{}
			return json.Unmarshal(val, progress)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	return progress, nil
}

// Clear removes the saved resume point from BadgerDB.
func (p *BadgerProgress) Clear(_ context.Context, sourceKey string) error {
	return p.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(progressPrefix + sourceKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// InMemoryProgress implements ProgressTracker using in-memory storage.
type InMemoryProgress struct {
	mu      sync.Mutex
	records map[string]Progress
}

// NewInMemoryProgress creates a new in-memory progress tracker.
func NewInMemoryProgress() *InMemoryProgress {
	return &InMemoryProgress{records: make(map[string]Progress)}
}

// Save stores a copy of the progress.
func (p *InMemoryProgress) Save(_ context.Context, progress *Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[progress.SourceKey] = *progress
	return nil
}

// Load returns a copy of the stored progress.
func (p *InMemoryProgress) Load(_ context.Context, sourceKey string) (*Progress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress, ok := p.records[sourceKey]
	if !ok {
		return nil, nil
	}
	return &progress, nil
}

// Clear removes the stored progress.
func (p *InMemoryProgress) Clear(_ context.Context, sourceKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, sourceKey)
	return nil
}
