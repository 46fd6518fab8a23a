package importer

import (
	"context"

	"github.com/runnerr0/placesimport/internal/places"
)

// Destination opens batches against the database being imported into.
type Destination interface {
	Begin(ctx context.Context) (Batch, error)
}

// Batch is one all-or-nothing unit of work.
type Batch interface {
	// Apply imports one entry. Errors wrapping places.ErrBatchBroken end the
	// run; any other error only affects that entry.
	Apply(ctx context.Context, rawURL, title string, timeUsec uint64) (places.Result, error)
	Commit() error
	Rollback() error
}

// StoreDestination adapts a places.Store to Destination.
type StoreDestination struct {
	Store *places.Store
}

// Begin starts a places batch.
func (d StoreDestination) Begin(ctx context.Context) (Batch, error) {
	batch, err := d.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return batch, nil
}
