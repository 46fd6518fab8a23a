package places

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/runnerr0/placesimport/internal/urlhash"
	"github.com/runnerr0/placesimport/internal/weburl"
)

var (
	// ErrVisitExists is returned by RecordVisit for a duplicate visit.
	ErrVisitExists = errors.New("visit already exists")

	// ErrBatchBroken marks failures that leave the batch transaction unusable.
	ErrBatchBroken = errors.New("batch transaction broken")
)

const entrySavepoint = "import_entry"

// Batch is one destination transaction.
type Batch struct {
	store *Store
	tx    *sql.Tx

	findOrigin    *sql.Stmt
	insertOrigin  *sql.Stmt
	findPlace     *sql.Stmt
	insertPlace   *sql.Stmt
	touchPlace    *sql.Stmt
	insertVisit   *sql.Stmt
	visitAt       *sql.Stmt
	visitForPlace *sql.Stmt
}

// ResolveOrigin finds the moz_origins row for u by exact (prefix, host), or
// creates it with a zero frecency marked for recalculation.
func (b *Batch) ResolveOrigin(ctx context.Context, u *weburl.URL) (OriginRef, error) {
	prefix, host, err := u.Origin()
	if err != nil {
		return OriginRef{}, err
	}

	var id int64
	err = b.findOrigin.QueryRowContext(ctx, prefix, host).Scan(&id)
	if err == nil {
		return OriginRef{ID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return OriginRef{}, fmt.Errorf("find origin: %w", err)
	}

	if err := b.insertOrigin.QueryRowContext(ctx, prefix, host).Scan(&id); err != nil {
		return OriginRef{}, fmt.Errorf("insert origin: %w", err)
	}
	return OriginRef{ID: id, Created: true}, nil
}

// ResolvePlace finds the moz_places row whose url equals u, or creates one
// with no visits. Visit aggregates of an existing place are left untouched.
func (b *Batch) ResolvePlace(ctx context.Context, u *weburl.URL, title string) (PlaceRef, error) {
	rawURL := u.String()
	hash, err := urlhash.Hash(rawURL)
	if err != nil {
		return PlaceRef{}, err
	}

	var id int64
	err = b.findPlace.QueryRowContext(ctx, int64(hash), rawURL).Scan(&id)
	if err == nil {
		return PlaceRef{ID: id}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return PlaceRef{}, fmt.Errorf("find place: %w", err)
	}

	revHost := u.ReverseHost()

	guid, err := b.store.guids.Generate()
	if err != nil {
		return PlaceRef{}, fmt.Errorf("generate guid: %w", err)
	}

	origin, err := b.ResolveOrigin(ctx, u)
	if err != nil {
		return PlaceRef{}, err
	}

	var titleArg sql.NullString
	if title != "" {
		titleArg = sql.NullString{String: title, Valid: true}
	}

	err = b.insertPlace.QueryRowContext(ctx,
		rawURL, titleArg, revHost, guid, int64(hash), origin.ID,
	).Scan(&id)
	if err != nil {
		return PlaceRef{}, fmt.Errorf("insert place: %w", err)
	}

	return PlaceRef{ID: id, Created: true, OriginCreated: origin.Created}, nil
}

// VisitExists reports whether a visit at visitDate is already recorded. With
// VisitIdentityTimestamp placeID is ignored.
func (b *Batch) VisitExists(ctx context.Context, placeID, visitDate int64) (bool, error) {
	var exists bool
	var err error
	if b.store.identity == VisitIdentityPlace {
		err = b.visitForPlace.QueryRowContext(ctx, placeID, visitDate).Scan(&exists)
	} else {
		err = b.visitAt.QueryRowContext(ctx, visitDate).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("check visit: %w", err)
	}
	return exists, nil
}

// RecordVisit bumps the place's visit aggregates and inserts the visit row.
// It returns ErrVisitExists without writing when the visit is a duplicate.
func (b *Batch) RecordVisit(ctx context.Context, placeID, visitDate int64) error {
	exists, err := b.VisitExists(ctx, placeID, visitDate)
	if err != nil {
		return err
	}
	if exists {
		return ErrVisitExists
	}

	res, err := b.touchPlace.ExecContext(ctx, visitDate, placeID)
	if err != nil {
		return fmt.Errorf("update place: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("place %d not found", placeID)
	}

	if _, err := b.insertVisit.ExecContext(ctx, placeID, visitDate); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// Apply imports one history entry: it resolves the place (and origin) and
// records the visit. The entry runs inside a savepoint, so a failure leaves no
// partial rows behind and the batch stays usable. Duplicates are reported in
// the Result, not as an error. Errors wrapping ErrBatchBroken are fatal for
// the batch.
func (b *Batch) Apply(ctx context.Context, rawURL, title string, timeUsec uint64) (Result, error) {
	if timeUsec > math.MaxInt64 {
		return Result{}, fmt.Errorf("timestamp %d out of range", timeUsec)
	}
	visitDate := int64(timeUsec)

	u, err := weburl.Parse(rawURL)
	if err != nil {
		return Result{}, err
	}

	// Keyed on the timestamp alone, a duplicate is known before the place is
	// resolved and must not leave an unvisited place behind.
	if b.store.identity == VisitIdentityTimestamp {
		exists, err := b.VisitExists(ctx, 0, visitDate)
		if err != nil {
			return Result{}, err
		}
		if exists {
			return Result{Duplicate: true}, nil
		}
	}

	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+entrySavepoint); err != nil {
		return Result{}, fmt.Errorf("%w: savepoint: %v", ErrBatchBroken, err)
	}

	res, applyErr := b.apply(ctx, u, title, visitDate)
	if applyErr != nil {
		if _, err := b.tx.ExecContext(ctx, "ROLLBACK TO "+entrySavepoint); err != nil {
			return Result{}, fmt.Errorf("%w: rollback to savepoint: %v", ErrBatchBroken, err)
		}
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE "+entrySavepoint); err != nil {
		return Result{}, fmt.Errorf("%w: release savepoint: %v", ErrBatchBroken, err)
	}

	if errors.Is(applyErr, ErrVisitExists) {
		return Result{PlaceID: res.PlaceID, Duplicate: true}, nil
	}
	if applyErr != nil {
		return Result{}, applyErr
	}
	return res, nil
}

func (b *Batch) apply(ctx context.Context, u *weburl.URL, title string, visitDate int64) (Result, error) {
	place, err := b.ResolvePlace(ctx, u, title)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		PlaceID:       place.ID,
		PlaceCreated:  place.Created,
		OriginCreated: place.OriginCreated,
	}
	if err := b.RecordVisit(ctx, place.ID, visitDate); err != nil {
		return res, err
	}
	return res, nil
}

// Commit makes the batch durable.
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback discards the batch.
func (b *Batch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}
