package places

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runnerr0/placesimport/internal/guid"
	"github.com/runnerr0/placesimport/internal/urlhash"
	"github.com/runnerr0/placesimport/internal/weburl"
)

// OpenOptions controls how the destination file is opened.
type OpenOptions struct {
	JournalMode string
	Synchronous string
	BusyTimeout time.Duration
	// MustExist rejects paths that do not exist yet instead of creating an
	// empty database.
	MustExist bool
}

// Open opens the places database at path with the write-ahead log and
// durability pragmas applied to every connection.
func Open(path string, opts OpenOptions) (*sql.DB, error) {
	if opts.MustExist {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat database: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("database path %s is a directory", path)
		}
	}

	params := url.Values{}
	if opts.JournalMode != "" {
		params.Set("_journal_mode", strings.ToUpper(opts.JournalMode))
	}
	if opts.Synchronous != "" {
		params.Set("_synchronous", strings.ToUpper(opts.Synchronous))
	}
	if opts.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", opts.BusyTimeout.Milliseconds()))
	}

	dsn := path
	if len(params) > 0 {
		dsn += "?" + params.Encode()
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The importer is the only writer; one connection keeps every statement
	// on the same transaction.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Schema forces a layout. Nil detects it from the database.
	Schema        Schema
	VisitIdentity VisitIdentity
	// GUIDs generates moz_places.guid values. Nil uses crypto/rand.
	GUIDs *guid.Generator
}

// Store writes history into an existing places database.
type Store struct {
	db       *sql.DB
	schema   Schema
	identity VisitIdentity
	guids    *guid.Generator

	// Prepared statements
	findOrigin     *sql.Stmt
	insertOrigin   *sql.Stmt
	findPlace      *sql.Stmt
	insertPlace    *sql.Stmt
	touchPlace     *sql.Stmt
	insertVisit    *sql.Stmt
	visitAt        *sql.Stmt
	visitForPlace  *sql.Stmt
	placeByURLStmt *sql.Stmt
}

// NewStore creates a Store from an already-opened places database.
func NewStore(ctx context.Context, db *sql.DB, cfg StoreConfig) (*Store, error) {
	s := &Store{
		db:       db,
		schema:   cfg.Schema,
		identity: cfg.VisitIdentity,
		guids:    cfg.GUIDs,
	}

	if s.schema == nil {
		schema, err := DetectSchema(ctx, db)
		if err != nil {
			return nil, err
		}
		s.schema = schema
	} else if err := CheckSchema(ctx, db, s.schema); err != nil {
		return nil, err
	}
	if s.guids == nil {
		s.guids = guid.New()
	}

	if err := s.prepareStatements(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.findOrigin, `SELECT id FROM moz_origins WHERE prefix = ? AND host = ?`},
		{&s.insertOrigin, s.schema.InsertOriginSQL()},
		// url_hash narrows the lookup to the index; url decides identity.
		{&s.findPlace, `SELECT id FROM moz_places WHERE url_hash = ? AND url = ?`},
		{&s.insertPlace, s.schema.InsertPlaceSQL()},
		{&s.touchPlace, s.schema.TouchPlaceSQL()},
		{&s.insertVisit, s.schema.InsertVisitSQL()},
		{&s.visitAt, `SELECT EXISTS(SELECT 1 FROM moz_historyvisits WHERE visit_date = ?)`},
		{&s.visitForPlace, `SELECT EXISTS(SELECT 1 FROM moz_historyvisits WHERE place_id = ? AND visit_date = ?)`},
		{&s.placeByURLStmt, `
			SELECT id, url, ifnull(title, ''), ifnull(rev_host, ''), ifnull(guid, ''), url_hash,
			       ifnull(origin_id, 0), visit_count, ifnull(last_visit_date, 0)
			FROM moz_places WHERE url_hash = ? AND url = ?
		`},
	}

	for _, st := range stmts {
		stmt, err := s.db.PrepareContext(ctx, st.query)
		if err != nil {
			return err
		}
		*st.dst = stmt
	}
	return nil
}

// Schema returns the layout the store writes.
func (s *Store) Schema() Schema {
	return s.schema
}

// VisitIdentity returns the duplicate visit key in use.
func (s *Store) VisitIdentity() VisitIdentity {
	return s.identity
}

// Begin starts a batch. All entries applied to the batch are committed or
// discarded together. The store has a single connection, so other Store
// methods block until the batch ends.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Batch{
		store:         s,
		tx:            tx,
		findOrigin:    tx.StmtContext(ctx, s.findOrigin),
		insertOrigin:  tx.StmtContext(ctx, s.insertOrigin),
		findPlace:     tx.StmtContext(ctx, s.findPlace),
		insertPlace:   tx.StmtContext(ctx, s.insertPlace),
		touchPlace:    tx.StmtContext(ctx, s.touchPlace),
		insertVisit:   tx.StmtContext(ctx, s.insertVisit),
		visitAt:       tx.StmtContext(ctx, s.visitAt),
		visitForPlace: tx.StmtContext(ctx, s.visitForPlace),
	}, nil
}

// PlaceByURL returns the place stored for rawURL after normalization.
func (s *Store) PlaceByURL(ctx context.Context, rawURL string) (*Place, error) {
	u, err := weburl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	hash, err := urlhash.Hash(u.String())
	if err != nil {
		return nil, err
	}

	var p Place
	var lastVisit int64
	err = s.placeByURLStmt.QueryRowContext(ctx, int64(hash), u.String()).Scan(
		&p.ID, &p.URL, &p.Title, &p.RevHost, &p.GUID, &p.URLHash,
		&p.OriginID, &p.VisitCount, &lastVisit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPlaceNotFound, u)
		}
		return nil, fmt.Errorf("get place: %w", err)
	}
	if lastVisit > 0 {
		p.LastVisitDate = time.UnixMicro(lastVisit)
	}
	return &p, nil
}

// GetStats returns aggregate statistics about the database.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Schema: s.schema.Name()}

	counts := []struct {
		dst   *int64
		query string
	}{
		{&stats.Origins, "SELECT COUNT(*) FROM moz_origins"},
		{&stats.Places, "SELECT COUNT(*) FROM moz_places"},
		{&stats.Visits, "SELECT COUNT(*) FROM moz_historyvisits"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count (%s): %w", c.query, err)
		}
	}

	if stats.Visits > 0 {
		var oldest, newest int64
		err := s.db.QueryRowContext(ctx,
			"SELECT MIN(visit_date), MAX(visit_date) FROM moz_historyvisits",
		).Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("visit time range: %w", err)
		}
		stats.OldestVisit = time.UnixMicro(oldest)
		stats.NewestVisit = time.UnixMicro(newest)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.prefix || o.host, SUM(p.visit_count) AS visits
		FROM moz_origins o
		JOIN moz_places p ON p.origin_id = o.id
		GROUP BY o.id
		HAVING visits > 0
		ORDER BY visits DESC, o.id
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("top origins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var oc OriginCount
		if err := rows.Scan(&oc.Origin, &oc.Visits); err != nil {
			return nil, err
		}
		stats.TopOrigins = append(stats.TopOrigins, oc)
	}

	return stats, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.findOrigin, s.insertOrigin, s.findPlace, s.insertPlace,
		s.touchPlace, s.insertVisit, s.visitAt, s.visitForPlace,
		s.placeByURLStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
