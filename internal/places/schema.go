package places

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotPlacesDatabase is returned when the destination lacks the
	// history tables or columns a layout writes.
	ErrNotPlacesDatabase = errors.New("not a places database")

	// ErrPlaceNotFound is returned by PlaceByURL for URLs with no place.
	ErrPlaceNotFound = errors.New("place not found")
)

// Schema describes the statements for one places.sqlite layout. Layouts differ
// in which frecency bookkeeping columns exist; supporting a new browser release
// means adding a variant, not branching inside the resolvers.
type Schema interface {
	// Name is the variant name used in configuration ("v1", "v2").
	Name() string

	// InsertOriginSQL takes (prefix, host) and returns the new id.
	InsertOriginSQL() string

	// InsertPlaceSQL takes (url, title, rev_host, guid, url_hash, origin_id)
	// and returns the new id.
	InsertPlaceSQL() string

	// TouchPlaceSQL takes (visit_date, id) and bumps the visit aggregates.
	TouchPlaceSQL() string

	// InsertVisitSQL takes (place_id, visit_date).
	InsertVisitSQL() string

	// CreateSQL returns the DDL for an empty database of this layout.
	CreateSQL() []string

	// UserVersion is the PRAGMA user_version written by Bootstrap.
	UserVersion() int

	// Columns lists, per table, the columns the statements above touch.
	Columns() map[string][]string
}

// Variant names.
const (
	SchemaAuto = "auto"
	SchemaV1   = "v1"
	SchemaV2   = "v2"
)

// SchemaByName returns the variant with the given name.
func SchemaByName(name string) (Schema, error) {
	switch name {
	case SchemaV1:
		return schemaV1{}, nil
	case SchemaV2:
		return schemaV2{}, nil
	default:
		return nil, fmt.Errorf("unknown schema variant %q", name)
	}
}

// DetectSchema inspects the destination's tables and picks the matching
// variant. The variant's full column list is checked before it is returned.
func DetectSchema(ctx context.Context, db *sql.DB) (Schema, error) {
	columns, err := tableColumns(ctx, db, "moz_places")
	if err != nil {
		return nil, err
	}

	var schema Schema = schemaV1{}
	if columns["recalc_frecency"] {
		schema = schemaV2{}
	}
	if err := CheckSchema(ctx, db, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// CheckSchema reports an ErrNotPlacesDatabase error naming the first table or
// column that schema writes but db lacks.
func CheckSchema(ctx context.Context, db *sql.DB, schema Schema) error {
	required := schema.Columns()
	for _, table := range placesTables {
		columns, err := tableColumns(ctx, db, table)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return fmt.Errorf("%w: missing table %s", ErrNotPlacesDatabase, table)
		}
		for _, column := range required[table] {
			if !columns[column] {
				return fmt.Errorf("%w: %s layout needs column %s.%s",
					ErrNotPlacesDatabase, schema.Name(), table, column)
			}
		}
	}
	return nil
}

var placesTables = []string{"moz_origins", "moz_places", "moz_historyvisits"}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// schemaV1 is the layout with moz_origins but without the recalc_* columns.
// A frecency of -1 marks a place for recalculation.
type schemaV1 struct{}

func (schemaV1) Name() string     { return SchemaV1 }
func (schemaV1) UserVersion() int { return 52 }

var v1Columns = map[string][]string{
	"moz_origins": {
		"id", "prefix", "host", "frecency",
	},
	"moz_places": {
		"id", "url", "title", "rev_host", "visit_count", "hidden", "typed", "frecency",
		"last_visit_date", "guid", "foreign_count", "url_hash", "description",
		"preview_image_url", "origin_id",
	},
	"moz_historyvisits": {
		"id", "from_visit", "place_id", "visit_date", "visit_type", "session", "source",
	},
}

func (schemaV1) Columns() map[string][]string { return v1Columns }

func (schemaV1) InsertOriginSQL() string {
	return `INSERT INTO moz_origins (prefix, host, frecency) VALUES (?, ?, 0) RETURNING id`
}

func (schemaV1) InsertPlaceSQL() string {
	return `
		INSERT INTO moz_places
			(url, title, rev_host, visit_count, hidden, typed, frecency,
			 last_visit_date, guid, foreign_count, url_hash,
			 description, preview_image_url, origin_id)
		VALUES (?, ?, ?, 0, 0, 0, -1, NULL, ?, 0, ?, NULL, NULL, ?)
		RETURNING id
	`
}

func (schemaV1) TouchPlaceSQL() string {
	return `
		UPDATE moz_places
		SET visit_count = visit_count + 1,
		    last_visit_date = max(ifnull(last_visit_date, 0), ?),
		    frecency = -1
		WHERE id = ?
	`
}

func (schemaV1) InsertVisitSQL() string {
	return `
		INSERT INTO moz_historyvisits (from_visit, place_id, visit_date, visit_type, session, source)
		VALUES (0, ?, ?, 1, 0, 0)
	`
}

func (schemaV1) CreateSQL() []string {
	return append([]string{
		`CREATE TABLE IF NOT EXISTS moz_origins (
			id       INTEGER PRIMARY KEY,
			prefix   TEXT NOT NULL,
			host     TEXT NOT NULL,
			frecency INTEGER NOT NULL,
			UNIQUE (prefix, host)
		)`,
		`CREATE TABLE IF NOT EXISTS moz_places (
			id                INTEGER PRIMARY KEY,
			url               LONGVARCHAR,
			title             LONGVARCHAR,
			rev_host          LONGVARCHAR,
			visit_count       INTEGER DEFAULT 0,
			hidden            INTEGER DEFAULT 0 NOT NULL,
			typed             INTEGER DEFAULT 0 NOT NULL,
			frecency          INTEGER DEFAULT -1 NOT NULL,
			last_visit_date   INTEGER,
			guid              TEXT,
			foreign_count     INTEGER DEFAULT 0 NOT NULL,
			url_hash          INTEGER DEFAULT 0 NOT NULL,
			description       TEXT,
			preview_image_url TEXT,
			origin_id         INTEGER REFERENCES moz_origins(id)
		)`,
		`CREATE TABLE IF NOT EXISTS moz_historyvisits (
			id         INTEGER PRIMARY KEY,
			from_visit INTEGER,
			place_id   INTEGER,
			visit_date INTEGER,
			visit_type INTEGER,
			session    INTEGER,
			source     INTEGER DEFAULT 0 NOT NULL
		)`,
	}, commonIndexes...)
}

// schemaV2 adds recalc_frecency, alt_frecency and recalc_alt_frecency to
// origins and places, site_name to places and triggeringPlaceId to visits.
type schemaV2 struct{}

func (schemaV2) Name() string     { return SchemaV2 }
func (schemaV2) UserVersion() int { return 75 }

var v2Columns = map[string][]string{
	"moz_origins": {
		"id", "prefix", "host", "frecency",
		"recalc_frecency", "alt_frecency", "recalc_alt_frecency",
	},
	"moz_places": {
		"id", "url", "title", "rev_host", "visit_count", "hidden", "typed", "frecency",
		"last_visit_date", "guid", "foreign_count", "url_hash", "description",
		"preview_image_url", "site_name", "origin_id",
		"recalc_frecency", "alt_frecency", "recalc_alt_frecency",
	},
	"moz_historyvisits": {
		"id", "from_visit", "place_id", "visit_date", "visit_type", "session", "source",
		"triggeringPlaceId",
	},
}

func (schemaV2) Columns() map[string][]string { return v2Columns }

func (schemaV2) InsertOriginSQL() string {
	return `
		INSERT INTO moz_origins (prefix, host, frecency, recalc_frecency, alt_frecency, recalc_alt_frecency)
		VALUES (?, ?, 0, 1, NULL, 1)
		RETURNING id
	`
}

func (schemaV2) InsertPlaceSQL() string {
	return `
		INSERT INTO moz_places
			(url, title, rev_host, visit_count, hidden, typed,
			 last_visit_date, guid, foreign_count, url_hash,
			 description, preview_image_url, site_name, origin_id,
			 recalc_frecency, alt_frecency, recalc_alt_frecency)
		VALUES (?, ?, ?, 0, 0, 0, NULL, ?, 0, ?, NULL, NULL, NULL, ?, 1, 0, 1)
		RETURNING id
	`
}

func (schemaV2) TouchPlaceSQL() string {
	return `
		UPDATE moz_places
		SET visit_count = visit_count + 1,
		    last_visit_date = max(ifnull(last_visit_date, 0), ?),
		    recalc_frecency = 1
		WHERE id = ?
	`
}

func (schemaV2) InsertVisitSQL() string {
	return `
		INSERT INTO moz_historyvisits
			(from_visit, place_id, visit_date, visit_type, session, source, triggeringPlaceId)
		VALUES (0, ?, ?, 1, 0, 0, NULL)
	`
}

func (schemaV2) CreateSQL() []string {
	return append([]string{
		`CREATE TABLE IF NOT EXISTS moz_origins (
			id                  INTEGER PRIMARY KEY,
			prefix              TEXT NOT NULL,
			host                TEXT NOT NULL,
			frecency            INTEGER NOT NULL,
			recalc_frecency     INTEGER NOT NULL DEFAULT 0,
			alt_frecency        INTEGER,
			recalc_alt_frecency INTEGER NOT NULL DEFAULT 0,
			UNIQUE (prefix, host)
		)`,
		`CREATE TABLE IF NOT EXISTS moz_places (
			id                  INTEGER PRIMARY KEY,
			url                 LONGVARCHAR,
			title               LONGVARCHAR,
			rev_host            LONGVARCHAR,
			visit_count         INTEGER DEFAULT 0,
			hidden              INTEGER DEFAULT 0 NOT NULL,
			typed               INTEGER DEFAULT 0 NOT NULL,
			frecency            INTEGER DEFAULT -1 NOT NULL,
			last_visit_date     INTEGER,
			guid                TEXT,
			foreign_count       INTEGER DEFAULT 0 NOT NULL,
			url_hash            INTEGER DEFAULT 0 NOT NULL,
			description         TEXT,
			preview_image_url   TEXT,
			site_name           TEXT,
			origin_id           INTEGER REFERENCES moz_origins(id),
			recalc_frecency     INTEGER NOT NULL DEFAULT 0,
			alt_frecency        INTEGER,
			recalc_alt_frecency INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS moz_historyvisits (
			id                INTEGER PRIMARY KEY,
			from_visit        INTEGER,
			place_id          INTEGER,
			visit_date        INTEGER,
			visit_type        INTEGER,
			session           INTEGER,
			source            INTEGER DEFAULT 0 NOT NULL,
			triggeringPlaceId INTEGER
		)`,
	}, commonIndexes...)
}

var commonIndexes = []string{
	`CREATE INDEX IF NOT EXISTS moz_places_url_hashindex       ON moz_places (url_hash)`,
	`CREATE INDEX IF NOT EXISTS moz_places_hostindex           ON moz_places (rev_host)`,
	`CREATE INDEX IF NOT EXISTS moz_places_visitcount          ON moz_places (visit_count)`,
	`CREATE INDEX IF NOT EXISTS moz_places_frecencyindex       ON moz_places (frecency)`,
	`CREATE INDEX IF NOT EXISTS moz_places_lastvisitdateindex  ON moz_places (last_visit_date)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS moz_places_guid_uniqueindex ON moz_places (guid)`,
	`CREATE INDEX IF NOT EXISTS moz_places_originidindex       ON moz_places (origin_id)`,
	`CREATE INDEX IF NOT EXISTS moz_historyvisits_placedateindex ON moz_historyvisits (place_id, visit_date)`,
	`CREATE INDEX IF NOT EXISTS moz_historyvisits_fromindex    ON moz_historyvisits (from_visit)`,
	`CREATE INDEX IF NOT EXISTS moz_historyvisits_dateindex    ON moz_historyvisits (visit_date)`,
}
