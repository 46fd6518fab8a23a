package places

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/placesimport/internal/guid"
	"github.com/runnerr0/placesimport/internal/urlhash"
	"github.com/runnerr0/placesimport/internal/weburl"
)

func mustParse(t *testing.T, raw string) *weburl.URL {
	t.Helper()
	u, err := weburl.Parse(raw)
	require.NoError(t, err)
	return u
}

// --- Origin resolution ---

func TestResolveOrigin_ReusesExisting(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	first, err := batch.ResolveOrigin(ctx, mustParse(t, "https://example.com/a"))
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := batch.ResolveOrigin(ctx, mustParse(t, "https://example.com/b"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, batch.Commit())
	assert.Equal(t, 1, count(t, db, "moz_origins"))
}

func TestResolveOrigin_DefaultPortFolds(t *testing.T) {
	store, _ := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	plain, err := batch.ResolveOrigin(ctx, mustParse(t, "https://host.example/"))
	require.NoError(t, err)

	explicit, err := batch.ResolveOrigin(ctx, mustParse(t, "https://host.example:443/"))
	require.NoError(t, err)
	assert.Equal(t, plain.ID, explicit.ID)

	other, err := batch.ResolveOrigin(ctx, mustParse(t, "https://host.example:8443/"))
	require.NoError(t, err)
	assert.NotEqual(t, plain.ID, other.ID)
	assert.True(t, other.Created)
}

func TestResolveOrigin_StoresPrefixAndHost(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	_, err := batch.ResolveOrigin(ctx, mustParse(t, "http://example.com:8080/x"))
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	var prefix, host string
	var frecency, recalc, recalcAlt int
	err = db.QueryRow(
		"SELECT prefix, host, frecency, recalc_frecency, recalc_alt_frecency FROM moz_origins",
	).Scan(&prefix, &host, &frecency, &recalc, &recalcAlt)
	require.NoError(t, err)
	assert.Equal(t, "http://", prefix)
	assert.Equal(t, "example.com:8080", host)
	assert.Equal(t, 0, frecency)
	assert.Equal(t, 1, recalc)
	assert.Equal(t, 1, recalcAlt)
}

func TestResolveOrigin_Opaque(t *testing.T) {
	store, _ := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	batch := begin(t, store)

	_, err := batch.ResolveOrigin(context.Background(), mustParse(t, "javascript:void(0)"))
	assert.ErrorIs(t, err, weburl.ErrOpaqueOrigin)
}

// --- Place resolution ---

func TestResolvePlace_SameURLSameID(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	first, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/page"), "Page")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.OriginCreated)

	second, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/page"), "Other title")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, batch.Commit())

	assert.Equal(t, 1, count(t, db, "moz_places"))

	place, err := store.PlaceByURL(ctx, "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, int64(0), place.VisitCount, "resolving must not touch aggregates")
	assert.True(t, place.LastVisitDate.IsZero())
	assert.Equal(t, "Page", place.Title, "existing title is kept")
}

func TestResolvePlace_TrailingSlashIsDistinct(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	a, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/docs"), "")
	require.NoError(t, err)
	b, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/docs/"), "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, b.OriginCreated, "both places share one origin")
	require.NoError(t, batch.Commit())

	assert.Equal(t, 2, count(t, db, "moz_places"))
	assert.Equal(t, 1, count(t, db, "moz_origins"))
}

func TestResolvePlace_ReusesBrowserWrittenURL(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()

	// The browser stores these characters unescaped.
	for _, raw := range []string{"https://example.com/a|b", "https://example.com/a^b(c)"} {
		hash, err := urlhash.Hash(raw)
		require.NoError(t, err)
		res, err := db.Exec(
			"INSERT INTO moz_places (url, url_hash, guid) VALUES (?, ?, ?)",
			raw, int64(hash), "browser"+raw[len(raw)-4:],
		)
		require.NoError(t, err)
		existing, err := res.LastInsertId()
		require.NoError(t, err)

		batch := begin(t, store)
		applied, err := batch.Apply(ctx, raw, "t", uint64(42+existing))
		require.NoError(t, err)
		require.NoError(t, batch.Commit())

		assert.False(t, applied.PlaceCreated, raw)
		assert.Equal(t, existing, applied.PlaceID, raw)
	}
	assert.Equal(t, 2, count(t, db, "moz_places"))
}

func TestResolvePlace_Columns(t *testing.T) {
	db := openTestDB(t, schemaV2{})
	ctx := context.Background()
	store, err := NewStore(ctx, db, StoreConfig{
		GUIDs: guid.NewWithSource(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8})),
	})
	require.NoError(t, err)
	defer store.Close()

	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = batch.ResolvePlace(ctx, mustParse(t, "https://Example.com"), "")
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	var url, revHost, guidValue string
	var title *string
	var urlHash, visitCount, recalc, hidden, typed, foreign int64
	var lastVisit *int64
	err = db.QueryRow(`
		SELECT url, title, rev_host, guid, url_hash, visit_count, last_visit_date,
		       recalc_frecency, hidden, typed, foreign_count
		FROM moz_places`,
	).Scan(&url, &title, &revHost, &guidValue, &urlHash, &visitCount, &lastVisit,
		&recalc, &hidden, &typed, &foreign)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/", url)
	assert.Nil(t, title, "empty title is stored as NULL")
	assert.Equal(t, "moc.elpmaxe.", revHost)
	assert.Equal(t, "AAECAwQFBgcI", guidValue)
	assert.Equal(t, int64(47357371248711), urlHash)
	assert.Equal(t, int64(0), visitCount)
	assert.Nil(t, lastVisit)
	assert.Equal(t, int64(1), recalc)
	assert.Zero(t, hidden)
	assert.Zero(t, typed)
	assert.Zero(t, foreign)
}

func TestResolvePlace_V1MarksFrecency(t *testing.T) {
	store, db := openTestStore(t, schemaV1{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	_, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/"), "Example")
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	var frecency int
	require.NoError(t, db.QueryRow("SELECT frecency FROM moz_places").Scan(&frecency))
	assert.Equal(t, -1, frecency)
}

// --- Visit recording ---

func TestRecordVisit_Aggregates(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	place, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/"), "Example")
	require.NoError(t, err)

	require.NoError(t, batch.RecordVisit(ctx, place.ID, 2_000_000))
	require.NoError(t, batch.RecordVisit(ctx, place.ID, 1_000_000))
	require.NoError(t, batch.Commit())

	got, err := store.PlaceByURL(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.VisitCount)
	assert.Equal(t, int64(2_000_000), got.LastVisitDate.UnixMicro())
	assert.Equal(t, 2, count(t, db, "moz_historyvisits"))

	var visitType, session, source, fromVisit int
	var triggering *int64
	err = db.QueryRow(
		"SELECT visit_type, session, source, from_visit, triggeringPlaceId FROM moz_historyvisits LIMIT 1",
	).Scan(&visitType, &session, &source, &fromVisit, &triggering)
	require.NoError(t, err)
	assert.Equal(t, 1, visitType)
	assert.Zero(t, session)
	assert.Zero(t, source)
	assert.Zero(t, fromVisit)
	assert.Nil(t, triggering)
}

func TestRecordVisit_DuplicateTimestamp(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	place, err := batch.ResolvePlace(ctx, mustParse(t, "https://example.com/"), "")
	require.NoError(t, err)

	require.NoError(t, batch.RecordVisit(ctx, place.ID, 42))
	err = batch.RecordVisit(ctx, place.ID, 42)
	assert.ErrorIs(t, err, ErrVisitExists)
	require.NoError(t, batch.Commit())

	got, err := store.PlaceByURL(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.VisitCount)
	assert.Equal(t, 1, count(t, db, "moz_historyvisits"))
}

func TestRecordVisit_TimestampIdentitySpansPlaces(t *testing.T) {
	store, _ := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	a, err := batch.ResolvePlace(ctx, mustParse(t, "https://a.example/"), "")
	require.NoError(t, err)
	b, err := batch.ResolvePlace(ctx, mustParse(t, "https://b.example/"), "")
	require.NoError(t, err)

	require.NoError(t, batch.RecordVisit(ctx, a.ID, 42))
	assert.ErrorIs(t, batch.RecordVisit(ctx, b.ID, 42), ErrVisitExists)
}

func TestRecordVisit_PlaceIdentity(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityPlace)
	ctx := context.Background()
	batch := begin(t, store)

	a, err := batch.ResolvePlace(ctx, mustParse(t, "https://a.example/"), "")
	require.NoError(t, err)
	b, err := batch.ResolvePlace(ctx, mustParse(t, "https://b.example/"), "")
	require.NoError(t, err)

	require.NoError(t, batch.RecordVisit(ctx, a.ID, 42))
	require.NoError(t, batch.RecordVisit(ctx, b.ID, 42))
	assert.ErrorIs(t, batch.RecordVisit(ctx, a.ID, 42), ErrVisitExists)
	require.NoError(t, batch.Commit())

	assert.Equal(t, 2, count(t, db, "moz_historyvisits"))
}

// --- Apply ---

func TestApply_EndToEnd(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	r1, err := batch.Apply(ctx, "https://example.com/a", "A", 100)
	require.NoError(t, err)
	assert.True(t, r1.PlaceCreated)
	assert.True(t, r1.OriginCreated)

	r2, err := batch.Apply(ctx, "https://example.com/a", "A", 200)
	require.NoError(t, err)
	assert.False(t, r2.PlaceCreated)
	assert.Equal(t, r1.PlaceID, r2.PlaceID)

	r3, err := batch.Apply(ctx, "https://example.com/b", "B", 300)
	require.NoError(t, err)
	assert.True(t, r3.PlaceCreated)
	assert.False(t, r3.OriginCreated)
	require.NoError(t, batch.Commit())

	assert.Equal(t, 2, count(t, db, "moz_places"))
	assert.Equal(t, 1, count(t, db, "moz_origins"))
	assert.Equal(t, 3, count(t, db, "moz_historyvisits"))
}

func TestApply_DuplicateDoesNotCreatePlace(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	_, err := batch.Apply(ctx, "https://example.com/a", "A", 100)
	require.NoError(t, err)

	res, err := batch.Apply(ctx, "https://other.example/", "Other", 100)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	require.NoError(t, batch.Commit())

	assert.Equal(t, 1, count(t, db, "moz_places"))
	assert.Equal(t, 1, count(t, db, "moz_origins"))
}

func TestApply_PerEntryErrors(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()
	batch := begin(t, store)

	_, err := batch.Apply(ctx, "no-protocol-here", "", 1)
	assert.ErrorIs(t, err, weburl.ErrRelativeURL)

	_, err = batch.Apply(ctx, "javascript:void(0)", "", 2)
	assert.ErrorIs(t, err, weburl.ErrOpaqueOrigin)

	_, err = batch.Apply(ctx, "https://example.com/", "", 1<<63)
	assert.Error(t, err)

	// The batch is still usable after the failures.
	_, err = batch.Apply(ctx, "https://example.com/", "", 3)
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	assert.Equal(t, 1, count(t, db, "moz_places"))
	assert.Equal(t, 1, count(t, db, "moz_historyvisits"))
}

func TestApply_FailureLeavesNoPartialRows(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()

	_, err := db.Exec(`
		CREATE TRIGGER fail_visit BEFORE INSERT ON moz_historyvisits
		WHEN NEW.visit_date = 666
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END
	`)
	require.NoError(t, err)

	batch := begin(t, store)
	_, err = batch.Apply(ctx, "https://doomed.example/", "Doomed", 666)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBatchBroken)

	_, err = batch.Apply(ctx, "https://fine.example/", "Fine", 667)
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	assert.Equal(t, 1, count(t, db, "moz_places"), "failed entry's place is rolled back")
	assert.Equal(t, 1, count(t, db, "moz_origins"), "failed entry's origin is rolled back")
	assert.Equal(t, 1, count(t, db, "moz_historyvisits"))
}

func TestBatch_RollbackDiscards(t *testing.T) {
	store, db := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()

	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = batch.Apply(ctx, "https://example.com/", "", 1)
	require.NoError(t, err)
	require.NoError(t, batch.Rollback())
	require.NoError(t, batch.Rollback(), "second rollback is a no-op")

	assert.Equal(t, 0, count(t, db, "moz_places"))
}

func TestGetStats(t *testing.T) {
	store, _ := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()

	empty, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", empty.Schema)
	assert.Zero(t, empty.Visits)
	assert.True(t, empty.OldestVisit.IsZero())

	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	for i, u := range []string{"https://a.example/1", "https://a.example/2", "https://b.example/", "https://a.example/1"} {
		_, err := batch.Apply(ctx, u, "", uint64(1_000_000*(i+1)))
		require.NoError(t, err)
	}
	require.NoError(t, batch.Commit())

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Origins)
	assert.Equal(t, int64(3), stats.Places)
	assert.Equal(t, int64(4), stats.Visits)
	assert.Equal(t, int64(1_000_000), stats.OldestVisit.UnixMicro())
	assert.Equal(t, int64(4_000_000), stats.NewestVisit.UnixMicro())
	require.Len(t, stats.TopOrigins, 2)
	assert.Equal(t, OriginCount{Origin: "https://a.example", Visits: 3}, stats.TopOrigins[0])
	assert.Equal(t, OriginCount{Origin: "https://b.example", Visits: 1}, stats.TopOrigins[1])
}

func TestPlaceByURL(t *testing.T) {
	store, _ := openTestStore(t, schemaV2{}, VisitIdentityTimestamp)
	ctx := context.Background()

	batch := begin(t, store)
	applied, err := batch.Apply(ctx, "https://Example.com/a|b", "Pipe", 5_000_000)
	require.NoError(t, err)
	require.NoError(t, batch.Commit())

	place, err := store.PlaceByURL(ctx, "HTTPS://example.com/x/../a|b")
	require.NoError(t, err)
	assert.Equal(t, applied.PlaceID, place.ID)
	assert.Equal(t, "https://example.com/a|b", place.URL)
	assert.Equal(t, "Pipe", place.Title)
	assert.Equal(t, int64(1), place.VisitCount)
	assert.Equal(t, int64(5_000_000), place.LastVisitDate.UnixMicro())

	_, err = store.PlaceByURL(ctx, "https://missing.example/")
	assert.ErrorIs(t, err, ErrPlaceNotFound)
}
