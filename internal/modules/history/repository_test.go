package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/lotwise/lotwise/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE search_history (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    created_at       INTEGER NOT NULL,
    domain           TEXT NOT NULL,
    lot_url          TEXT,
    raw_title        TEXT NOT NULL,
    normalized_json  TEXT NOT NULL,
    signature_strict TEXT NOT NULL,
    signature_loose  TEXT NOT NULL,
    source           TEXT NOT NULL CHECK (source IN ('cache_strict','cache_loose','fresh_fetch')),
    cache_entry_id   TEXT,
    auction_price    REAL,
    currency         TEXT
);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func testNormalized(strict, loose string) *domain.NormalizedProduct {
	brand := "Apple"
	model := "iPhone 13 Pro"
	return &domain.NormalizedProduct{
		NormalizedTitle: "iphone 13 pro 256gb",
		Brand:           &brand,
		Model:           &model,
		Category:        domain.CategoryProduct,
		ConditionGrade:  domain.ConditionUnknown,
		FunctionalState: domain.StateOK,
		Query:           "Apple iPhone 13 Pro 256GB",
		Confidence:      0.8,
		Signatures:      domain.Signatures{Strict: strict, Loose: loose},
	}
}

func testRecord(userID string, source domain.CompareSource) Record {
	return Record{
		UserID:       userID,
		Domain:       "auctions.example.fr",
		LotURL:       "https://auctions.example.fr/lot/42",
		RawTitle:     "LOT 42 - iPhone 13 Pro 256 Go",
		Normalized:   testNormalized("sig-s", "sig-l"),
		Source:       source,
		CacheEntryID: "entry-1",
		AuctionPrice: 400,
		Currency:     domain.CurrencyEUR,
	}
}

func TestRecordAndList_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	id, err := repo.Record(testRecord("user-1", domain.SourceFreshFetch))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	page, err := repo.List("user-1", ListFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Entries, 1)

	e := page.Entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "auctions.example.fr", e.Domain)
	assert.Equal(t, "LOT 42 - iPhone 13 Pro 256 Go", e.RawTitle)
	assert.Equal(t, domain.SourceFreshFetch, e.Source)
	require.NotNil(t, e.LotURL)
	assert.Equal(t, "https://auctions.example.fr/lot/42", *e.LotURL)
	require.NotNil(t, e.AuctionPrice)
	assert.Equal(t, 400.0, *e.AuctionPrice)
	require.NotNil(t, e.CacheEntryID)
	assert.Equal(t, "entry-1", *e.CacheEntryID)
	assert.Equal(t, "sig-s", e.Signatures.Strict)

	// The snapshot decodes back into the product that was recorded.
	var snapshot domain.NormalizedProduct
	require.NoError(t, json.Unmarshal(e.Normalized, &snapshot))
	require.NotNil(t, snapshot.Brand)
	assert.Equal(t, "Apple", *snapshot.Brand)
}

func TestList_NewestFirstAndPaginated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	for i := 0; i < 5; i++ {
		rec := testRecord("user-1", domain.SourceCacheStrict)
		rec.RawTitle = fmt.Sprintf("title %d", i)
		_, err := repo.Record(rec)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // distinct created_at
	}

	page, err := repo.List("user-1", ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "title 4", page.Entries[0].RawTitle)
	assert.Equal(t, "title 3", page.Entries[1].RawTitle)

	page, err = repo.List("user-1", ListFilter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "title 0", page.Entries[0].RawTitle)
}

func TestList_ScopedToUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.Record(testRecord("user-1", domain.SourceFreshFetch))
	require.NoError(t, err)
	_, err = repo.Record(testRecord("user-2", domain.SourceFreshFetch))
	require.NoError(t, err)

	page, err := repo.List("user-1", ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestList_Filters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	recA := testRecord("user-1", domain.SourceFreshFetch)
	recA.Domain = "site-a.fr"
	_, err := repo.Record(recA)
	require.NoError(t, err)

	recB := testRecord("user-1", domain.SourceCacheStrict)
	recB.Domain = "site-b.fr"
	_, err = repo.Record(recB)
	require.NoError(t, err)

	page, err := repo.List("user-1", ListFilter{Domain: "site-a.fr"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "site-a.fr", page.Entries[0].Domain)

	page, err = repo.List("user-1", ListFilter{Source: domain.SourceCacheStrict})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, domain.SourceCacheStrict, page.Entries[0].Source)
}

func TestList_DateRange(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.Record(testRecord("user-1", domain.SourceFreshFetch))
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	page, err := repo.List("user-1", ListFilter{StartDate: today, EndDate: today})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = repo.List("user-1", ListFilter{StartDate: yesterday, EndDate: yesterday})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	page, err = repo.List("user-1", ListFilter{StartDate: tomorrow})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestList_CapsPageSize(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	page, err := repo.List("user-1", ListFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
}

func TestList_RejectsBadDates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.List("user-1", ListFilter{StartDate: "25/08/2026"})
	assert.Error(t, err)
}
