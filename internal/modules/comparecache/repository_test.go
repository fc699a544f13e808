package comparecache

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lotwise/lotwise/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE compare_cache (
    id               TEXT PRIMARY KEY,
    signature_strict TEXT NOT NULL UNIQUE,
    signature_loose  TEXT NOT NULL,
    query_used       TEXT NOT NULL,
    results          BLOB NOT NULL,
    stats            BLOB NOT NULL,
    confidence       TEXT NOT NULL,
    fetched_at       INTEGER NOT NULL,
    expires_at       INTEGER NOT NULL
);
CREATE INDEX idx_compare_cache_loose ON compare_cache(signature_loose);
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

func testEntry(strict, loose string, fetchedAt, expiresAt int64) *Entry {
	return &Entry{
		SignatureStrict: strict,
		SignatureLoose:  loose,
		QueryUsed:       "apple iphone 13 pro 256gb",
		Results: []domain.SearchResult{
			{Title: "iPhone 13 Pro 256GB", Price: 650, Currency: domain.CurrencyEUR, URL: "https://x/1", Source: "x", Relevance: 0.9},
			{Title: "Apple iPhone 13 Pro", Price: 699, Currency: domain.CurrencyEUR, URL: "https://x/2", Source: "y", Relevance: 0.8},
		},
		Stats:      domain.PriceStats{Min: 650, Median: 674.5, Max: 699, Average: 674.5, Count: 2},
		Confidence: domain.ConfidenceLow,
		FetchedAt:  fetchedAt,
		ExpiresAt:  expiresAt,
	}
}

func TestUpsert_RoundTripsBlobs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UnixMilli()
	stored, err := repo.Upsert(testEntry("sig-strict", "sig-loose", now, now+1000))
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	found, err := repo.FindStrict("sig-strict", now)
	require.NoError(t, err)
	require.NotNil(t, found)

	assert.Equal(t, stored.ID, found.ID)
	assert.Equal(t, "apple iphone 13 pro 256gb", found.QueryUsed)
	require.Len(t, found.Results, 2)
	assert.Equal(t, 650.0, found.Results[0].Price)
	assert.Equal(t, domain.CurrencyEUR, found.Results[0].Currency)
	assert.Equal(t, 674.5, found.Stats.Median)
	assert.Equal(t, 2, found.Stats.Count)
	assert.Equal(t, domain.ConfidenceLow, found.Confidence)
}

func TestUpsert_RefetchKeepsRowID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UnixMilli()
	first, err := repo.Upsert(testEntry("sig-strict", "sig-loose", now, now+1000))
	require.NoError(t, err)

	refetch := testEntry("sig-strict", "sig-loose", now+500, now+1500)
	refetch.QueryUsed = "refetched query"
	second, err := repo.Upsert(refetch)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "refetch must keep the row id stable")

	found, err := repo.FindStrict("sig-strict", now)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "refetched query", found.QueryUsed)
	assert.Equal(t, now+500, found.FetchedAt)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM compare_cache").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFindStrict_IgnoresExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UnixMilli()
	_, err := repo.Upsert(testEntry("sig-strict", "sig-loose", now-2000, now-1000))
	require.NoError(t, err)

	found, err := repo.FindStrict("sig-strict", now)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindLoose_PrefersNewestFetch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UnixMilli()

	old := testEntry("strict-new", "shared-loose", now-5000, now+10000)
	old.QueryUsed = "older fetch"
	_, err := repo.Upsert(old)
	require.NoError(t, err)

	fresh := testEntry("strict-used", "shared-loose", now-1000, now+10000)
	fresh.QueryUsed = "newer fetch"
	_, err = repo.Upsert(fresh)
	require.NoError(t, err)

	found, err := repo.FindLoose("shared-loose", now, now-60000)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "newer fetch", found.QueryUsed)
}

func TestFindLoose_RespectsFreshnessFloor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UnixMilli()
	_, err := repo.Upsert(testEntry("sig-strict", "sig-loose", now-10000, now+10000))
	require.NoError(t, err)

	// Entry is alive but fetched before the floor.
	found, err := repo.FindLoose("sig-loose", now, now-5000)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UnixMilli()
	_, err := repo.Upsert(testEntry("expired-1", "l1", now-2000, now-1000))
	require.NoError(t, err)
	_, err = repo.Upsert(testEntry("expired-2", "l2", now-2000, now-500))
	require.NoError(t, err)
	_, err = repo.Upsert(testEntry("alive", "l3", now, now+10000))
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := repo.Count(now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
