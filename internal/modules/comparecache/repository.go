package comparecache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository persists compare cache entries in cache.db. The cache profile
// runs with synchronous OFF; losing rows costs upstream API calls, never
// correctness, so no write here needs durability guarantees.
type Repository struct {
	cacheDB *sql.DB
	log     zerolog.Logger
}

// NewRepository creates a new compare cache repository.
func NewRepository(cacheDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		cacheDB: cacheDB,
		log:     log.With().Str("repo", "compare_cache").Logger(),
	}
}

const entryColumns = `id, signature_strict, signature_loose, query_used, results, stats, confidence, fetched_at, expires_at`

// FindStrict returns the unexpired entry for a strict signature, or nil.
func (r *Repository) FindStrict(signature string, now int64) (*Entry, error) {
	query := `SELECT ` + entryColumns + `
	          FROM compare_cache
	          WHERE signature_strict = ? AND expires_at > ?`

	return r.scanOne(r.cacheDB.QueryRow(query, signature, now))
}

// FindLoose returns the freshest unexpired entry for a loose signature
// fetched after minFetchedAt, or nil. Multiple strict entries can share a
// loose signature (same product, different condition grade); the newest
// fetch wins.
func (r *Repository) FindLoose(signature string, now, minFetchedAt int64) (*Entry, error) {
	query := `SELECT ` + entryColumns + `
	          FROM compare_cache
	          WHERE signature_loose = ? AND expires_at > ? AND fetched_at > ?
	          ORDER BY fetched_at DESC
	          LIMIT 1`

	return r.scanOne(r.cacheDB.QueryRow(query, signature, now, minFetchedAt))
}

// Upsert inserts or replaces the entry for its strict signature. A refetch
// of a known product keeps the row id stable so history references stay
// valid.
func (r *Repository) Upsert(entry *Entry) (*Entry, error) {
	resultsBlob, err := msgpack.Marshal(entry.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	statsBlob, err := msgpack.Marshal(entry.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `INSERT INTO compare_cache (` + entryColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(signature_strict) DO UPDATE SET
	              query_used = excluded.query_used,
	              results    = excluded.results,
	              stats      = excluded.stats,
	              confidence = excluded.confidence,
	              fetched_at = excluded.fetched_at,
	              expires_at = excluded.expires_at`

	_, err = r.cacheDB.Exec(query,
		entry.ID,
		entry.SignatureStrict,
		entry.SignatureLoose,
		entry.QueryUsed,
		resultsBlob,
		statsBlob,
		string(entry.Confidence),
		entry.FetchedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	// On conflict the insert id is discarded; read back the surviving row id.
	var id string
	err = r.cacheDB.QueryRow(
		"SELECT id FROM compare_cache WHERE signature_strict = ?",
		entry.SignatureStrict,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to read back cache entry id: %w", err)
	}
	entry.ID = id

	return entry, nil
}

// DeleteExpired removes entries whose expires_at has passed.
// Returns the number of rows removed.
func (r *Repository) DeleteExpired(now int64) (int64, error) {
	result, err := r.cacheDB.Exec("DELETE FROM compare_cache WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache entries: %w", err)
	}

	if count > 0 {
		r.log.Debug().Int64("count", count).Msg("Deleted expired cache entries")
	}

	return count, nil
}

// Count returns the number of live (unexpired) entries.
func (r *Repository) Count(now int64) (int, error) {
	var count int
	err := r.cacheDB.QueryRow("SELECT COUNT(*) FROM compare_cache WHERE expires_at > ?", now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}

func (r *Repository) scanOne(row *sql.Row) (*Entry, error) {
	var entry Entry
	var resultsBlob, statsBlob []byte
	var confidence string

	err := row.Scan(
		&entry.ID,
		&entry.SignatureStrict,
		&entry.SignatureLoose,
		&entry.QueryUsed,
		&resultsBlob,
		&statsBlob,
		&confidence,
		&entry.FetchedAt,
		&entry.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache entry: %w", err)
	}

	if err := msgpack.Unmarshal(resultsBlob, &entry.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results blob: %w", err)
	}
	if err := msgpack.Unmarshal(statsBlob, &entry.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats blob: %w", err)
	}
	entry.Confidence = domain.Confidence(confidence)

	return &entry, nil
}

// nowMillis is the single clock used by the cache; tests override service
// level behavior by passing explicit timestamps instead.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
