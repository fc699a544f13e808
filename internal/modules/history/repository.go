package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/utils"
	"github.com/rs/zerolog"
)

// Repository persists search history in app.db.
type Repository struct {
	appDB *sql.DB
	log   zerolog.Logger
}

// NewRepository creates a new history repository.
func NewRepository(appDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		appDB: appDB,
		log:   log.With().Str("repo", "history").Logger(),
	}
}

// Record appends one history row. The normalized product is snapshotted as
// JSON at write time; later changes to normalization never rewrite history.
func (r *Repository) Record(rec Record) (string, error) {
	snapshot, err := json.Marshal(rec.Normalized)
	if err != nil {
		return "", fmt.Errorf("failed to encode normalized snapshot: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UnixMilli()

	query := `INSERT INTO search_history (
	              id, user_id, created_at, domain, lot_url, raw_title,
	              normalized_json, signature_strict, signature_loose,
	              source, cache_entry_id, auction_price, currency
	          ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.appDB.Exec(query,
		id,
		rec.UserID,
		now,
		rec.Domain,
		nullableString(rec.LotURL),
		rec.RawTitle,
		string(snapshot),
		rec.Normalized.Signatures.Strict,
		rec.Normalized.Signatures.Loose,
		string(rec.Source),
		nullableString(rec.CacheEntryID),
		nullableFloat(rec.AuctionPrice),
		nullableString(string(rec.Currency)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert history row: %w", err)
	}

	return id, nil
}

// List returns one page of a user's history, newest first.
func (r *Repository) List(userID string, filter ListFilter) (*Page, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	where := "WHERE user_id = ?"
	args := []interface{}{userID}

	if filter.Domain != "" {
		where += " AND domain = ?"
		args = append(args, filter.Domain)
	}
	if filter.Source != "" {
		where += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	if filter.StartDate != "" {
		startMs, err := utils.DayStartMillis(filter.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid startDate: %w", err)
		}
		where += " AND created_at >= ?"
		args = append(args, startMs)
	}
	if filter.EndDate != "" {
		endMs, err := utils.DayEndMillis(filter.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid endDate: %w", err)
		}
		where += " AND created_at <= ?"
		args = append(args, endMs)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM search_history " + where
	if err := r.appDB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count history rows: %w", err)
	}

	query := `SELECT id, created_at, domain, lot_url, raw_title, normalized_json,
	                 signature_strict, signature_loose, source, cache_entry_id,
	                 auction_price, currency
	          FROM search_history ` + where + `
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.appDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history rows: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, pageSize)
	for rows.Next() {
		var e Entry
		var lotURL, cacheEntryID, currency sql.NullString
		var auctionPrice sql.NullFloat64
		var normalizedJSON, source string

		err := rows.Scan(
			&e.ID,
			&e.CreatedAt,
			&e.Domain,
			&lotURL,
			&e.RawTitle,
			&normalizedJSON,
			&e.Signatures.Strict,
			&e.Signatures.Loose,
			&source,
			&cacheEntryID,
			&auctionPrice,
			&currency,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		e.Normalized = json.RawMessage(normalizedJSON)
		e.Source = domain.CompareSource(source)
		if lotURL.Valid {
			e.LotURL = &lotURL.String
		}
		if cacheEntryID.Valid {
			e.CacheEntryID = &cacheEntryID.String
		}
		if auctionPrice.Valid {
			e.AuctionPrice = &auctionPrice.Float64
		}
		if currency.Valid {
			e.Currency = &currency.String
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return &Page{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}
