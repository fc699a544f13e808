// Package history records every comparison served to a user and exposes
// the paginated GET /api/history listing. Rows are immutable once written.
package history

import (
	"encoding/json"

	"github.com/lotwise/lotwise/internal/domain"
)

// Entry is one served comparison as returned by the history listing. The
// normalized snapshot is stored as JSON and passed through verbatim so the
// API returns exactly what was recorded at compare time.
type Entry struct {
	ID           string               `json:"id"`
	CreatedAt    int64                `json:"createdAt"` // Unix millis
	Domain       string               `json:"domain"`
	LotURL       *string              `json:"lotUrl"`
	RawTitle     string               `json:"rawTitle"`
	Normalized   json.RawMessage      `json:"normalized"`
	Signatures   domain.Signatures    `json:"signatures"`
	Source       domain.CompareSource `json:"source"`
	CacheEntryID *string              `json:"cacheEntryId"`
	AuctionPrice *float64             `json:"auctionPrice"`
	Currency     *string              `json:"currency"`
}

// Record is the write-side input for one history row.
type Record struct {
	UserID       string
	Domain       string
	LotURL       string
	RawTitle     string
	Normalized   *domain.NormalizedProduct
	Source       domain.CompareSource
	CacheEntryID string
	AuctionPrice float64
	Currency     domain.Currency
}

// ListFilter narrows a history listing. Zero values mean "no filter";
// StartDate/EndDate are YYYY-MM-DD and interpreted as whole days in UTC.
type ListFilter struct {
	Page      int
	PageSize  int
	Domain    string
	Source    domain.CompareSource
	StartDate string
	EndDate   string
}

// Page is one page of history entries plus the total row count for the
// applied filter.
type Page struct {
	Entries  []Entry `json:"entries"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}

// Pagination bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
