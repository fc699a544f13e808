// Package comparecache implements the shared, signature-keyed store of
// prior market-search results. Entries are global (not per user): any
// caller whose normalized product hashes to the same signature reuses the
// same upstream fetch until it expires.
package comparecache

import (
	"time"

	"github.com/lotwise/lotwise/internal/domain"
)

// DefaultTTL is how long a stored comparison stays servable.
const DefaultTTL = 24 * time.Hour

// LooseWindow is the freshness window for loose-signature fallback. A
// loose hit older than this is treated as a miss even if not yet expired.
const LooseWindow = 6 * time.Hour

// Entry is one cached comparison. Results and stats are persisted as
// msgpack blobs and decoded back into the same structs the API returns.
type Entry struct {
	ID              string                `json:"id"`
	SignatureStrict string                `json:"signatureStrict"`
	SignatureLoose  string                `json:"signatureLoose"`
	QueryUsed       string                `json:"queryUsed"`
	Results         []domain.SearchResult `json:"results"`
	Stats           domain.PriceStats     `json:"stats"`
	Confidence      domain.Confidence     `json:"confidence"`
	FetchedAt       int64                 `json:"fetchedAt"` // Unix millis
	ExpiresAt       int64                 `json:"expiresAt"` // Unix millis
}
