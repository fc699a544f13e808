package domain

import "context"

// Normalizer turns a raw auction title into a canonical product descriptor.
// There are two implementations (heuristic and AI-backed) plus a composite
// that tries AI first and falls back to the heuristic. The orchestrator only
// ever sees this interface.
type Normalizer interface {
	Normalize(ctx context.Context, req NormalizeRequest) (*NormalizedProduct, error)
}

// ShoppingProvider searches comparable market listings for a query.
// The production implementation is a plain HTTP client; tests substitute a
// stub. Implementations must honor ctx cancellation.
type ShoppingProvider interface {
	Search(ctx context.Context, query string, locale string, limit int) ([]SearchResult, error)
}
