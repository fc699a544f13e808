package domain

import (
	"fmt"
	"strings"
)

// CompareRequest is the body of POST /api/compare.
type CompareRequest struct {
	Title                string               `json:"title"`
	Brand                string               `json:"brand,omitempty"`
	Model                string               `json:"model,omitempty"`
	Condition            ConditionGrade       `json:"condition,omitempty"`
	Currency             Currency             `json:"currency"`
	Locale               string               `json:"locale"`
	AuctionPrice         float64              `json:"auctionPrice"`
	SiteDomain           string               `json:"siteDomain"`
	LotURL               string               `json:"lotUrl,omitempty"`
	Category             Category             `json:"category,omitempty"`
	ExtractionConfidence ExtractionConfidence `json:"extractionConfidence,omitempty"`
	ForceRefresh         bool                 `json:"forceRefresh,omitempty"`
}

// Validate checks the request and applies defaults for optional enums.
func (r *CompareRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.AuctionPrice <= 0 {
		return fmt.Errorf("auctionPrice must be positive")
	}
	if strings.TrimSpace(r.SiteDomain) == "" {
		return fmt.Errorf("siteDomain is required")
	}

	switch r.Currency {
	case CurrencyEUR, CurrencyUSD, CurrencyGBP:
	case "":
		r.Currency = CurrencyEUR
	default:
		return fmt.Errorf("unsupported currency: %q", r.Currency)
	}

	if r.Locale == "" {
		r.Locale = "fr"
	}

	switch r.Category {
	case CategoryProduct, CategoryVehicle:
	case "":
		r.Category = CategoryProduct
	default:
		return fmt.Errorf("unsupported category: %q", r.Category)
	}

	switch r.Condition {
	case ConditionNew, ConditionUsed, ConditionUnknown, "":
	default:
		return fmt.Errorf("unsupported condition: %q", r.Condition)
	}

	switch r.ExtractionConfidence {
	case ExtractionLow, ExtractionMedium, ExtractionHigh, "":
	default:
		return fmt.Errorf("unsupported extractionConfidence: %q", r.ExtractionConfidence)
	}

	return nil
}

// CacheInfo describes how a comparison was resolved against the shared cache.
type CacheInfo struct {
	Source        CompareSource `json:"source"`
	CacheEntryID  string        `json:"cacheEntryId"`
	FetchedAt     int64         `json:"fetchedAt"` // Unix millis
	ExpiresAt     int64         `json:"expiresAt"` // Unix millis
	SignatureUsed string        `json:"signatureUsed"`
}

// NormalizedSummary is the slice of the normalized product echoed back to
// the caller.
type NormalizedSummary struct {
	Brand           *string         `json:"brand"`
	Model           *string         `json:"model"`
	CapacityGB      *int            `json:"capacity_gb"`
	ConditionGrade  ConditionGrade  `json:"condition_grade"`
	FunctionalState FunctionalState `json:"functional_state"`
	Category        Category        `json:"category"`
	Signatures      Signatures      `json:"signatures"`
}

// UsageInfo is the credits snapshot attached to compare responses.
type UsageInfo struct {
	Balance       int  `json:"balance"`
	FreeAvailable bool `json:"freeAvailable"`
	Consumed      bool `json:"consumed"`
}

// CompareResponse is the success body of POST /api/compare. Cache hits and
// fresh fetches share this shape.
type CompareResponse struct {
	QueryUsed  string            `json:"queryUsed"`
	Results    []SearchResult    `json:"results"`
	Stats      PriceStats        `json:"stats"`
	Confidence Confidence        `json:"confidence"`
	Verdict    Verdict           `json:"verdict"`
	CachedAt   int64             `json:"cachedAt"`  // Unix millis
	ExpiresAt  int64             `json:"expiresAt"` // Unix millis
	Cache      CacheInfo         `json:"cache"`
	Normalized NormalizedSummary `json:"normalized"`
	Usage      UsageInfo         `json:"usage"`
}

// API error codes shared by all handlers.
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeNoResults      = "NO_RESULTS"
	ErrCodeQuotaExceeded  = "QUOTA_EXCEEDED"
	ErrCodeFreeExhausted  = "FREE_EXHAUSTED"
	ErrCodeAPIError       = "API_ERROR"
)

// APIError is the wire shape of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
