// Package domain provides core domain models and types.
package domain

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// Category classifies what kind of item a lot is
type Category string

const (
	CategoryProduct Category = "product"
	CategoryVehicle Category = "vehicle"
)

// ConditionGrade represents the declared wear grade of an item
type ConditionGrade string

const (
	ConditionNew     ConditionGrade = "new"
	ConditionUsed    ConditionGrade = "used"
	ConditionUnknown ConditionGrade = "unknown"
)

// FunctionalState represents whether the item works
type FunctionalState string

const (
	StateOK      FunctionalState = "ok"
	StateBroken  FunctionalState = "broken"
	StateUnknown FunctionalState = "unknown"
)

// CompareSource identifies how a comparison was resolved
type CompareSource string

const (
	SourceCacheStrict CompareSource = "cache_strict"
	SourceCacheLoose  CompareSource = "cache_loose"
	SourceFreshFetch  CompareSource = "fresh_fetch"
)

// Confidence is the tiered trust level of a price distribution
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Verdict is the recommendation derived from auction price vs market stats
type Verdict string

const (
	VerdictWorthIt    Verdict = "worth_it"
	VerdictBorderline Verdict = "borderline"
	VerdictNotWorthIt Verdict = "not_worth_it"
)

// ExtractionConfidence mirrors the scraper's self-reported trust in the
// brand/model fields it sends along with a compare request.
type ExtractionConfidence string

const (
	ExtractionLow    ExtractionConfidence = "low"
	ExtractionMedium ExtractionConfidence = "medium"
	ExtractionHigh   ExtractionConfidence = "high"
)

// DeterministicHints carries the regex-based detections made before any
// AI call. High-confidence hints always win over AI output.
type DeterministicHints struct {
	BrokenIndicators    []string       `json:"brokenIndicators"`
	ConditionIndicators []string       `json:"conditionIndicators"`
	BrokenConfidence    float64        `json:"brokenConfidence"`
	ConditionConfidence float64        `json:"conditionConfidence"`
	DetectedGrade       ConditionGrade `json:"detectedGrade,omitempty"`
}

// Signatures holds the two content-addressed cache keys of a normalized
// product. Strict includes the condition grade, loose omits it.
type Signatures struct {
	Strict string `json:"strict"`
	Loose  string `json:"loose"`
}

// NormalizedProduct is the canonical descriptor produced by normalization.
type NormalizedProduct struct {
	NormalizedTitle     string             `json:"normalizedTitle"`
	Brand               *string            `json:"brand"`
	Model               *string            `json:"model"`
	Reference           *string            `json:"reference"`
	Capacity            *string            `json:"capacity"`    // Raw capacity string, e.g. "256GB", "1.6L"
	CapacityGB          *int               `json:"capacity_gb"` // Storage capacity normalized to GiB
	Category            Category           `json:"category"`
	ConditionGrade      ConditionGrade     `json:"condition_grade"`
	FunctionalState     FunctionalState    `json:"functional_state"`
	IsAccessory         bool               `json:"isAccessory"`
	Query               string             `json:"query"`
	AltQueries          []string           `json:"altQueries"`
	Confidence          float64            `json:"confidence"`
	ConditionConfidence float64            `json:"conditionConfidence"`
	Hints               DeterministicHints `json:"hints"`
	Signatures          Signatures         `json:"signatures"`
}

// NormalizeRequest is the input contract shared by the heuristic and AI
// normalizers.
type NormalizeRequest struct {
	RawTitle     string             `json:"rawTitle"`
	SiteDomain   string             `json:"siteDomain"`
	Locale       string             `json:"locale"`
	BrandHint    string             `json:"brandHint,omitempty"`
	ModelHint    string             `json:"modelHint,omitempty"`
	CategoryHint Category           `json:"categoryHint,omitempty"`
	Hints        DeterministicHints `json:"hints"`
}

// SearchResult is one comparable market listing returned by the shopping
// provider.
type SearchResult struct {
	Title     string   `json:"title"`
	Price     float64  `json:"price"`
	Currency  Currency `json:"currency"`
	URL       string   `json:"url"`
	Source    string   `json:"source"`
	Relevance float64  `json:"relevance"`
}

// PriceStats summarizes the price distribution of the retained results.
type PriceStats struct {
	Min     float64 `json:"min"`
	Median  float64 `json:"median"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
