package normalize

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/domain"
)

// Service is the normalization entry point used by the compare pipeline.
// It memoizes results, prefers the AI normalizer when one is configured and
// falls back to the heuristic on any AI failure, so normalization as a whole
// never fails.
type Service struct {
	heuristic *Heuristic
	ai        *AINormalizer
	cache     *lruCache
	log       zerolog.Logger
}

// Options tunes the service. Zero values pick the defaults (10k entries,
// 30 day TTL, no AI).
type Options struct {
	AI        *AINormalizer
	CacheSize int
	CacheTTL  time.Duration
}

func NewService(opts Options, log zerolog.Logger) *Service {
	return &Service{
		heuristic: NewHeuristic(log),
		ai:        opts.AI,
		cache:     newLRUCache(opts.CacheSize, opts.CacheTTL),
		log:       log.With().Str("component", "normalize").Logger(),
	}
}

func (s *Service) Normalize(ctx context.Context, req domain.NormalizeRequest) (*domain.NormalizedProduct, error) {
	key := CacheKey(req)
	if product, ok := s.cache.get(key); ok {
		s.log.Debug().Str("title", req.RawTitle).Msg("normalization cache hit")
		return product, nil
	}

	req.Hints = DetectHints(req.RawTitle)

	var product *domain.NormalizedProduct
	if s.ai != nil {
		p, err := s.ai.Normalize(ctx, req)
		if err != nil {
			s.log.Warn().Err(err).Str("title", req.RawTitle).Msg("ai normalization failed, using heuristic")
		} else {
			product = p
		}
	}
	if product == nil {
		p, err := s.heuristic.Normalize(ctx, req)
		if err != nil {
			return nil, err
		}
		product = p
	}

	s.cache.put(key, product)
	return product, nil
}

// CacheLen reports how many normalization results are memoized.
func (s *Service) CacheLen() int {
	return s.cache.len()
}

// FromProvided builds a product without extraction when the caller already
// trusts its own brand and model fields. Functional state still comes from
// the deterministic hints so damage wording in the title is never ignored.
func FromProvided(rawTitle, brand, model string, condition domain.ConditionGrade, category domain.Category, locale string) *domain.NormalizedProduct {
	hints := DetectHints(rawTitle)
	cleaned := CleanTitle(rawTitle)

	b := NormalizeBrand(brand)
	m := NormalizeModel(model)
	if category == "" {
		category = domain.CategoryProduct
	}

	var capacityGB *int
	var capacityRaw *string
	if category != domain.CategoryVehicle {
		capacityGB, capacityRaw = FindCapacityGB(cleaned)
	}

	state := ResolveFunctionalState(hints, "")
	grade := condition
	gradeConfidence := 0.9
	if grade == "" || grade == domain.ConditionUnknown {
		grade, gradeConfidence = ResolveConditionGrade(hints, "")
	}

	capacityQuery := ""
	if capacityGB != nil {
		capacityQuery = capacityLabel(*capacityGB)
	}
	query := BuildQuery(b, m, capacityQuery, cleaned)

	foldedTitle, _ := foldTitle(cleaned)
	product := &domain.NormalizedProduct{
		NormalizedTitle:     cleaned,
		Brand:               optional(b),
		Model:               optional(m),
		Capacity:            capacityRaw,
		CapacityGB:          capacityGB,
		Category:            category,
		ConditionGrade:      grade,
		FunctionalState:     state,
		IsAccessory:         accessoryRe.MatchString(foldedTitle),
		Query:               query,
		AltQueries:          buildAltQueries(query, b, m, nil),
		Confidence:          0.8,
		ConditionConfidence: gradeConfidence,
		Hints:               hints,
	}
	product.Signatures = ComputeSignatures(product.Brand, product.Model, nil, product.CapacityGB, state, grade, locale)
	return product
}
