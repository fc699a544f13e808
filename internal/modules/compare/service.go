package compare

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/dedup"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/modules/comparecache"
	"github.com/lotwise/lotwise/internal/modules/credits"
	"github.com/lotwise/lotwise/internal/modules/history"
	"github.com/lotwise/lotwise/internal/normalize"
)

// ErrNoResults is returned when the provider yields nothing comparable even
// after the relevance threshold is relaxed. The credit is still consumed:
// the upstream call happened.
var ErrNoResults = errors.New("no comparable listings found")

// QuotaError signals that a fresh fetch was refused for lack of credits.
// It carries the usage snapshot so the handler can return it alongside the
// 402 body.
type QuotaError struct {
	Code  string
	Usage domain.UsageInfo
}

func (e *QuotaError) Error() string {
	return "insufficient credits"
}

// searchLimit is how many listings we request from the shopping provider
// before relevance filtering.
const searchLimit = 20

// Service is the compare orchestrator. It owns the request state machine;
// the cache, ledger, rate limiter and dedup layers never call back into it.
type Service struct {
	normalizer *normalize.Service
	cache      *comparecache.Service
	credits    *credits.Service
	history    *history.Repository
	shopping   domain.ShoppingProvider
	deduper    *dedup.Deduper
	margin     float64
	log        zerolog.Logger
}

// NewService creates a new compare service. margin is the verdict margin
// (fraction below the market minimum that still counts as worth it).
func NewService(
	normalizer *normalize.Service,
	cache *comparecache.Service,
	creditService *credits.Service,
	historyRepo *history.Repository,
	shopping domain.ShoppingProvider,
	deduper *dedup.Deduper,
	margin float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		normalizer: normalizer,
		cache:      cache,
		credits:    creditService,
		history:    historyRepo,
		shopping:   shopping,
		deduper:    deduper,
		margin:     margin,
		log:        log.With().Str("component", "compare").Logger(),
	}
}

// Compare runs one comparison for an authenticated user. The request must
// already be validated.
//
// Cache hits never consume credits and always recompute the verdict with
// the caller's current auction price. On a miss the fetch is deduplicated
// by strict signature, the cache entry is written before the credit is
// consumed, and a consume failure after a successful fetch degrades to a
// reconciliation ledger row instead of losing the result.
func (s *Service) Compare(ctx context.Context, userID string, req domain.CompareRequest) (*domain.CompareResponse, error) {
	product, err := s.normalizeRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("normalization failed: %w", err)
	}

	entry, source, err := s.cache.Resolve(product.Signatures, product.ConditionGrade, product.ConditionConfidence, req.ForceRefresh)
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	if entry != nil {
		s.recordHistory(userID, req, product, source, entry.ID)

		avail, err := s.credits.HasCreditsAvailable(userID)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Credits snapshot failed on cache hit")
			avail = &credits.Availability{}
		}
		usage := domain.UsageInfo{Balance: avail.Balance, FreeAvailable: avail.FreeAvailable, Consumed: false}

		s.log.Info().
			Str("user_id", userID).
			Str("source", string(source)).
			Str("signature", product.Signatures.Strict).
			Msg("Compare served from cache")
		return s.buildResponse(entry, source, product, req, usage), nil
	}

	avail, err := s.credits.HasCreditsAvailable(userID)
	if err != nil {
		return nil, fmt.Errorf("credits check failed: %w", err)
	}
	if !avail.Available {
		return nil, &QuotaError{
			Code:  s.quotaCode(userID),
			Usage: domain.UsageInfo{Balance: avail.Balance, FreeAvailable: avail.FreeAvailable, Consumed: false},
		}
	}

	v, err, shared := s.deduper.Do(product.Signatures.Strict, func() (any, error) {
		return s.fetchAndStore(ctx, product, req.Category, req.Locale, req.AuctionPrice)
	})
	if err != nil {
		if errors.Is(err, ErrNoResults) {
			// The upstream call happened; the quota is spent either way.
			if _, cerr := s.credits.ConsumeCredit(userID, ""); cerr != nil {
				s.log.Warn().Err(cerr).Str("user_id", userID).Msg("Consume after empty fetch failed")
			}
			s.recordHistory(userID, req, product, domain.SourceFreshFetch, "")
			return nil, ErrNoResults
		}
		return nil, err
	}
	entry = v.(*comparecache.Entry)
	if shared {
		s.log.Debug().Str("signature", product.Signatures.Strict).Msg("Fetch shared with concurrent request")
	}

	usage := s.consumeAfterFetch(userID, entry.ID)
	s.recordHistory(userID, req, product, domain.SourceFreshFetch, entry.ID)

	s.log.Info().
		Str("user_id", userID).
		Str("signature", product.Signatures.Strict).
		Int("results", len(entry.Results)).
		Bool("shared", shared).
		Msg("Compare served from fresh fetch")
	return s.buildResponse(entry, domain.SourceFreshFetch, product, req, usage), nil
}

// normalizeRequest builds the canonical product for the request. When the
// caller already supplies both brand and model, or self-reports a high
// extraction confidence, the AI/heuristic pass is skipped entirely.
func (s *Service) normalizeRequest(ctx context.Context, req domain.CompareRequest) (*domain.NormalizedProduct, error) {
	if (req.Brand != "" && req.Model != "") || req.ExtractionConfidence == domain.ExtractionHigh {
		return normalize.FromProvided(req.Title, req.Brand, req.Model, req.Condition, req.Category, req.Locale), nil
	}

	return s.normalizer.Normalize(ctx, domain.NormalizeRequest{
		RawTitle:     req.Title,
		SiteDomain:   req.SiteDomain,
		Locale:       req.Locale,
		BrandHint:    req.Brand,
		ModelHint:    req.Model,
		CategoryHint: req.Category,
	})
}

// fetchAndStore is the dedup-protected leg: search, filter, score and
// persist. Concurrent callers with the same strict signature share the
// returned entry. A provider failure is treated as an empty market, not as
// a server error.
func (s *Service) fetchAndStore(ctx context.Context, product *domain.NormalizedProduct, category domain.Category, locale string, auctionPrice float64) (*comparecache.Entry, error) {
	results, err := s.shopping.Search(ctx, product.Query, locale, searchLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("query", product.Query).Msg("Shopping search failed")
		return nil, ErrNoResults
	}

	scored := ScoreResults(results, product.Query, product.Brand)
	kept := FilterResults(scored, category, auctionPrice)
	if len(kept) == 0 {
		s.log.Info().Str("query", product.Query).Int("raw_results", len(results)).Msg("No relevant listings retained")
		return nil, ErrNoResults
	}

	stats := ComputeStats(kept)
	confidence := DeriveConfidence(kept)

	entry, err := s.cache.Store(product.Signatures, product.Query, kept, stats, confidence, comparecache.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to store comparison: %w", err)
	}
	return entry, nil
}

// consumeAfterFetch spends one credit for a completed fetch and returns the
// usage snapshot for the response. The cache entry is already written, so a
// consume failure keeps the result (it benefits every user sharing the
// signature) and leaves a reconciliation row in the ledger instead.
func (s *Service) consumeAfterFetch(userID, comparisonID string) domain.UsageInfo {
	consumed := true
	if _, err := s.credits.ConsumeCredit(userID, comparisonID); err != nil {
		consumed = false
		s.log.Error().Err(err).
			Str("user_id", userID).
			Str("comparison_id", comparisonID).
			Msg("Consume failed after successful fetch")
		if rerr := s.credits.RecordConsumeFailure(userID, comparisonID); rerr != nil {
			s.log.Error().Err(rerr).Str("user_id", userID).Msg("Failed to record consume failure")
		}
	}

	avail, err := s.credits.HasCreditsAvailable(userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Credits snapshot failed after consume")
		avail = &credits.Availability{}
	}
	return domain.UsageInfo{Balance: avail.Balance, FreeAvailable: avail.FreeAvailable, Consumed: consumed}
}

// quotaCode picks the 402 code: a user who never purchased exhausted the
// free allowance, anyone else ran out of paid credits.
func (s *Service) quotaCode(userID string) string {
	summary, err := s.credits.Summary(userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Credits summary failed on quota refusal")
		return domain.ErrCodeQuotaExceeded
	}
	if summary.TotalPurchased == 0 {
		return domain.ErrCodeFreeExhausted
	}
	return domain.ErrCodeQuotaExceeded
}

func (s *Service) recordHistory(userID string, req domain.CompareRequest, product *domain.NormalizedProduct, source domain.CompareSource, cacheEntryID string) {
	_, err := s.history.Record(history.Record{
		UserID:       userID,
		Domain:       req.SiteDomain,
		LotURL:       req.LotURL,
		RawTitle:     req.Title,
		Normalized:   product,
		Source:       source,
		CacheEntryID: cacheEntryID,
		AuctionPrice: req.AuctionPrice,
		Currency:     req.Currency,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to record search history")
	}
}

func (s *Service) buildResponse(entry *comparecache.Entry, source domain.CompareSource, product *domain.NormalizedProduct, req domain.CompareRequest, usage domain.UsageInfo) *domain.CompareResponse {
	signatureUsed := product.Signatures.Strict
	if source == domain.SourceCacheLoose {
		signatureUsed = product.Signatures.Loose
	}

	return &domain.CompareResponse{
		QueryUsed:  entry.QueryUsed,
		Results:    entry.Results,
		Stats:      entry.Stats,
		Confidence: entry.Confidence,
		Verdict:    DeriveVerdict(req.AuctionPrice, entry.Stats, s.margin),
		CachedAt:   entry.FetchedAt,
		ExpiresAt:  entry.ExpiresAt,
		Cache: domain.CacheInfo{
			Source:        source,
			CacheEntryID:  entry.ID,
			FetchedAt:     entry.FetchedAt,
			ExpiresAt:     entry.ExpiresAt,
			SignatureUsed: signatureUsed,
		},
		Normalized: domain.NormalizedSummary{
			Brand:           product.Brand,
			Model:           product.Model,
			CapacityGB:      product.CapacityGB,
			ConditionGrade:  product.ConditionGrade,
			FunctionalState: product.FunctionalState,
			Category:        product.Category,
			Signatures:      product.Signatures,
		},
		Usage: usage,
	}
}
