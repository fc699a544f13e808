package comparecache

import (
	"fmt"
	"time"

	"github.com/lotwise/lotwise/internal/domain"
	"github.com/rs/zerolog"
)

// Service implements the strict-first / loose-fallback resolution policy
// over the repository.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new compare cache service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "compare_cache").Logger(),
	}
}

// Resolve looks up a cached comparison for the given signatures.
// Resolution order:
//  1. forceRefresh bypasses the cache entirely.
//  2. Strict signature with a live TTL.
//  3. Loose signature, only when the caller's condition grade is uncertain
//     (unknown grade or detection confidence < 0.5) and the entry was
//     fetched within the loose freshness window.
//
// A nil entry with SourceFreshFetch means the caller must fetch upstream.
func (s *Service) Resolve(sigs domain.Signatures, grade domain.ConditionGrade, conditionConfidence float64, forceRefresh bool) (*Entry, domain.CompareSource, error) {
	if forceRefresh {
		return nil, domain.SourceFreshFetch, nil
	}

	now := nowMillis()

	entry, err := s.repo.FindStrict(sigs.Strict, now)
	if err != nil {
		return nil, domain.SourceFreshFetch, fmt.Errorf("strict cache lookup failed: %w", err)
	}
	if entry != nil {
		return entry, domain.SourceCacheStrict, nil
	}

	if !shouldAllowLooseLookup(grade, conditionConfidence) {
		return nil, domain.SourceFreshFetch, nil
	}

	minFetchedAt := now - LooseWindow.Milliseconds()
	entry, err = s.repo.FindLoose(sigs.Loose, now, minFetchedAt)
	if err != nil {
		return nil, domain.SourceFreshFetch, fmt.Errorf("loose cache lookup failed: %w", err)
	}
	if entry != nil {
		return entry, domain.SourceCacheLoose, nil
	}

	return nil, domain.SourceFreshFetch, nil
}

// shouldAllowLooseLookup gates the loose fallback: a confidently graded
// item must never reuse a comparison made under a different grade, because
// grade moves price. An uncertain grade gets the cheaper answer.
func shouldAllowLooseLookup(grade domain.ConditionGrade, conditionConfidence float64) bool {
	return grade == domain.ConditionUnknown || conditionConfidence < 0.5
}

// Store upserts a freshly fetched comparison under its strict signature.
// A non-positive ttl falls back to DefaultTTL.
func (s *Service) Store(sigs domain.Signatures, queryUsed string, results []domain.SearchResult, stats domain.PriceStats, confidence domain.Confidence, ttl time.Duration) (*Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := nowMillis()
	entry := &Entry{
		SignatureStrict: sigs.Strict,
		SignatureLoose:  sigs.Loose,
		QueryUsed:       queryUsed,
		Results:         results,
		Stats:           stats,
		Confidence:      confidence,
		FetchedAt:       now,
		ExpiresAt:       now + ttl.Milliseconds(),
	}

	stored, err := s.repo.Upsert(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to store cache entry: %w", err)
	}

	s.log.Debug().
		Str("entry_id", stored.ID).
		Str("signature", sigs.Strict).
		Int("results", len(results)).
		Msg("Stored compare cache entry")

	return stored, nil
}

// CleanupExpired sweeps expired entries. Wired to the hourly cron job.
func (s *Service) CleanupExpired() (int64, error) {
	count, err := s.repo.DeleteExpired(nowMillis())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info().Int64("count", count).Msg("Compare cache cleanup removed expired entries")
	}
	return count, nil
}
