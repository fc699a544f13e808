// Package compare implements the comparison pipeline: it normalizes the
// incoming lot, resolves the shared cache, gates fresh fetches on credits,
// deduplicates concurrent upstream calls and turns retained listings into
// price statistics and a verdict.
package compare

import (
	"sort"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lotwise/lotwise/internal/domain"
)

// Relevance filtering parameters. Vehicles tolerate weaker matches because
// listing titles vary far more than product titles do.
const (
	productRelevanceThreshold = 0.25
	vehicleRelevanceThreshold = 0.15
	relaxedRelevanceThreshold = 0.05
	maxRetainedResults        = 10
	brandMatchBonus           = 0.1

	// Vehicle listings priced below this fraction of the auction price are
	// almost always parts or accessories, not the vehicle itself.
	vehiclePriceFloorRatio = 0.2
)

// ScoreResults fills in a relevance score for every result the provider
// returned without one. The score is the fraction of query tokens present
// in the listing title, with a small bonus when the brand appears, clamped
// to [0, 1]. Provider-supplied scores are kept as-is.
func ScoreResults(results []domain.SearchResult, query string, brand *string) []domain.SearchResult {
	queryTokens := tokenize(query)
	scored := make([]domain.SearchResult, len(results))
	for i, r := range results {
		if r.Relevance <= 0 {
			r.Relevance = relevanceScore(queryTokens, brand, r.Title)
		}
		scored[i] = r
	}
	return scored
}

// FilterResults drops low-relevance and implausible results and keeps the
// top ones by relevance. If the category threshold eliminates everything,
// the filter retries once at a relaxed threshold so a thin but real market
// still produces an answer.
func FilterResults(results []domain.SearchResult, category domain.Category, auctionPrice float64) []domain.SearchResult {
	threshold := productRelevanceThreshold
	if category == domain.CategoryVehicle {
		threshold = vehicleRelevanceThreshold
	}

	kept := filterAtThreshold(results, threshold, category, auctionPrice)
	if len(kept) == 0 {
		kept = filterAtThreshold(results, relaxedRelevanceThreshold, category, auctionPrice)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Relevance > kept[j].Relevance
	})
	if len(kept) > maxRetainedResults {
		kept = kept[:maxRetainedResults]
	}
	return kept
}

func filterAtThreshold(results []domain.SearchResult, threshold float64, category domain.Category, auctionPrice float64) []domain.SearchResult {
	var kept []domain.SearchResult
	for _, r := range results {
		if r.Relevance < threshold {
			continue
		}
		if category == domain.CategoryVehicle && auctionPrice > 0 && r.Price < vehiclePriceFloorRatio*auctionPrice {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// ComputeStats summarizes the price distribution of the retained results.
func ComputeStats(results []domain.SearchResult) domain.PriceStats {
	if len(results) == 0 {
		return domain.PriceStats{}
	}

	prices := make([]float64, len(results))
	for i, r := range results {
		prices[i] = r.Price
	}
	sort.Float64s(prices)

	return domain.PriceStats{
		Min:     floats.Min(prices),
		Median:  stat.Quantile(0.5, stat.Empirical, prices, nil),
		Max:     floats.Max(prices),
		Average: stat.Mean(prices, nil),
		Count:   len(prices),
	}
}

// DeriveConfidence grades how much the price distribution can be trusted.
// High requires both enough samples and a tight interquartile range; a wide
// spread on many samples still only earns medium.
func DeriveConfidence(results []domain.SearchResult) domain.Confidence {
	n := len(results)
	if n >= 8 {
		prices := make([]float64, n)
		for i, r := range results {
			prices[i] = r.Price
		}
		sort.Float64s(prices)

		median := stat.Quantile(0.5, stat.Empirical, prices, nil)
		iqr := stat.Quantile(0.75, stat.Empirical, prices, nil) - stat.Quantile(0.25, stat.Empirical, prices, nil)
		if median > 0 && iqr <= 0.6*median {
			return domain.ConfidenceHigh
		}
	}
	if n >= 4 {
		return domain.ConfidenceMedium
	}
	return domain.ConfidenceLow
}

// DeriveVerdict compares the auction price against the market distribution.
// The margin is the discount below the market minimum required to call a
// lot clearly worth bidding on.
func DeriveVerdict(auctionPrice float64, stats domain.PriceStats, margin float64) domain.Verdict {
	if stats.Count == 0 {
		return domain.VerdictBorderline
	}
	if auctionPrice <= stats.Min*(1-margin) {
		return domain.VerdictWorthIt
	}
	if auctionPrice >= stats.Median {
		return domain.VerdictNotWorthIt
	}
	return domain.VerdictBorderline
}

func relevanceScore(queryTokens []string, brand *string, title string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	titleTokens := make(map[string]bool)
	for _, tok := range tokenize(title) {
		titleTokens[tok] = true
	}

	shared := 0
	for _, tok := range queryTokens {
		if titleTokens[tok] {
			shared++
		}
	}
	score := float64(shared) / float64(len(queryTokens))

	if brand != nil && *brand != "" && strings.Contains(strings.ToLower(title), strings.ToLower(*brand)) {
		score += brandMatchBonus
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
