// Package pricing parses heterogeneous price strings as they appear on
// auction and listing pages: "1 250,50 €", "1.250,50 €", "€ 1,250.50",
// "1250€", "EUR 1250".
package pricing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/lotwise/lotwise/internal/domain"
)

// Bounds outside which a parsed price is treated as noise.
const (
	MinReasonablePrice = 1
	MaxReasonablePrice = 10_000_000
)

var nonPriceChars = regexp.MustCompile(`[^0-9.,\s\x{00a0}]`)

// Parse extracts a numeric price from a raw string. Separator roles are
// inferred: with a single comma (or dot) the separator is decimal when its
// trailing group has at most two digits, otherwise thousands; when both
// separators occur, the last-occurring one is decimal. The result is rounded
// to cents, which every monetary value in the system carries at most.
func Parse(s string) (float64, error) {
	cleaned := nonPriceChars.ReplaceAllString(s, "")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ' ' {
			return -1
		}
		return r
	}, cleaned)

	if !strings.ContainsAny(cleaned, "0123456789") {
		return 0, fmt.Errorf("no digits in price string %q", s)
	}

	dots := strings.Count(cleaned, ".")
	commas := strings.Count(cleaned, ",")

	var normalized string
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			// Comma is decimal, every dot is a thousands separator
			normalized = strings.ReplaceAll(cleaned, ".", "")
			normalized = keepLastAsDecimal(normalized, ',')
		} else {
			normalized = strings.ReplaceAll(cleaned, ",", "")
			normalized = keepLastAsDecimal(normalized, '.')
		}

	case commas == 1:
		if trailingDigits(cleaned, ",") <= 2 {
			normalized = strings.Replace(cleaned, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(cleaned, ",", "")
		}

	case commas > 1:
		normalized = strings.ReplaceAll(cleaned, ",", "")

	case dots == 1:
		if trailingDigits(cleaned, ".") <= 2 {
			normalized = cleaned
		} else {
			normalized = strings.ReplaceAll(cleaned, ".", "")
		}

	case dots > 1:
		normalized = strings.ReplaceAll(cleaned, ".", "")

	default:
		normalized = cleaned
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q: %w", s, err)
	}

	return math.Round(value*100) / 100, nil
}

// keepLastAsDecimal removes every occurrence of sep except the last, which
// becomes the decimal point. Handles inputs like "1,250,500.50" where the
// thousands separator repeats.
func keepLastAsDecimal(s string, sep byte) string {
	last := strings.LastIndexByte(s, sep)
	if last < 0 {
		return s
	}
	head := strings.ReplaceAll(s[:last], string(sep), "")
	return head + "." + s[last+1:]
}

// trailingDigits counts the digits after the (single) occurrence of sep.
func trailingDigits(s, sep string) int {
	idx := strings.Index(s, sep)
	return len(s) - idx - 1
}

// DetectCurrency scans a raw string for a currency marker.
func DetectCurrency(s string) (domain.Currency, bool) {
	upper := strings.ToUpper(s)
	switch {
	case strings.Contains(s, "€") || strings.Contains(upper, "EUR"):
		return domain.CurrencyEUR, true
	case strings.Contains(s, "$") || strings.Contains(upper, "USD"):
		return domain.CurrencyUSD, true
	case strings.Contains(s, "£") || strings.Contains(upper, "GBP"):
		return domain.CurrencyGBP, true
	}
	return "", false
}

// IsReasonable reports whether a parsed price is inside the plausible range
// for an auction lot.
func IsReasonable(v float64) bool {
	return v >= MinReasonablePrice && v <= MaxReasonablePrice
}

// Format renders a price to its canonical string form. Parsing the output
// always yields the input value back.
func Format(v float64, currency domain.Currency) string {
	var s string
	if v == math.Trunc(v) {
		s = strconv.FormatFloat(v, 'f', 0, 64)
	} else {
		s = strconv.FormatFloat(v, 'f', 2, 64)
	}
	if currency != "" {
		s += " " + string(currency)
	}
	return s
}
