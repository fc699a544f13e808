package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lotwise/lotwise/internal/domain"
)

const (
	minPlausibleGB = 1
	maxPlausibleGB = 16384
)

var (
	// "To" stays case-sensitive so English "2 to 3" is not read as 2 TB.
	tbPattern = regexp.MustCompile(`\b(\d{1,3})\s*(?:[Tt][Bb]|To|TO)\b`)
	gbPattern = regexp.MustCompile(`(?i)\b(\d{1,5})\s*(?:gb|go)\b`)
	// Bare numbers are only treated as storage when they are a common
	// capacity step and not qualified by some other unit ("256 GB" is
	// caught above, "256 mm" is not storage).
	barePattern    = regexp.MustCompile(`\b(16|32|64|128|256|512|1024|2048)\b(?:\s*([a-zA-Z€$£]+))?`)
	nonStorageUnit = map[string]bool{
		"mm": true, "cm": true, "m": true, "km": true,
		"g": true, "kg": true, "mg": true,
		"l": true, "ml": true, "cl": true,
		"w": true, "kw": true, "v": true, "mah": true,
		"mo": true, "mb": true, "ko": true, "kb": true,
		"cv": true, "ch": true, "hz": true, "mhz": true, "ghz": true,
		"eur": true, "usd": true, "gbp": true, "€": true, "$": true, "£": true,
	}
)

// FindCapacityGB locates a storage capacity in the title and converts it to
// gigabytes. Patterns are tried in order: terabytes, gigabytes, then bare
// common capacities. It returns the capacity in GB and the raw matched token,
// or (nil, nil) when nothing plausible is found.
func FindCapacityGB(title string) (*int, *string) {
	if m := tbPattern.FindStringSubmatch(title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return plausibleGB(n*1024, strings.TrimSpace(m[0]))
		}
	}
	if m := gbPattern.FindStringSubmatch(title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return plausibleGB(n, strings.TrimSpace(m[0]))
		}
	}
	for _, m := range barePattern.FindAllStringSubmatch(title, -1) {
		if unit := strings.ToLower(m[2]); unit != "" && nonStorageUnit[unit] {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			return plausibleGB(n, m[1])
		}
	}
	return nil, nil
}

func plausibleGB(gb int, raw string) (*int, *string) {
	if gb < minPlausibleGB || gb > maxPlausibleGB {
		return nil, nil
	}
	return &gb, &raw
}

// brandAliases maps product-family or shorthand tokens to the brand that
// sells them. Keys are lowercase.
var brandAliases = map[string]string{
	"iphone":      "Apple",
	"ipad":        "Apple",
	"ipod":        "Apple",
	"imac":        "Apple",
	"macbook":     "Apple",
	"airpods":     "Apple",
	"apple watch": "Apple",
	"galaxy":      "Samsung",
	"playstation": "Sony",
	"ps5":         "Sony",
	"ps4":         "Sony",
	"vw":          "Volkswagen",
	"mercedes":    "Mercedes-Benz",
	"citroën":     "Citroën",
	"citroen":     "Citroën",
}

// knownBrands is the detection list for the heuristic extractor. Aliases
// above are detected separately and resolve to their parent brand.
var knownBrands = []string{
	"apple", "samsung", "sony", "huawei", "xiaomi", "oneplus", "google",
	"nokia", "motorola", "dell", "hp", "lenovo", "asus", "acer", "msi",
	"canon", "nikon", "fujifilm", "olympus", "panasonic", "leica", "gopro",
	"dji", "garmin", "bose", "jbl", "sonos", "marshall", "sennheiser",
	"dyson", "bosch", "makita", "dewalt", "karcher", "philips", "siemens",
	"miele", "nintendo", "microsoft", "logitech", "rolex", "omega", "seiko",
	"tissot", "longines", "breitling", "cartier", "tag heuer",
	"volkswagen", "mercedes-benz", "bmw", "audi", "porsche", "peugeot",
	"renault", "citroën", "toyota", "honda", "ford", "opel", "fiat",
	"volvo", "skoda", "seat", "mini", "jaguar", "land rover",
}

var vehicleBrands = map[string]bool{
	"volkswagen": true, "mercedes-benz": true, "bmw": true, "audi": true,
	"porsche": true, "peugeot": true, "renault": true, "citroën": true,
	"toyota": true, "honda": true, "ford": true, "opel": true, "fiat": true,
	"volvo": true, "skoda": true, "seat": true, "mini": true, "jaguar": true,
	"land rover": true,
}

// properCasing keeps vendor capitalization for tokens that plain
// title-casing would get wrong.
var properCasing = map[string]string{
	"iphone":      "iPhone",
	"ipad":        "iPad",
	"ipod":        "iPod",
	"imac":        "iMac",
	"macbook":     "MacBook",
	"airpods":     "AirPods",
	"playstation": "PlayStation",
	"ps5":         "PS5",
	"ps4":         "PS4",
	"tdi":         "TDI",
	"tsi":         "TSI",
	"hdi":         "HDi",
	"dci":         "dCi",
	"gti":         "GTI",
	"amg":         "AMG",
	"xl":          "XL",
	"xs":          "XS",
	"xr":          "XR",
	"se":          "SE",
	"pro":         "Pro",
	"max":         "Max",
	"mini":        "mini",
	"ultra":       "Ultra",
	"plus":        "Plus",
}

// brandCasing overrides title-casing for brands with vendor spellings.
var brandCasing = map[string]string{
	"bmw": "BMW", "hp": "HP", "msi": "MSI", "jbl": "JBL", "dji": "DJI",
	"gopro": "GoPro", "oneplus": "OnePlus", "tag heuer": "TAG Heuer",
	"dewalt": "DeWalt", "lg": "LG",
}

// NormalizeBrand resolves aliases ("iphone" sells under Apple) and
// title-cases anything unrecognized. Empty input stays empty.
func NormalizeBrand(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return ""
	}
	if brand, ok := brandAliases[key]; ok {
		return brand
	}
	if cased, ok := brandCasing[key]; ok {
		return cased
	}
	return titleCase(key)
}

// NormalizeModel title-cases a model string token by token. Known family
// and trim names keep their vendor casing, and alphanumeric designations
// like S21 or DHP458 are uppercased rather than title-cased.
func NormalizeModel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if cased, ok := properCasing[lower]; ok {
			words[i] = cased
			continue
		}
		if hasDigit(w) && hasLetter(w) {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = titleCase(lower)
	}
	return strings.Join(words, " ")
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		r := []rune(p)
		for j, c := range r {
			if c >= 'a' && c <= 'z' {
				if j == 0 || r[j-1] == '-' {
					r[j] = c - ('a' - 'A')
				}
			}
		}
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// ResolveFunctionalState arbitrates between deterministic broken indicators
// and an AI (or caller) supplied state. Strong deterministic evidence always
// wins; weak evidence only yields broken when the other source does not
// disagree.
func ResolveFunctionalState(hints domain.DeterministicHints, ai domain.FunctionalState) domain.FunctionalState {
	switch {
	case hints.BrokenConfidence >= 0.8:
		return domain.StateBroken
	case hints.BrokenConfidence >= 0.5:
		if ai == "" || ai == domain.StateBroken || ai == domain.StateUnknown {
			return domain.StateBroken
		}
		return domain.StateUnknown
	default:
		if ai != "" {
			return ai
		}
		return domain.StateOK
	}
}

// ResolveConditionGrade picks the condition grade and the confidence behind
// it. A confident deterministic detection beats the AI; an AI grade beats a
// weak deterministic one; otherwise the deterministic detection is kept even
// when weak, and unknown is the floor.
func ResolveConditionGrade(hints domain.DeterministicHints, ai domain.ConditionGrade) (domain.ConditionGrade, float64) {
	if hints.ConditionConfidence >= 0.7 && hints.DetectedGrade != "" && hints.DetectedGrade != domain.ConditionUnknown {
		return hints.DetectedGrade, hints.ConditionConfidence
	}
	if ai != "" && ai != domain.ConditionUnknown {
		return ai, 0.6
	}
	if hints.DetectedGrade != "" {
		return hints.DetectedGrade, hints.ConditionConfidence
	}
	return domain.ConditionUnknown, 0
}

// ComputeSignatures derives the strict and loose cache signatures from the
// canonical identity fields. Both are the first 32 hex characters of a
// SHA-256 over the pipe-joined lowercased tuple; the loose signature leaves
// the condition grade out so listings of the same item in different states
// can share comparable results.
func ComputeSignatures(brand, model, reference *string, capacityGB *int, state domain.FunctionalState, grade domain.ConditionGrade, locale string) domain.Signatures {
	capacity := ""
	if capacityGB != nil {
		capacity = strconv.Itoa(*capacityGB)
	}
	strict := signatureHash(sigField(brand), sigField(model), sigField(reference), capacity, string(state), string(grade), strings.ToLower(strings.TrimSpace(locale)))
	loose := signatureHash(sigField(brand), sigField(model), sigField(reference), capacity, string(state), strings.ToLower(strings.TrimSpace(locale)))
	return domain.Signatures{Strict: strict, Loose: loose}
}

func sigField(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*s))
}

func signatureHash(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])[:32]
}

// BuildQuery assembles the shopping search query from the canonical fields,
// capped at 60 characters on a word boundary.
func BuildQuery(brand, model, capacityRaw string, fallback string) string {
	parts := make([]string, 0, 3)
	if brand != "" {
		parts = append(parts, brand)
	}
	if model != "" && !strings.EqualFold(model, brand) {
		parts = append(parts, model)
	}
	if capacityRaw != "" {
		parts = append(parts, capacityRaw)
	}
	q := strings.Join(parts, " ")
	if q == "" {
		q = fallback
	}
	return TruncateQuery(q)
}

// TruncateQuery caps a query at 60 characters without splitting a word.
func TruncateQuery(q string) string {
	q = strings.TrimSpace(q)
	if len(q) <= 60 {
		return q
	}
	cut := q[:60]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func capacityLabel(gb int) string {
	if gb >= 1024 && gb%1024 == 0 {
		return fmt.Sprintf("%dTB", gb/1024)
	}
	return fmt.Sprintf("%dGB", gb)
}
