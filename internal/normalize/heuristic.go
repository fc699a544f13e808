package normalize

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/domain"
)

var boilerplateRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\blot\s*(?:n[°o]\s*)?\d+\b`),
	regexp.MustCompile(`(?i)\bcatalogue\s*(?:n[°o]\s*)?\d+\b`),
	regexp.MustCompile(`(?i)\bench[èe]res?\b`),
	regexp.MustCompile(`(?i)\bauction\b`),
	regexp.MustCompile(`(?i)\b(?:t\.?v\.?a\.?|vat)\b(?:\s+(?:non\s+)?r[ée]cup[ée]rable)?`),
	regexp.MustCompile(`(?i)\b(?:htva|ttc|ht)\b`),
	regexp.MustCompile(`(?i)\bfrais de vente\b`),
	regexp.MustCompile(`(?i)\bmise [àa] prix\b`),
	regexp.MustCompile(`(?i)\bsans r[ée]serve\b`),
	regexp.MustCompile(`(?i)\bvendu en l'[ée]tat\b`),
	regexp.MustCompile(`(?i)\bfacture disponible\b`),
}

// accessoryRe runs against the folded (lowercase, accent-free) title.
var accessoryRe = regexp.MustCompile(`\b(coques?|etuis?|housses?|cases?|covers?|chargeurs?|chargers?|cables?|adaptateurs?|adapters?|docks?|screen protectors?|protections? d'?ecran|verres? trempes?|films? de protection|bracelets? de montre|watch straps?|power ?banks?|batteries? externes?|telecommandes?|remote controls?)\b`)

var (
	referenceRe = regexp.MustCompile(`\b[A-Z]{2,}-?\d{3,}\b`)
	yearRe      = regexp.MustCompile(`\b(19[5-9]\d|20[0-3]\d)\b`)
	engineRe    = regexp.MustCompile(`(?i)\b(\d[.,]\d)\s*l(?:itres?)?\b`)
	engineTagRe = regexp.MustCompile(`(?i)\b(tdi|tsi|tfsi|hdi|dci|gti)\b`)
	tokenRe     = regexp.MustCompile(`\S+`)
	modelishRe  = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}.\-+']*$`)
)

var modelStopwords = map[string]bool{
	"de": true, "du": true, "des": true, "le": true, "la": true, "les": true,
	"un": true, "une": true, "et": true, "ou": true, "avec": true,
	"pour": true, "sur": true, "sous": true, "en": true, "à": true, "a": true,
	"of": true, "with": true, "for": true, "and": true, "or": true,
	"the": true, "in": true, "on": true, "très": true, "tres": true,
	"couleur": true, "color": true, "noir": true, "blanc": true, "black": true,
	"white": true, "gris": true, "grey": true, "gray": true, "bleu": true,
	"blue": true, "rouge": true, "red": true, "gold": true,
	"argent": true, "silver": true, "rose": true, "vert": true, "green": true,
}

// Heuristic is the regex-based normalizer. It is the fallback when no AI
// provider is configured or the AI call fails, and it never errors.
type Heuristic struct {
	log zerolog.Logger
}

func NewHeuristic(log zerolog.Logger) *Heuristic {
	return &Heuristic{log: log.With().Str("component", "normalize_heuristic").Logger()}
}

// Normalize extracts brand, model, reference and capacity from the raw
// title with regexes and known-brand lists, then runs the shared canonical
// resolution to produce grades, states and signatures.
func (h *Heuristic) Normalize(_ context.Context, req domain.NormalizeRequest) (*domain.NormalizedProduct, error) {
	hints := hintsFor(req)
	cleaned := CleanTitle(req.RawTitle)

	brandHit := detectBrand(cleaned)
	brand := brandFromHit(brandHit)
	if req.BrandHint != "" {
		brand = NormalizeBrand(req.BrandHint)
	}

	category := req.CategoryHint
	isVehicle := brandHit != nil && vehicleBrands[strings.ToLower(brandHit.brand)]
	year := yearRe.FindString(cleaned)
	engineMatch := engineRe.FindStringSubmatch(cleaned)
	if category == "" {
		if isVehicle || (year != "" && (engineMatch != nil || engineTagRe.MatchString(cleaned))) {
			category = domain.CategoryVehicle
		} else {
			category = domain.CategoryProduct
		}
	}

	var capacityGB *int
	var capacityRaw *string
	if category == domain.CategoryVehicle {
		if engineMatch != nil {
			displacement := strings.ReplaceAll(engineMatch[1], ",", ".") + "L"
			capacityRaw = &displacement
		}
	} else {
		capacityGB, capacityRaw = FindCapacityGB(cleaned)
	}

	var reference *string
	if ref := referenceRe.FindString(cleaned); ref != "" {
		reference = &ref
	}

	model := extractModel(cleaned, brandHit, capacityRaw, year)
	if req.ModelHint != "" {
		model = NormalizeModel(req.ModelHint)
	}

	foldedTitle, _ := foldTitle(cleaned)
	isAccessory := accessoryRe.MatchString(foldedTitle)

	confidence := 0.3
	if brand != "" {
		confidence += 0.2
	}
	if model != "" {
		confidence += 0.15
	}
	if reference != nil {
		confidence += 0.1
	}
	if !isAccessory {
		confidence += 0.05
	}
	if confidence > 0.8 {
		confidence = 0.8
	}

	state := ResolveFunctionalState(hints, "")
	grade, gradeConfidence := ResolveConditionGrade(hints, "")

	query := buildHeuristicQuery(category, brand, model, capacityRaw, capacityGB, year, cleaned)
	product := &domain.NormalizedProduct{
		NormalizedTitle:     cleaned,
		Brand:               optional(brand),
		Model:               optional(model),
		Reference:           reference,
		Capacity:            capacityRaw,
		CapacityGB:          capacityGB,
		Category:            category,
		ConditionGrade:      grade,
		FunctionalState:     state,
		IsAccessory:         isAccessory,
		Query:               query,
		AltQueries:          buildAltQueries(query, brand, model, reference),
		Confidence:          confidence,
		ConditionConfidence: gradeConfidence,
		Hints:               hints,
	}
	product.Signatures = ComputeSignatures(product.Brand, product.Model, product.Reference, product.CapacityGB, state, grade, req.Locale)

	h.log.Debug().
		Str("brand", brand).
		Str("model", model).
		Str("query", query).
		Float64("confidence", confidence).
		Msg("heuristic normalization")

	return product, nil
}

// CleanTitle strips auction boilerplate (lot numbers, fee mentions, VAT
// notes) and collapses whitespace. Bracket characters are dropped but their
// contents are kept, since capacities and conditions often live inside them.
func CleanTitle(raw string) string {
	s := raw
	for _, re := range boilerplateRes {
		s = re.ReplaceAllString(s, " ")
	}
	s = strings.NewReplacer("(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -–,;:.")
}

type brandHit struct {
	brand string
	token string
	index int
	alias bool
}

// brandFromHit returns the canonical brand carried by a detection hit, or
// the empty string when no brand was detected.
func brandFromHit(hit *brandHit) string {
	if hit == nil {
		return ""
	}
	return hit.brand
}

// detectBrand finds the earliest known brand or alias mention. Ties at the
// same position go to the longest token so "mercedes-benz" beats "mercedes".
func detectBrand(title string) *brandHit {
	lower := strings.ToLower(title)
	var best *brandHit

	consider := func(token, brand string, alias bool) {
		idx := indexWord(lower, token)
		if idx < 0 {
			return
		}
		hit := &brandHit{brand: brand, token: token, index: idx, alias: alias}
		if best == nil || hit.index < best.index ||
			(hit.index == best.index && len(hit.token) > len(best.token)) ||
			(hit.index == best.index && len(hit.token) == len(best.token) && hit.token < best.token) {
			best = hit
		}
	}

	for token, brand := range brandAliases {
		consider(token, brand, true)
	}
	for _, b := range knownBrands {
		consider(b, NormalizeBrand(b), false)
	}
	return best
}

// indexWord finds token in s at word boundaries, or -1.
func indexWord(s, token string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], token)
		if idx < 0 {
			return -1
		}
		idx += from
		end := idx + len(token)
		beforeOK := idx == 0 || !isWordByte(s[idx-1])
		afterOK := end == len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return idx
		}
		from = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// extractModel collects the model-looking tokens that follow the brand
// mention. When the brand was found through a product-family alias the alias
// token itself starts the model ("iphone 13 pro" rather than "13 pro").
func extractModel(cleaned string, hit *brandHit, capacityRaw *string, year string) string {
	if hit == nil {
		return ""
	}

	stopSpans := append(scanRules(cleaned, brokenRules), scanRules(cleaned, conditionRules)...)
	sort.Slice(stopSpans, func(i, j int) bool { return stopSpans[i].start < stopSpans[j].start })

	start := hit.index
	if !hit.alias {
		start = hit.index + len(hit.token)
	}

	var words []string
	for _, span := range tokenRe.FindAllStringIndex(cleaned, -1) {
		if span[0] < start {
			continue
		}
		tok := cleaned[span[0]:span[1]]
		tokTrim := strings.Trim(tok, ",;:.")
		lower := strings.ToLower(tokTrim)

		if len(words) >= 4 {
			break
		}
		if capacityRaw != nil && strings.HasPrefix(*capacityRaw, tokTrim) && tokTrim != "" {
			break
		}
		if year != "" && tokTrim == year {
			break
		}
		if overlapsAny(span[0], span[1], stopSpans) {
			break
		}
		if modelStopwords[lower] || !modelishRe.MatchString(tokTrim) {
			break
		}
		if _, isGB := FindCapacityGB(tokTrim); isGB != nil {
			break
		}
		words = append(words, tokTrim)
	}

	return NormalizeModel(strings.Join(words, " "))
}

func buildHeuristicQuery(category domain.Category, brand, model string, capacityRaw *string, capacityGB *int, year, cleaned string) string {
	if category == domain.CategoryVehicle {
		parts := make([]string, 0, 4)
		if brand != "" {
			parts = append(parts, brand)
		}
		if model != "" {
			parts = append(parts, model)
		}
		if capacityRaw != nil {
			parts = append(parts, *capacityRaw)
		}
		if year != "" {
			parts = append(parts, year)
		}
		if len(parts) > 0 {
			return TruncateQuery(strings.Join(parts, " "))
		}
		return TruncateQuery(cleaned)
	}

	capacity := ""
	if capacityGB != nil {
		capacity = capacityLabel(*capacityGB)
	} else if capacityRaw != nil {
		capacity = *capacityRaw
	}
	return BuildQuery(brand, model, capacity, cleaned)
}

func buildAltQueries(primary, brand, model string, reference *string) []string {
	var alts []string
	add := func(q string) {
		q = TruncateQuery(q)
		if q == "" || q == primary {
			return
		}
		for _, existing := range alts {
			if existing == q {
				return
			}
		}
		if len(alts) < 2 {
			alts = append(alts, q)
		}
	}

	if brand != "" && model != "" {
		add(brand + " " + model)
	}
	if reference != nil && brand != "" {
		add(brand + " " + *reference)
	}
	if model != "" {
		add(model)
	}
	return alts
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// hintsFor returns the request's precomputed hints, or detects them from the
// raw title when the caller did not run detection.
func hintsFor(req domain.NormalizeRequest) domain.DeterministicHints {
	h := req.Hints
	if h.BrokenConfidence == 0 && h.ConditionConfidence == 0 &&
		len(h.BrokenIndicators) == 0 && len(h.ConditionIndicators) == 0 && h.DetectedGrade == "" {
		return DetectHints(req.RawTitle)
	}
	return h
}
