package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/domain"
)

const aiTimeout = 10 * time.Second

const systemPrompt = `You normalize auction listing titles into structured product data.
Titles are mostly French or English and come from auction houses, so they
carry lot numbers, VAT mentions and condition remarks.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "normalizedTitle": "cleaned human readable title",
  "brand": "brand name or null",
  "model": "model name or null",
  "reference": "manufacturer reference or null",
  "capacity": "raw capacity such as 256GB or 1.6L, or null",
  "category": "product or vehicle",
  "condition_grade": "new, used or unknown",
  "functional_state": "ok, broken or unknown",
  "isAccessory": true when the lot is an accessory (case, charger, cable, strap),
  "query": "short shopping search query, 60 characters max",
  "altQueries": ["up to two alternative queries"],
  "confidence": 0.0 to 1.0
}`

// CompletionClient is the thin surface the AI normalizer needs from a
// provider. The anthropic, openai and ollama clients all satisfy it.
type CompletionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Provider() string
}

// AINormalizer asks an LLM to structure the title, then pushes the answer
// through the same canonical resolution as the heuristic so deterministic
// hints keep authority over model output.
type AINormalizer struct {
	client CompletionClient
	log    zerolog.Logger
}

func NewAINormalizer(client CompletionClient, log zerolog.Logger) *AINormalizer {
	return &AINormalizer{
		client: client,
		log:    log.With().Str("component", "normalize_ai").Str("provider", client.Provider()).Logger(),
	}
}

type aiPayload struct {
	NormalizedTitle string   `json:"normalizedTitle"`
	Brand           *string  `json:"brand"`
	Model           *string  `json:"model"`
	Reference       *string  `json:"reference"`
	Capacity        *string  `json:"capacity"`
	Category        string   `json:"category"`
	ConditionGrade  string   `json:"condition_grade"`
	FunctionalState string   `json:"functional_state"`
	IsAccessory     bool     `json:"isAccessory"`
	Query           string   `json:"query"`
	AltQueries      []string `json:"altQueries"`
	Confidence      float64  `json:"confidence"`
}

func (a *AINormalizer) Normalize(ctx context.Context, req domain.NormalizeRequest) (*domain.NormalizedProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()

	raw, err := a.client.Complete(ctx, systemPrompt, buildUserPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("ai completion failed: %w", err)
	}

	payload, err := parseAIResponse(raw)
	if err != nil {
		a.log.Warn().Err(err).Str("response", truncateForLog(raw)).Msg("unparseable ai response")
		return nil, err
	}

	return a.merge(req, payload), nil
}

func buildUserPrompt(req domain.NormalizeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", req.RawTitle)
	fmt.Fprintf(&b, "Locale: %s\n", req.Locale)
	if req.SiteDomain != "" {
		fmt.Fprintf(&b, "Auction site: %s\n", req.SiteDomain)
	}
	if req.BrandHint != "" {
		fmt.Fprintf(&b, "Brand hint: %s\n", req.BrandHint)
	}
	if req.ModelHint != "" {
		fmt.Fprintf(&b, "Model hint: %s\n", req.ModelHint)
	}
	if req.CategoryHint != "" {
		fmt.Fprintf(&b, "Category hint: %s\n", req.CategoryHint)
	}
	hints := hintsFor(req)
	if len(hints.BrokenIndicators) > 0 {
		fmt.Fprintf(&b, "Detected damage wording: %s\n", strings.Join(hints.BrokenIndicators, ", "))
	}
	if len(hints.ConditionIndicators) > 0 {
		fmt.Fprintf(&b, "Detected condition wording: %s\n", strings.Join(hints.ConditionIndicators, ", "))
	}
	return b.String()
}

// parseAIResponse tolerates markdown fences and prose around the JSON
// object: it unmarshals the outermost brace-delimited span.
func parseAIResponse(raw string) (*aiPayload, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in ai response")
	}
	var payload aiPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode ai response: %w", err)
	}
	return &payload, nil
}

// merge canonicalizes the AI answer: deterministic hints arbitrate state and
// grade, capacity is re-derived, and signatures are computed last.
func (a *AINormalizer) merge(req domain.NormalizeRequest, payload *aiPayload) *domain.NormalizedProduct {
	hints := hintsFor(req)

	brand := ""
	if payload.Brand != nil {
		brand = NormalizeBrand(*payload.Brand)
	}
	if brand == "" && req.BrandHint != "" {
		brand = NormalizeBrand(req.BrandHint)
	}
	model := ""
	if payload.Model != nil {
		model = NormalizeModel(*payload.Model)
	}
	if model == "" && req.ModelHint != "" {
		model = NormalizeModel(req.ModelHint)
	}

	var reference *string
	if payload.Reference != nil && strings.TrimSpace(*payload.Reference) != "" {
		ref := strings.TrimSpace(*payload.Reference)
		reference = &ref
	}

	category := domain.Category(payload.Category)
	if category != domain.CategoryProduct && category != domain.CategoryVehicle {
		category = req.CategoryHint
		if category == "" {
			category = domain.CategoryProduct
		}
	}

	var capacityGB *int
	var capacityRaw *string
	if payload.Capacity != nil && strings.TrimSpace(*payload.Capacity) != "" {
		c := strings.TrimSpace(*payload.Capacity)
		capacityRaw = &c
		if category != domain.CategoryVehicle {
			capacityGB, _ = FindCapacityGB(c)
		}
	} else if category != domain.CategoryVehicle {
		capacityGB, capacityRaw = FindCapacityGB(req.RawTitle)
	}

	aiState := domain.FunctionalState(payload.FunctionalState)
	if aiState != domain.StateOK && aiState != domain.StateBroken && aiState != domain.StateUnknown {
		aiState = ""
	}
	state := ResolveFunctionalState(hints, aiState)

	aiGrade := domain.ConditionGrade(payload.ConditionGrade)
	if aiGrade != domain.ConditionNew && aiGrade != domain.ConditionUsed && aiGrade != domain.ConditionUnknown {
		aiGrade = ""
	}
	grade, gradeConfidence := ResolveConditionGrade(hints, aiGrade)

	title := strings.TrimSpace(payload.NormalizedTitle)
	if title == "" {
		title = CleanTitle(req.RawTitle)
	}

	capacityQuery := ""
	if capacityGB != nil {
		capacityQuery = capacityLabel(*capacityGB)
	} else if capacityRaw != nil {
		capacityQuery = *capacityRaw
	}
	query := TruncateQuery(payload.Query)
	if query == "" {
		query = BuildQuery(brand, model, capacityQuery, title)
	}

	alts := make([]string, 0, 2)
	for _, alt := range payload.AltQueries {
		alt = TruncateQuery(alt)
		if alt == "" || alt == query {
			continue
		}
		alts = append(alts, alt)
		if len(alts) == 2 {
			break
		}
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	product := &domain.NormalizedProduct{
		NormalizedTitle:     title,
		Brand:               optional(brand),
		Model:               optional(model),
		Reference:           reference,
		Capacity:            capacityRaw,
		CapacityGB:          capacityGB,
		Category:            category,
		ConditionGrade:      grade,
		FunctionalState:     state,
		IsAccessory:         payload.IsAccessory,
		Query:               query,
		AltQueries:          alts,
		Confidence:          confidence,
		ConditionConfidence: gradeConfidence,
		Hints:               hints,
	}
	product.Signatures = ComputeSignatures(product.Brand, product.Model, product.Reference, product.CapacityGB, state, grade, req.Locale)
	return product
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
