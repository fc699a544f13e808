package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotwise/lotwise/internal/domain"
)

func TestServiceWithoutAI(t *testing.T) {
	svc := NewService(Options{}, zerolog.Nop())

	product, err := svc.Normalize(context.Background(), domain.NormalizeRequest{
		RawTitle: "iPhone 13 Pro 256 Go",
		Locale:   "fr",
	})
	require.NoError(t, err)
	require.NotNil(t, product.Brand)
	assert.Equal(t, "Apple", *product.Brand)
}

func TestServiceFallsBackOnAIError(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	svc := NewService(Options{AI: NewAINormalizer(client, zerolog.Nop())}, zerolog.Nop())

	product, err := svc.Normalize(context.Background(), domain.NormalizeRequest{
		RawTitle: "iPhone 13 Pro 256 Go",
		Locale:   "fr",
	})
	require.NoError(t, err)
	require.NotNil(t, product.Brand)
	assert.Equal(t, "Apple", *product.Brand)
	assert.Equal(t, 1, client.calls)
}

func TestServicePrefersAI(t *testing.T) {
	client := &fakeClient{response: `{
		"normalizedTitle": "AI normalized title",
		"brand": "Apple",
		"model": "iPhone 13 Pro",
		"category": "product",
		"functional_state": "ok",
		"query": "Apple iPhone 13 Pro",
		"confidence": 0.9
	}`}
	svc := NewService(Options{AI: NewAINormalizer(client, zerolog.Nop())}, zerolog.Nop())

	product, err := svc.Normalize(context.Background(), domain.NormalizeRequest{
		RawTitle: "iPhone 13 Pro 256 Go",
		Locale:   "fr",
	})
	require.NoError(t, err)
	assert.Equal(t, "AI normalized title", product.NormalizedTitle)
}

func TestServiceMemoizes(t *testing.T) {
	client := &fakeClient{response: `{"brand":"Apple","model":"iPhone 13","category":"product","query":"Apple iPhone 13","confidence":0.9}`}
	svc := NewService(Options{AI: NewAINormalizer(client, zerolog.Nop())}, zerolog.Nop())

	req := domain.NormalizeRequest{RawTitle: "iPhone 13 128 Go", Locale: "fr"}

	first, err := svc.Normalize(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Normalize(context.Background(), req)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, svc.CacheLen())
}

func TestFromProvided(t *testing.T) {
	product := FromProvided("Apple iPhone 13 Pro 256 Go très bon état", "apple", "iphone 13 pro", domain.ConditionUsed, domain.CategoryProduct, "fr")

	require.NotNil(t, product.Brand)
	assert.Equal(t, "Apple", *product.Brand)
	require.NotNil(t, product.Model)
	assert.Equal(t, "iPhone 13 Pro", *product.Model)
	require.NotNil(t, product.CapacityGB)
	assert.Equal(t, 256, *product.CapacityGB)
	assert.Equal(t, domain.ConditionUsed, product.ConditionGrade)
	assert.InDelta(t, 0.9, product.ConditionConfidence, 0.001)
	assert.InDelta(t, 0.8, product.Confidence, 0.001)
	assert.Len(t, product.Signatures.Strict, 32)
}

// Even when the caller supplies trusted fields, damage wording in the raw
// title must still flip the functional state.
func TestFromProvidedKeepsDamageWording(t *testing.T) {
	product := FromProvided("iPhone 12 HS pour pièces", "apple", "iphone 12", "", "", "fr")

	assert.Equal(t, domain.StateBroken, product.FunctionalState)
	assert.Equal(t, domain.ConditionUnknown, product.ConditionGrade)
	assert.Equal(t, domain.CategoryProduct, product.Category)
}

// The same item listed with and without trusted fields must land on the
// same strict signature, otherwise the compare cache would split.
func TestFromProvidedMatchesHeuristicSignature(t *testing.T) {
	h := newTestHeuristic()

	extracted, err := h.Normalize(context.Background(), domain.NormalizeRequest{
		RawTitle: "iPhone 13 Pro 256 Go très bon état",
		Locale:   "fr",
	})
	require.NoError(t, err)

	provided := FromProvided("iPhone 13 Pro 256 Go très bon état", "Apple", "iPhone 13 Pro", domain.ConditionUsed, domain.CategoryProduct, "fr")

	assert.Equal(t, extracted.Signatures.Strict, provided.Signatures.Strict)
	assert.Equal(t, extracted.Signatures.Loose, provided.Signatures.Loose)
}
