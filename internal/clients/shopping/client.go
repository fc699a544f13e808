// Package shopping provides the client for the external shopping search API
// that supplies comparable market listings.
package shopping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/pricing"
)

const defaultLimit = 20

// Client for the shopping search API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a shopping API client. Searches are the slowest call in
// the compare pipeline, so the timeout is generous.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "shopping").Logger(),
	}
}

// apiResult keeps price as raw JSON: the API sends numbers for some sources
// and display strings ("1 299,00 €") for others.
type apiResult struct {
	Title    string          `json:"title"`
	Price    json.RawMessage `json:"price"`
	Currency string          `json:"currency"`
	URL      string          `json:"url"`
	Source   string          `json:"source"`
}

// Search queries the shopping API and returns the listings that carry a
// usable price. Listings with missing titles or unparseable prices are
// dropped here so the pipeline only ever sees clean results.
func (c *Client) Search(ctx context.Context, query, locale string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("locale", locale)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	c.log.Debug().Str("query", query).Str("locale", locale).Int("limit", limit).Msg("searching")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shopping API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []apiResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		result, ok := c.toResult(r)
		if !ok {
			continue
		}
		results = append(results, result)
	}

	c.log.Debug().Str("query", query).Int("raw", len(payload.Results)).Int("usable", len(results)).Msg("search done")
	return results, nil
}

func (c *Client) toResult(r apiResult) (domain.SearchResult, bool) {
	if r.Title == "" || len(r.Price) == 0 {
		return domain.SearchResult{}, false
	}

	price, currency, err := parsePrice(r.Price)
	if err != nil || !pricing.IsReasonable(price) {
		c.log.Debug().Str("title", r.Title).Str("price", string(r.Price)).Msg("dropping result without usable price")
		return domain.SearchResult{}, false
	}

	if r.Currency != "" {
		currency = domain.Currency(r.Currency)
	}
	if currency == "" {
		currency = domain.CurrencyEUR
	}

	return domain.SearchResult{
		Title:    r.Title,
		Price:    price,
		Currency: currency,
		URL:      r.URL,
		Source:   r.Source,
	}, true
}

// parsePrice accepts either a JSON number or a display string. For strings
// the embedded currency symbol is picked up as a fallback currency.
func parsePrice(raw json.RawMessage) (float64, domain.Currency, error) {
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0, "", fmt.Errorf("price is neither number nor string")
	}

	value, err := pricing.Parse(asString)
	if err != nil {
		return 0, "", err
	}
	currency := domain.Currency("")
	if detected, ok := pricing.DetectCurrency(asString); ok {
		currency = detected
	}
	return value, currency, nil
}
