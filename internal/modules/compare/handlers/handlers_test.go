package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lotwise/lotwise/internal/dedup"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/compare"
	"github.com/lotwise/lotwise/internal/modules/comparecache"
	"github.com/lotwise/lotwise/internal/modules/credits"
	"github.com/lotwise/lotwise/internal/modules/history"
	"github.com/lotwise/lotwise/internal/normalize"
	"github.com/lotwise/lotwise/internal/ratelimit"
)

const testSchemas = `
CREATE TABLE compare_cache (
    id               TEXT PRIMARY KEY,
    signature_strict TEXT NOT NULL UNIQUE,
    signature_loose  TEXT NOT NULL,
    query_used       TEXT NOT NULL,
    results          BLOB NOT NULL,
    stats            BLOB NOT NULL,
    confidence       TEXT NOT NULL,
    fetched_at       INTEGER NOT NULL,
    expires_at       INTEGER NOT NULL
);
CREATE TABLE user_credits (
    user_id              TEXT PRIMARY KEY,
    balance              INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    free_credits_granted INTEGER NOT NULL DEFAULT 0 CHECK (free_credits_granted IN (0, 1)),
    updated_at           INTEGER NOT NULL
);
CREATE TABLE credit_ledger (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id        TEXT NOT NULL,
    type           TEXT NOT NULL,
    delta          INTEGER NOT NULL,
    balance_after  INTEGER NOT NULL,
    reason         TEXT,
    related_object TEXT,
    created_at     INTEGER NOT NULL
);
CREATE TABLE search_history (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    created_at       INTEGER NOT NULL,
    domain           TEXT NOT NULL,
    lot_url          TEXT,
    raw_title        TEXT NOT NULL,
    normalized_json  TEXT NOT NULL,
    signature_strict TEXT NOT NULL,
    signature_loose  TEXT NOT NULL,
    source           TEXT NOT NULL,
    cache_entry_id   TEXT,
    auction_price    REAL,
    currency         TEXT
);
`

type stubProvider struct {
	mu      sync.Mutex
	results []domain.SearchResult
}

func (p *stubProvider) Search(ctx context.Context, query, locale string, limit int) ([]domain.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results, nil
}

func listings(n int) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.SearchResult{
			Title:     fmt.Sprintf("Apple iPhone 13 Pro 256GB %d", i),
			Price:     700 + float64(i)*10,
			Currency:  domain.CurrencyEUR,
			URL:       fmt.Sprintf("https://market.example/%d", i),
			Source:    "market.example",
			Relevance: 0.9,
		})
	}
	return out
}

func setupHandler(t *testing.T, results []domain.SearchResult) *Handler {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchemas)
	require.NoError(t, err)

	svc := compare.NewService(
		normalize.NewService(normalize.Options{}, zerolog.Nop()),
		comparecache.NewService(comparecache.NewRepository(db, zerolog.Nop()), zerolog.Nop()),
		credits.NewService(credits.NewRepository(db, zerolog.Nop()), 1, zerolog.Nop()),
		history.NewRepository(db, zerolog.Nop()),
		&stubProvider{results: results},
		dedup.New(zerolog.Nop()),
		0.15,
		zerolog.Nop(),
	)
	return NewHandler(svc, ratelimit.NewService(zerolog.Nop()), zerolog.Nop())
}

func compareBody() map[string]interface{} {
	return map[string]interface{}{
		"title":        "iPhone 13 Pro 256 Go",
		"currency":     "EUR",
		"locale":       "fr",
		"auctionPrice": 400,
		"siteDomain":   "auctions.example.fr",
		"category":     "product",
	}
}

func doCompare(t *testing.T, h *Handler, userID, remoteAddr string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req := httptest.NewRequest("POST", "/api/compare", &buf)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.HandleCompare(rec, req)
	return rec
}

func TestHandleCompare_Success(t *testing.T) {
	h := setupHandler(t, listings(8))

	rec := doCompare(t, h, "user-1", "", compareBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.CompareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.SourceFreshFetch, resp.Cache.Source)
	assert.Equal(t, domain.VerdictWorthIt, resp.Verdict)
	assert.True(t, resp.Usage.Consumed)
}

func TestHandleCompare_RequiresAuth(t *testing.T) {
	h := setupHandler(t, listings(8))

	rec := doCompare(t, h, "", "", compareBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCompare_RejectsInvalidJSON(t *testing.T) {
	h := setupHandler(t, listings(8))

	req := httptest.NewRequest("POST", "/api/compare", bytes.NewBufferString("{not json"))
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.HandleCompare(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompare_RejectsInvalidRequest(t *testing.T) {
	h := setupHandler(t, listings(8))

	body := compareBody()
	body["auctionPrice"] = -5
	rec := doCompare(t, h, "user-1", "", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp struct {
		Error domain.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, domain.ErrCodeInvalidRequest, errResp.Error.Code)
}

func TestHandleCompare_UserRateLimit(t *testing.T) {
	h := setupHandler(t, listings(8))

	// Distinct IPs keep the per-IP window out of the way; request 31 in
	// the same minute trips the per-user limit.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 31; i++ {
		addr := fmt.Sprintf("10.0.%d.%d:1234", i/250, i%250+1)
		rec = doCompare(t, h, "user-1", addr, compareBody())
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 60)

	var errResp struct {
		Error domain.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, domain.ErrCodeRateLimited, errResp.Error.Code)
}

func TestHandleCompare_IPRateLimit(t *testing.T) {
	h := setupHandler(t, listings(8))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		rec = doCompare(t, h, "user-1", "203.0.113.7:4444", compareBody())
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleCompare_QuotaExceededCarriesUsage(t *testing.T) {
	h := setupHandler(t, listings(8))

	first := doCompare(t, h, "user-1", "", compareBody())
	require.Equal(t, http.StatusOK, first.Code)

	body := compareBody()
	body["forceRefresh"] = true
	rec := doCompare(t, h, "user-1", "", body)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp struct {
		Error domain.APIError  `json:"error"`
		Usage domain.UsageInfo `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeFreeExhausted, resp.Error.Code)
	assert.Equal(t, 0, resp.Usage.Balance)
	assert.False(t, resp.Usage.FreeAvailable)
}

func TestHandleCompare_NoResults(t *testing.T) {
	h := setupHandler(t, nil)

	rec := doCompare(t, h, "user-1", "", compareBody())
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp struct {
		Error domain.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, domain.ErrCodeNoResults, errResp.Error.Code)
}
