package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotwise/lotwise/internal/clients/stripe"
	"github.com/lotwise/lotwise/internal/config"
	"github.com/lotwise/lotwise/internal/di"
	"github.com/lotwise/lotwise/internal/modules/auth"
)

const (
	testToken  = "lw_test_token"
	testUserID = "u_test"
)

// newTestServer wires a full container against temp databases and seeds
// one user holding a valid bearer token.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:             dir,
		DatabasePath:        filepath.Join(dir, "app.db"),
		Port:                8080,
		DevMode:             true,
		AIProvider:          config.AIProviderNone,
		StripeWebhookSecret: "whsec_test",
		StripePriceIDs:      map[string]string{},
		FreeCredits:         1,
		VerdictMargin:       0.15,
	}

	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.CloseDatabases)

	now := time.Now().UnixMilli()
	_, err = container.AppDB.Exec(
		"INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)",
		testUserID, "test@example.com", now,
	)
	require.NoError(t, err)
	_, err = container.AppDB.Exec(
		"INSERT INTO auth_tokens (id, user_id, token_hash, created_at) VALUES (?, ?, ?, ?)",
		"tok_1", testUserID, auth.HashToken(testToken), now,
	)
	require.NoError(t, err)

	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   true,
	})
}

func doRequest(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuthGate_RejectsAnonymous(t *testing.T) {
	s := newTestServer(t)

	paths := []string{
		"/api/history",
		"/api/me/credits",
		"/api/billing/credit-packs",
		"/api/system/status",
		"/api/system/databases",
		"/api/system/disk",
	}
	for _, path := range paths {
		rec := doRequest(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED", path)
	}
}

func TestAuthGate_RejectsUnknownToken(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/me/credits", "not-a-real-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthGate_AdmitsBearerToken(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/me/credits", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		Balance       int  `json:"balance"`
		FreeAvailable bool `json:"freeAvailable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.Balance)
	assert.True(t, summary.FreeAvailable)
}

func TestWebhookSkipsAuthGate(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	// The unsigned payload fails signature verification, proving the
	// request reached the webhook handler instead of the credentials gate.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAppliesSignedPurchase(t *testing.T) {
	s := newTestServer(t)

	session := map[string]interface{}{
		"id":                  "cs_test_1",
		"client_reference_id": testUserID,
		"payment_intent":      "pi_test_1",
		"payment_status":      "paid",
		"metadata":            map[string]string{"packId": "pack_5"},
	}
	sessionJSON, err := json.Marshal(session)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{"object": json.RawMessage(sessionJSON)},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	sig := stripe.SignPayload(ts, payload, "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"received":true`)

	// The purchase lands on the user's balance.
	credits := doRequest(t, s, http.MethodGet, "/api/me/credits", testToken)
	require.Equal(t, http.StatusOK, credits.Code)

	var summary struct {
		Balance        int `json:"balance"`
		TotalPurchased int `json:"totalPurchased"`
	}
	require.NoError(t, json.Unmarshal(credits.Body.Bytes(), &summary))
	assert.Equal(t, 5, summary.Balance)
	assert.Equal(t, 5, summary.TotalPurchased)
}

func TestSystemStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/system/status", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, map[string]bool{"app": true, "ledger": true, "cache": true}, status.Databases)
	assert.GreaterOrEqual(t, status.UptimeHours, 0.0)
	assert.GreaterOrEqual(t, status.RAMPercent, 0.0)
}

func TestSystemDatabasesEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/system/databases", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats DatabaseStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats.Databases, 3)

	names := make([]string, 0, len(stats.Databases))
	for _, db := range stats.Databases {
		names = append(names, db.Name)
		assert.Greater(t, db.SizeMB, 0.0, db.Name)
		assert.Greater(t, db.TableCount, 0, db.Name)
	}
	assert.Equal(t, []string{"app", "cache", "ledger"}, names)
	assert.Greater(t, stats.TotalSizeMB, 0.0)
	assert.NotEmpty(t, stats.LastChecked)
}

func TestSystemDiskEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/system/disk", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var disk DiskUsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disk))
	assert.Greater(t, disk.DataDirMB, 0.0)
	assert.Greater(t, disk.AvailableGB, 0.0)
}

func TestHealthEndpoint_UnhealthyDatabase(t *testing.T) {
	s := newTestServer(t)

	// A closed database fails its ping.
	require.NoError(t, s.container.LedgerDB.Close())

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}
