// Package auth validates bearer tokens and session cookies against app.db
// and puts the authenticated user id on the request context. Account rows
// themselves are written by the external account system; this service only
// reads them.
package auth

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository reads auth tokens and sessions from app.db.
type Repository struct {
	appDB *sql.DB
	log   zerolog.Logger
}

// NewRepository creates a new auth repository.
func NewRepository(appDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		appDB: appDB,
		log:   log.With().Str("repo", "auth").Logger(),
	}
}

// HashToken returns the SHA-256 hex digest of a presented bearer token.
// Only hashes are stored, so a leaked app.db never exposes usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UserIDForTokenHash returns the owning user of a non-revoked, non-expired
// token hash, or "" when no such token exists.
func (r *Repository) UserIDForTokenHash(tokenHash string, now int64) (string, error) {
	query := `SELECT user_id FROM auth_tokens
	          WHERE token_hash = ?
	            AND revoked_at IS NULL
	            AND (expires_at IS NULL OR expires_at > ?)`

	var userID string
	err := r.appDB.QueryRow(query, tokenHash, now).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up token: %w", err)
	}
	return userID, nil
}

// TouchToken updates last_used_at for a token hash. Best-effort: callers
// log failures but never fail the request over it.
func (r *Repository) TouchToken(tokenHash string, now int64) error {
	_, err := r.appDB.Exec("UPDATE auth_tokens SET last_used_at = ? WHERE token_hash = ?", now, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// UserIDForSession returns the owning user of an unexpired session id, or
// "" when the session is unknown or expired.
func (r *Repository) UserIDForSession(sessionID string, now int64) (string, error) {
	query := `SELECT user_id FROM sessions WHERE id = ? AND expires_at > ?`

	var userID string
	err := r.appDB.QueryRow(query, sessionID, now).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session: %w", err)
	}
	return userID, nil
}
