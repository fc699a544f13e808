package billing

import (
	"database/sql"
	"fmt"

	"github.com/lotwise/lotwise/internal/database"
	"github.com/rs/zerolog"
)

// Repository provides access to purchases and processed_events in the
// ledger database. Webhook application composes these with the credit
// mutations inside one transaction, so mutating methods take a *sql.Tx.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  ledgerDB,
		log: log.With().Str("repo", "billing").Logger(),
	}
}

// Transaction runs fn inside a single transaction on the ledger database.
func (r *Repository) Transaction(fn func(*sql.Tx) error) error {
	return database.WithTransaction(r.db, fn)
}

const purchaseColumns = `id, user_id, provider, external_session_id, external_payment_id, pack_id,
		credits_amount, amount_cents, currency, status, created_at, paid_at`

// Insert writes a new purchase row.
func (r *Repository) Insert(p *Purchase) error {
	_, err := r.db.Exec(
		`INSERT INTO purchases (`+purchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Provider,
		nullableString(p.ExternalSessionID), nullableString(p.ExternalPaymentID),
		p.PackID, p.CreditsAmount, p.AmountCents, p.Currency, p.Status, p.CreatedAt, p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase %s: %w", p.ID, err)
	}
	return nil
}

// InsertTx is Insert inside an open transaction.
func (r *Repository) InsertTx(tx *sql.Tx, p *Purchase) error {
	_, err := tx.Exec(
		`INSERT INTO purchases (`+purchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Provider,
		nullableString(p.ExternalSessionID), nullableString(p.ExternalPaymentID),
		p.PackID, p.CreditsAmount, p.AmountCents, p.Currency, p.Status, p.CreatedAt, p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase %s: %w", p.ID, err)
	}
	return nil
}

// SetSessionID stores the checkout session id on a pending purchase.
func (r *Repository) SetSessionID(purchaseID, sessionID string) error {
	_, err := r.db.Exec(
		`UPDATE purchases SET external_session_id = ? WHERE id = ?`,
		sessionID, purchaseID,
	)
	if err != nil {
		return fmt.Errorf("failed to set session id on purchase %s: %w", purchaseID, err)
	}
	return nil
}

// Find returns a purchase by id, or nil when absent.
func (r *Repository) Find(id string) (*Purchase, error) {
	return scanPurchase(r.db.QueryRow(
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id,
	))
}

// FindTx is Find inside an open transaction.
func (r *Repository) FindTx(tx *sql.Tx, id string) (*Purchase, error) {
	return scanPurchase(tx.QueryRow(
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id,
	))
}

// FindByPaymentIDTx returns the purchase holding an external payment id.
func (r *Repository) FindByPaymentIDTx(tx *sql.Tx, paymentID string) (*Purchase, error) {
	return scanPurchase(tx.QueryRow(
		`SELECT `+purchaseColumns+` FROM purchases WHERE external_payment_id = ?`, paymentID,
	))
}

// ListByUser returns a user's purchases, newest first.
func (r *Repository) ListByUser(userID string) ([]Purchase, error) {
	rows, err := r.db.Query(
		`SELECT `+purchaseColumns+` FROM purchases WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		p, err := scanPurchaseRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// MarkPaidTx moves a purchase to paid and pins the registry amounts onto
// the row. The webhook payload never supplies credits or price.
func (r *Repository) MarkPaidTx(tx *sql.Tx, id, sessionID, paymentID string, creditsAmount, amountCents int, paidAt int64) error {
	_, err := tx.Exec(
		`UPDATE purchases
		 SET status = ?, external_session_id = ?, external_payment_id = ?,
		     credits_amount = ?, amount_cents = ?, paid_at = ?
		 WHERE id = ?`,
		StatusPaid, sessionID, paymentID, creditsAmount, amountCents, paidAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark purchase %s paid: %w", id, err)
	}
	return nil
}

// MarkRefundedTx moves a purchase to refunded.
func (r *Repository) MarkRefundedTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(`UPDATE purchases SET status = ? WHERE id = ?`, StatusRefunded, id)
	if err != nil {
		return fmt.Errorf("failed to mark purchase %s refunded: %w", id, err)
	}
	return nil
}

// RecordEventTx claims a (provider, event id) pair. Returns false when the
// event was already applied, which short-circuits redeliveries.
func (r *Repository) RecordEventTx(tx *sql.Tx, provider, eventID string, now int64) (bool, error) {
	res, err := tx.Exec(
		`INSERT OR IGNORE INTO processed_events (provider, event_id, processed_at) VALUES (?, ?, ?)`,
		provider, eventID, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read event insert result: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row *sql.Row) (*Purchase, error) {
	p, err := scanPurchaseRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPurchaseRow(row rowScanner) (*Purchase, error) {
	var p Purchase
	var sessionID, paymentID sql.NullString
	var paidAt sql.NullInt64
	err := row.Scan(
		&p.ID, &p.UserID, &p.Provider, &sessionID, &paymentID, &p.PackID,
		&p.CreditsAmount, &p.AmountCents, &p.Currency, &p.Status, &p.CreatedAt, &paidAt,
	)
	if err != nil {
		return nil, err
	}
	p.ExternalSessionID = sessionID.String
	p.ExternalPaymentID = paymentID.String
	if paidAt.Valid {
		p.PaidAt = &paidAt.Int64
	}
	return &p, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
