package credits

import (
	"database/sql"
	"fmt"

	"github.com/lotwise/lotwise/internal/database"
	"github.com/rs/zerolog"
)

// Repository provides access to user_credits and credit_ledger in the
// ledger database. Mutating methods are transaction-scoped so the service
// can compose a grant and a consume, or billing can compose a purchase
// update with a credit grant, inside a single transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  ledgerDB,
		log: log.With().Str("repo", "credits").Logger(),
	}
}

// Transaction runs fn inside a single transaction on the ledger database.
func (r *Repository) Transaction(fn func(*sql.Tx) error) error {
	return database.WithTransaction(r.db, fn)
}

// Account returns the user_credits row for a user, or nil if the user has
// never touched credits.
func (r *Repository) Account(userID string) (*Account, error) {
	return scanAccount(r.db.QueryRow(
		`SELECT balance, free_credits_granted, updated_at FROM user_credits WHERE user_id = ?`,
		userID,
	))
}

// AccountTx is Account inside an open transaction.
func (r *Repository) AccountTx(tx *sql.Tx, userID string) (*Account, error) {
	return scanAccount(tx.QueryRow(
		`SELECT balance, free_credits_granted, updated_at FROM user_credits WHERE user_id = ?`,
		userID,
	))
}

func (r *Repository) InsertAccountTx(tx *sql.Tx, userID string, balance int, freeGranted bool, now int64) error {
	_, err := tx.Exec(
		`INSERT INTO user_credits (user_id, balance, free_credits_granted, updated_at) VALUES (?, ?, ?, ?)`,
		userID, balance, boolToInt(freeGranted), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert credits row for %s: %w", userID, err)
	}
	return nil
}

func (r *Repository) UpdateAccountTx(tx *sql.Tx, userID string, balance int, freeGranted bool, now int64) error {
	_, err := tx.Exec(
		`UPDATE user_credits SET balance = ?, free_credits_granted = ?, updated_at = ? WHERE user_id = ?`,
		balance, boolToInt(freeGranted), now, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update credits row for %s: %w", userID, err)
	}
	return nil
}

// DecrementIfPositiveTx atomically takes one credit off the balance. The
// WHERE balance > 0 guard means a concurrent consumer that already took
// the last credit leaves nothing to update; the caller must treat a false
// return as no credits left.
func (r *Repository) DecrementIfPositiveTx(tx *sql.Tx, userID string, now int64) (bool, error) {
	res, err := tx.Exec(
		`UPDATE user_credits SET balance = balance - 1, updated_at = ? WHERE user_id = ? AND balance > 0`,
		now, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement balance for %s: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// AppendLedgerTx writes one append-only ledger row. created_at is bumped
// past the user's newest row so the ledger keeps a total order even when
// several rows land in the same millisecond.
func (r *Repository) AppendLedgerTx(tx *sql.Tx, userID, entryType string, delta, balanceAfter int, reason, relatedObject string, now int64) error {
	_, err := tx.Exec(
		`INSERT INTO credit_ledger (user_id, type, delta, balance_after, reason, related_object, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at) + 1 FROM credit_ledger WHERE user_id = ?), 0)))`,
		userID, entryType, delta, balanceAfter, nullableString(reason), nullableString(relatedObject), now, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s ledger row for %s: %w", entryType, userID, err)
	}
	return nil
}

// SumDeltaByType sums ledger deltas of one type for a user. Used by the
// credits summary to report lifetime purchased and consumed totals.
func (r *Repository) SumDeltaByType(userID, entryType string) (int, error) {
	var total int
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = ? AND type = ?`,
		userID, entryType,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s deltas for %s: %w", entryType, userID, err)
	}
	return total, nil
}

// LedgerEntries returns all ledger rows for a user in append order.
func (r *Repository) LedgerEntries(userID string) ([]LedgerEntry, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, type, delta, balance_after, reason, related_object, created_at
		 FROM credit_ledger WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var reason, related sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Delta, &e.BalanceAfter, &reason, &related, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.Reason = reason.String
		e.RelatedObject = related.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return entries, nil
}

func scanAccount(row *sql.Row) (*Account, error) {
	var acct Account
	var granted int
	err := row.Scan(&acct.Balance, &granted, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credits row: %w", err)
	}
	acct.FreeGranted = granted == 1
	return &acct, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
