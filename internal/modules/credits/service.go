package credits

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service owns every mutation of credit balances. All writes go through
// single transactions on the ledger database so the user_credits balance
// and the appended credit_ledger rows always move together.
type Service struct {
	repo        *Repository
	freeCredits int
	log         zerolog.Logger
}

func NewService(repo *Repository, freeCredits int, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		freeCredits: freeCredits,
		log:         log.With().Str("component", "credits").Logger(),
	}
}

// GrantFreeIfMissing grants the welcome credits to a user who never
// received them. Returns whether a grant was applied.
func (s *Service) GrantFreeIfMissing(userID string) (bool, error) {
	granted := false
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		acct, err := s.repo.AccountTx(tx, userID)
		if err != nil {
			return err
		}
		if acct != nil && acct.FreeGranted {
			return nil
		}

		balance := 0
		if acct != nil {
			balance = acct.Balance
		}
		newBalance := balance + s.freeCredits

		if acct == nil {
			err = s.repo.InsertAccountTx(tx, userID, newBalance, true, now)
		} else {
			err = s.repo.UpdateAccountTx(tx, userID, newBalance, true, now)
		}
		if err != nil {
			return err
		}
		if err := s.repo.AppendLedgerTx(tx, userID, TypeGrantFree, s.freeCredits, newBalance, ReasonFreeGrant, "", now); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to grant free credits: %w", err)
	}
	return granted, nil
}

// HasCreditsAvailable reports whether a consume would succeed right now,
// without mutating anything.
func (s *Service) HasCreditsAvailable(userID string) (*Availability, error) {
	acct, err := s.repo.Account(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check credits: %w", err)
	}

	balance := 0
	freeGranted := false
	if acct != nil {
		balance = acct.Balance
		freeGranted = acct.FreeGranted
	}

	av := &Availability{
		Balance:       balance,
		FreeAvailable: !freeGranted && s.freeCredits > 0,
	}
	switch {
	case balance > 0:
		av.Available = true
		av.Source = SourceBalance
	case av.FreeAvailable:
		av.Available = true
		av.Source = SourceFree
	default:
		av.Source = SourceNone
	}
	return av, nil
}

// ConsumeCredit takes one credit from the user, granting the welcome
// credits first when they are still unclaimed. A transactional conflict is
// retried once; after that the caller gets ErrNoCredits.
func (s *Service) ConsumeCredit(userID, comparisonID string) (*ConsumeResult, error) {
	result, err := s.consumeOnce(userID, comparisonID)
	if err == nil || errors.Is(err, ErrNoCredits) {
		return result, err
	}

	s.log.Warn().Err(err).Str("user_id", userID).Msg("Consume transaction failed, retrying once")
	result, err = s.consumeOnce(userID, comparisonID)
	if err == nil || errors.Is(err, ErrNoCredits) {
		return result, err
	}

	s.log.Error().Err(err).Str("user_id", userID).Str("comparison_id", comparisonID).
		Msg("Consume retry failed")
	return nil, fmt.Errorf("consume retry failed: %w", ErrNoCredits)
}

func (s *Service) consumeOnce(userID, comparisonID string) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		acct, err := s.repo.AccountTx(tx, userID)
		if err != nil {
			return err
		}

		switch {
		case acct == nil && s.freeCredits > 0:
			// First contact: grant the welcome credits and spend one.
			newBalance := s.freeCredits - 1
			if err := s.repo.InsertAccountTx(tx, userID, newBalance, true, now); err != nil {
				return err
			}
			if err := s.repo.AppendLedgerTx(tx, userID, TypeGrantFree, s.freeCredits, s.freeCredits, ReasonFreeGrant, "", now); err != nil {
				return err
			}
			if err := s.repo.AppendLedgerTx(tx, userID, TypeConsume, -1, newBalance, "", comparisonID, now); err != nil {
				return err
			}
			result = &ConsumeResult{Success: true, NewBalance: newBalance, Source: SourceFree}

		case acct != nil && acct.Balance == 0 && !acct.FreeGranted && s.freeCredits > 0:
			newBalance := s.freeCredits - 1
			if err := s.repo.UpdateAccountTx(tx, userID, newBalance, true, now); err != nil {
				return err
			}
			if err := s.repo.AppendLedgerTx(tx, userID, TypeGrantFree, s.freeCredits, s.freeCredits, ReasonFreeGrant, "", now); err != nil {
				return err
			}
			if err := s.repo.AppendLedgerTx(tx, userID, TypeConsume, -1, newBalance, "", comparisonID, now); err != nil {
				return err
			}
			result = &ConsumeResult{Success: true, NewBalance: newBalance, Source: SourceFree}

		case acct != nil && acct.Balance > 0:
			ok, err := s.repo.DecrementIfPositiveTx(tx, userID, now)
			if err != nil {
				return err
			}
			if !ok {
				// A concurrent consumer took the last credit between our
				// read and the guarded update.
				return ErrNoCredits
			}
			after, err := s.repo.AccountTx(tx, userID)
			if err != nil {
				return err
			}
			if err := s.repo.AppendLedgerTx(tx, userID, TypeConsume, -1, after.Balance, "", comparisonID, now); err != nil {
				return err
			}
			result = &ConsumeResult{Success: true, NewBalance: after.Balance, Source: SourceBalance}

		default:
			return ErrNoCredits
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoCredits) {
			return nil, ErrNoCredits
		}
		return nil, fmt.Errorf("failed to consume credit: %w", err)
	}
	return result, nil
}

// AddPurchasedCredits credits a paid pack outside any caller transaction.
func (s *Service) AddPurchasedCredits(userID string, amount int, purchaseID, externalPaymentID string) (int, error) {
	newBalance := 0
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		var err error
		newBalance, err = s.AddPurchasedCreditsTx(tx, userID, amount, purchaseID, externalPaymentID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// AddPurchasedCreditsTx credits a paid pack inside a transaction the
// caller already opened, so billing can mark the purchase paid, grant the
// credits and record the webhook event atomically.
func (s *Service) AddPurchasedCreditsTx(tx *sql.Tx, userID string, amount int, purchaseID, externalPaymentID string) (int, error) {
	now := time.Now().UnixMilli()
	acct, err := s.repo.AccountTx(tx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := amount
	if acct == nil {
		if err := s.repo.InsertAccountTx(tx, userID, newBalance, false, now); err != nil {
			return 0, err
		}
	} else {
		newBalance = acct.Balance + amount
		if err := s.repo.UpdateAccountTx(tx, userID, newBalance, acct.FreeGranted, now); err != nil {
			return 0, err
		}
	}
	if err := s.repo.AppendLedgerTx(tx, userID, TypePurchase, amount, newBalance, externalPaymentID, purchaseID, now); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// RefundCredits removes refunded credits outside any caller transaction.
func (s *Service) RefundCredits(userID string, amount int, purchaseID, reason string) (int, error) {
	newBalance := 0
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		var err error
		newBalance, err = s.RefundCreditsTx(tx, userID, amount, purchaseID, reason)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// RefundCreditsTx removes credits for a refunded purchase. When the user
// already spent part of the pack the applied delta is clamped so the
// balance never goes negative and the ledger sum still matches it.
func (s *Service) RefundCreditsTx(tx *sql.Tx, userID string, amount int, purchaseID, reason string) (int, error) {
	now := time.Now().UnixMilli()
	acct, err := s.repo.AccountTx(tx, userID)
	if err != nil {
		return 0, err
	}

	balance := 0
	freeGranted := false
	if acct != nil {
		balance = acct.Balance
		freeGranted = acct.FreeGranted
	}

	applied := amount
	if applied > balance {
		applied = balance
	}
	newBalance := balance - applied

	if acct == nil {
		if err := s.repo.InsertAccountTx(tx, userID, newBalance, freeGranted, now); err != nil {
			return 0, err
		}
	} else {
		if err := s.repo.UpdateAccountTx(tx, userID, newBalance, freeGranted, now); err != nil {
			return 0, err
		}
	}
	if err := s.repo.AppendLedgerTx(tx, userID, TypeRefund, -applied, newBalance, reason, purchaseID, now); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// RecordConsumeFailure appends a zero-delta reconciliation row after a
// fetch succeeded but the credit consume did not. The comparison id lets
// offline reconciliation find the unpaid fetch.
func (s *Service) RecordConsumeFailure(userID, comparisonID string) error {
	err := s.repo.Transaction(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		acct, err := s.repo.AccountTx(tx, userID)
		if err != nil {
			return err
		}
		balance := 0
		if acct != nil {
			balance = acct.Balance
		}
		return s.repo.AppendLedgerTx(tx, userID, TypeAdminAdjust, 0, balance, ReasonConsumeFailed, comparisonID, now)
	})
	if err != nil {
		return fmt.Errorf("failed to record consume failure: %w", err)
	}
	return nil
}

// Summary aggregates the per-user credit state for GET /api/me/credits.
func (s *Service) Summary(userID string) (*Summary, error) {
	acct, err := s.repo.Account(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credits summary: %w", err)
	}

	balance := 0
	freeGranted := false
	if acct != nil {
		balance = acct.Balance
		freeGranted = acct.FreeGranted
	}

	purchased, err := s.repo.SumDeltaByType(userID, TypePurchase)
	if err != nil {
		return nil, fmt.Errorf("failed to load credits summary: %w", err)
	}
	consumed, err := s.repo.SumDeltaByType(userID, TypeConsume)
	if err != nil {
		return nil, fmt.Errorf("failed to load credits summary: %w", err)
	}

	return &Summary{
		Balance:           balance,
		FreeAvailable:     !freeGranted && s.freeCredits > 0,
		FreeCreditsAmount: s.freeCredits,
		TotalPurchased:    purchased,
		TotalConsumed:     -consumed,
	}, nil
}
