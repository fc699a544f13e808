package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/clients/stripe"
	"github.com/lotwise/lotwise/internal/modules/credits"
)

// Service creates checkout sessions and applies payment webhooks. It is
// the only writer of the purchases table.
type Service struct {
	repo       *Repository
	credits    *credits.Service
	stripe     *stripe.Client
	priceIDs   map[string]string // packId -> Stripe price id
	appBaseURL string
	log        zerolog.Logger
}

// NewService creates a new billing service. priceIDs maps pack ids to the
// configured Stripe price ids; packs without one are not purchasable.
func NewService(
	repo *Repository,
	creditService *credits.Service,
	stripeClient *stripe.Client,
	priceIDs map[string]string,
	appBaseURL string,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		credits:    creditService,
		stripe:     stripeClient,
		priceIDs:   priceIDs,
		appBaseURL: appBaseURL,
		log:        log.With().Str("component", "billing").Logger(),
	}
}

// CreateCheckout opens a Stripe Checkout Session for a pack and returns
// the hosted payment URL. A pending purchase row is written first so the
// webhook can correlate the payment back to the user.
func (s *Service) CreateCheckout(ctx context.Context, userID, packID string) (string, error) {
	pack, ok := PackByID(packID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPack, packID)
	}
	priceID := s.priceIDs[pack.ID]
	if priceID == "" {
		return "", fmt.Errorf("pack %s has no configured price", pack.ID)
	}

	purchase := &Purchase{
		ID:            uuid.NewString(),
		UserID:        userID,
		Provider:      ProviderStripe,
		PackID:        pack.ID,
		CreditsAmount: pack.Credits,
		AmountCents:   pack.PriceCents,
		Currency:      string(pack.Currency),
		Status:        StatusPending,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := s.repo.Insert(purchase); err != nil {
		return "", err
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		PriceID:           priceID,
		Quantity:          1,
		SuccessURL:        s.appBaseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.appBaseURL + "/billing/cancelled",
		ClientReferenceID: userID,
		Metadata: map[string]string{
			"packId":     pack.ID,
			"purchaseId": purchase.ID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	if err := s.repo.SetSessionID(purchase.ID, session.ID); err != nil {
		s.log.Error().Err(err).Str("purchase_id", purchase.ID).Msg("Failed to store session id")
	}

	s.log.Info().
		Str("user_id", userID).
		Str("pack_id", pack.ID).
		Str("purchase_id", purchase.ID).
		Msg("Checkout session created")
	return session.URL, nil
}

// HandleEvent dispatches one verified webhook event. Unhandled event types
// are acknowledged silently.
func (s *Service) HandleEvent(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}
		return s.HandleCheckoutCompleted(event.ID, session)

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
			return fmt.Errorf("failed to decode charge: %w", err)
		}
		return s.HandleChargeRefunded(event.ID, charge)

	default:
		s.log.Debug().Str("type", event.Type).Msg("Ignoring webhook event")
		return nil
	}
}

// HandleCheckoutCompleted applies a completed checkout. The whole
// application is one transaction on the ledger database: event dedup,
// purchase update and credit grant commit together or not at all. Credits
// and price always come from the pack registry, never from the session.
func (s *Service) HandleCheckoutCompleted(eventID string, session stripe.CheckoutSession) error {
	return s.repo.Transaction(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()

		fresh, err := s.repo.RecordEventTx(tx, ProviderStripe, eventID, now)
		if err != nil {
			return err
		}
		if !fresh {
			s.log.Info().Str("event_id", eventID).Msg("Webhook event already applied")
			return nil
		}

		if session.PaymentIntent == "" {
			return fmt.Errorf("checkout session %s has no payment intent", session.ID)
		}

		// A second delivery usually reuses the event id, but Stripe may
		// also emit distinct events for one payment. The unique payment id
		// is the stronger guard.
		existing, err := s.repo.FindByPaymentIDTx(tx, session.PaymentIntent)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == StatusPaid {
			s.log.Info().Str("payment_id", session.PaymentIntent).Msg("Payment already applied")
			return nil
		}

		pack, ok := PackByID(session.Metadata["packId"])
		if !ok {
			return fmt.Errorf("checkout session %s: %w: %q", session.ID, ErrUnknownPack, session.Metadata["packId"])
		}

		purchase := existing
		if purchase == nil {
			purchase, err = s.repo.FindTx(tx, session.Metadata["purchaseId"])
			if err != nil {
				return err
			}
		}
		if purchase == nil {
			// The pending row is gone or the session was created out of
			// band. The payment still happened, so record it.
			purchase = &Purchase{
				ID:        uuid.NewString(),
				UserID:    session.ClientReferenceID,
				Provider:  ProviderStripe,
				PackID:    pack.ID,
				Currency:  string(pack.Currency),
				Status:    StatusPending,
				CreatedAt: now,
			}
			purchase.CreditsAmount = pack.Credits
			purchase.AmountCents = pack.PriceCents
			if purchase.UserID == "" {
				return fmt.Errorf("checkout session %s has no user reference", session.ID)
			}
			if err := s.repo.InsertTx(tx, purchase); err != nil {
				return err
			}
		}

		if err := s.repo.MarkPaidTx(tx, purchase.ID, session.ID, session.PaymentIntent, pack.Credits, pack.PriceCents, now); err != nil {
			return err
		}

		newBalance, err := s.credits.AddPurchasedCreditsTx(tx, purchase.UserID, pack.Credits, purchase.ID, session.PaymentIntent)
		if err != nil {
			return err
		}

		s.log.Info().
			Str("user_id", purchase.UserID).
			Str("pack_id", pack.ID).
			Int("credits", pack.Credits).
			Int("new_balance", newBalance).
			Msg("Purchase applied")
		return nil
	})
}

// HandleChargeRefunded applies a refund. Idempotent: a purchase already
// refunded, or an event already seen, is a no-op.
func (s *Service) HandleChargeRefunded(eventID string, charge stripe.Charge) error {
	return s.repo.Transaction(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()

		fresh, err := s.repo.RecordEventTx(tx, ProviderStripe, eventID, now)
		if err != nil {
			return err
		}
		if !fresh {
			s.log.Info().Str("event_id", eventID).Msg("Webhook event already applied")
			return nil
		}

		purchase, err := s.repo.FindByPaymentIDTx(tx, charge.PaymentIntent)
		if err != nil {
			return err
		}
		if purchase == nil {
			s.log.Warn().Str("payment_id", charge.PaymentIntent).Msg("Refund for unknown payment")
			return nil
		}
		if purchase.Status == StatusRefunded {
			return nil
		}
		if purchase.Status != StatusPaid {
			s.log.Warn().
				Str("purchase_id", purchase.ID).
				Str("status", purchase.Status).
				Msg("Refund for purchase that was never paid")
			return nil
		}

		if err := s.repo.MarkRefundedTx(tx, purchase.ID); err != nil {
			return err
		}

		newBalance, err := s.credits.RefundCreditsTx(tx, purchase.UserID, purchase.CreditsAmount, purchase.ID, reasonChargeRefunded)
		if err != nil {
			return err
		}

		s.log.Info().
			Str("user_id", purchase.UserID).
			Str("purchase_id", purchase.ID).
			Int("credits", purchase.CreditsAmount).
			Int("new_balance", newBalance).
			Msg("Refund applied")
		return nil
	})
}
