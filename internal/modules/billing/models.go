// Package billing sells credit packs: it creates Stripe Checkout Sessions
// and applies the resulting webhooks to the purchase and credit ledgers.
// Every webhook application is idempotent twice over: the (provider, event
// id) pair is recorded in processed_events, and the external payment id is
// unique across all purchases.
package billing

// ProviderStripe is the only payment provider currently wired.
const ProviderStripe = "stripe"

// Purchase statuses. Legal transitions: pending -> paid -> refunded.
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

// Refund reason recorded on the ledger row.
const reasonChargeRefunded = "charge_refunded"

// Purchase mirrors one purchases row.
type Purchase struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	Provider          string `json:"provider"`
	ExternalSessionID string `json:"externalSessionId,omitempty"`
	ExternalPaymentID string `json:"externalPaymentId,omitempty"`
	PackID            string `json:"packId"`
	CreditsAmount     int    `json:"creditsAmount"`
	AmountCents       int    `json:"amountCents"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	CreatedAt         int64  `json:"createdAt"`
	PaidAt            *int64 `json:"paidAt,omitempty"`
}
