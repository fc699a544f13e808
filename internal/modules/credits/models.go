package credits

import "errors"

// ErrNoCredits is returned when a consume cannot be satisfied, either
// because the balance is zero and the free grant was already used, or
// because a concurrent consumer drained the last credit.
var ErrNoCredits = errors.New("no credits available")

// Ledger entry types. The credit_ledger table is append-only; every
// balance mutation writes exactly one row per applied delta.
const (
	TypeGrantFree   = "grant_free"
	TypePurchase    = "purchase"
	TypeConsume     = "consume"
	TypeRefund      = "refund"
	TypeAdminAdjust = "admin_adjust"
)

// Sources reported by availability checks and consume results.
const (
	SourceBalance = "balance"
	SourceFree    = "free"
	SourceNone    = "none"
)

const (
	ReasonFreeGrant     = "free_credit_grant"
	ReasonConsumeFailed = "consume_failed_after_fetch"
)

// Account mirrors one user_credits row.
type Account struct {
	Balance     int
	FreeGranted bool
	UpdatedAt   int64
}

// LedgerEntry mirrors one credit_ledger row.
type LedgerEntry struct {
	ID            int64
	UserID        string
	Type          string
	Delta         int
	BalanceAfter  int
	Reason        string
	RelatedObject string
	CreatedAt     int64
}

// Availability is the result of a non-mutating credits check.
type Availability struct {
	Available     bool   `json:"available"`
	Balance       int    `json:"balance"`
	FreeAvailable bool   `json:"freeAvailable"`
	Source        string `json:"source"`
}

// ConsumeResult reports a successful credit consumption.
type ConsumeResult struct {
	Success    bool   `json:"success"`
	NewBalance int    `json:"newBalance"`
	Source     string `json:"source,omitempty"`
}

// Summary backs GET /api/me/credits.
type Summary struct {
	Balance           int  `json:"balance"`
	FreeAvailable     bool `json:"freeAvailable"`
	FreeCreditsAmount int  `json:"freeCreditsAmount"`
	TotalPurchased    int  `json:"totalPurchased"`
	TotalConsumed     int  `json:"totalConsumed"`
}
