package billing

import (
	"errors"

	"github.com/lotwise/lotwise/internal/domain"
)

// ErrUnknownPack is returned when a pack id is not in the registry.
var ErrUnknownPack = errors.New("unknown credit pack")

// CreditPack is one purchasable credit bundle. The registry below is the
// sole trusted source of credits and price: webhook and checkout metadata
// are only ever used to look a pack up, never to read amounts from.
type CreditPack struct {
	ID          string          `json:"packId"`
	Credits     int             `json:"credits"`
	PriceCents  int             `json:"priceCents"`
	Currency    domain.Currency `json:"currency"`
	DisplayName string          `json:"displayName"`
	Badge       string          `json:"badge,omitempty"`
	SortOrder   int             `json:"sortOrder"`
}

var packRegistry = []CreditPack{
	{ID: "pack_1", Credits: 1, PriceCents: 199, Currency: domain.CurrencyEUR, DisplayName: "1 credit", SortOrder: 1},
	{ID: "pack_5", Credits: 5, PriceCents: 799, Currency: domain.CurrencyEUR, DisplayName: "5 credits", SortOrder: 2},
	{ID: "pack_10", Credits: 10, PriceCents: 1399, Currency: domain.CurrencyEUR, DisplayName: "10 credits", Badge: "popular", SortOrder: 3},
	{ID: "pack_30", Credits: 30, PriceCents: 3499, Currency: domain.CurrencyEUR, DisplayName: "30 credits", SortOrder: 4},
	{ID: "pack_100", Credits: 100, PriceCents: 9900, Currency: domain.CurrencyEUR, DisplayName: "100 credits", Badge: "best_value", SortOrder: 5},
}

// Packs returns all purchasable packs in display order.
func Packs() []CreditPack {
	out := make([]CreditPack, len(packRegistry))
	copy(out, packRegistry)
	return out
}

// PackByID looks a pack up in the registry.
func PackByID(id string) (CreditPack, bool) {
	for _, p := range packRegistry {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPack{}, false
}
