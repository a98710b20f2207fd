package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTier is returned when a tier identifier is not part of the catalog.
var ErrUnknownTier = errors.New("pricing: unknown tier")

// TierID identifies a pricing plan. Only the constants below are valid.
type TierID string

const (
	Gold   TierID = "gold"
	Silver TierID = "silver"
	Bronze TierID = "bronze"
)

// TierIDs lists every valid identifier in display order.
var TierIDs = []TierID{Gold, Silver, Bronze}

// Valid reports whether id is one of the known tiers.
func (id TierID) Valid() bool {
	switch id {
	case Gold, Silver, Bronze:
		return true
	default:
		return false
	}
}

// Label returns the identifier with its first letter upper-cased.
func (id TierID) Label() string {
	s := string(id)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// UnknownTierError carries the identifier that failed to resolve. Index is
// the offending client position, or -1 when the lookup was not client scoped.
type UnknownTierError struct {
	ID    string
	Index int
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("pricing: unknown tier %q", e.ID)
}

// Unwrap lets errors.Is match ErrUnknownTier.
func (e *UnknownTierError) Unwrap() error { return ErrUnknownTier }

// NormalizeTierID folds case and surrounding space out of untrusted input.
// It does not check membership; Catalog.Lookup does that.
func NormalizeTierID(raw string) TierID {
	return TierID(strings.ToLower(strings.TrimSpace(raw)))
}

// Tier fixes the per-unit rates and discount of a plan.
type Tier struct {
	ID              TierID  `json:"id"`
	Name            string  `json:"name"`
	TransactionRate float64 `json:"transactionRate"`
	StatementRate   float64 `json:"statementRate"`
	Discount        float64 `json:"discount"`
}

// Catalog is an immutable tier table.
type Catalog struct {
	tiers map[TierID]Tier
}

// DefaultCatalog returns the standard Gold/Silver/Bronze schedule.
func DefaultCatalog() Catalog {
	return Catalog{tiers: map[TierID]Tier{
		Gold:   {ID: Gold, Name: "Gold Tier", TransactionRate: 26, StatementRate: 160, Discount: 0.20},
		Silver: {ID: Silver, Name: "Silver Tier", TransactionRate: 22, StatementRate: 160, Discount: 0.20},
		Bronze: {ID: Bronze, Name: "Bronze Tier", TransactionRate: 18, StatementRate: 160, Discount: 0.20},
	}}
}

// Lookup resolves a tier by identifier.
func (c Catalog) Lookup(id TierID) (Tier, error) {
	tier, ok := c.tiers[id]
	if !ok {
		return Tier{}, &UnknownTierError{ID: string(id), Index: -1}
	}
	return tier, nil
}

// All returns every tier in display order.
func (c Catalog) All() []Tier {
	out := make([]Tier, 0, len(TierIDs))
	for _, id := range TierIDs {
		if tier, ok := c.tiers[id]; ok {
			out = append(out, tier)
		}
	}
	return out
}
