package pricing

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ClientEntry is one row of the quote form.
type ClientEntry struct {
	Name         string `json:"name"`
	Tier         TierID `json:"tier"`
	Transactions int    `json:"transactions"`
	Statements   int    `json:"statements"`
}

// Request is the full form submission.
type Request struct {
	CompanyName  string        `json:"companyName"`
	CompanyEmail string        `json:"companyEmail"`
	Clients      []ClientEntry `json:"clients"`
}

// PricedClient is a ClientEntry with its derived costs.
type PricedClient struct {
	ClientEntry
	TierName        string  `json:"tierName"`
	TransactionCost float64 `json:"transactionCost"`
	StatementCost   float64 `json:"statementCost"`
	Subtotal        float64 `json:"subtotal"`
	DiscountAmount  float64 `json:"discountAmount"`
	Total           float64 `json:"totalCost"`
}

// Totals sums every PricedClient field across a quote.
type Totals struct {
	TransactionCost float64 `json:"transactionCost"`
	StatementCost   float64 `json:"statementCost"`
	Subtotal        float64 `json:"subtotal"`
	DiscountAmount  float64 `json:"discountAmount"`
	GrandTotal      float64 `json:"grandTotal"`
}

// Result is a fully priced quote. A Result is never mutated after Calculate returns it.
type Result struct {
	CompanyName  string         `json:"companyName"`
	CompanyEmail string         `json:"companyEmail"`
	Clients      []PricedClient `json:"clients"`
	Totals       Totals         `json:"totals"`
	Timestamp    time.Time      `json:"timestamp"`
}

// TransactionCount sums transactions across all clients.
func (r *Result) TransactionCount() int {
	n := 0
	for _, c := range r.Clients {
		n += c.Transactions
	}
	return n
}

// StatementCount sums statements across all clients.
func (r *Result) StatementCount() int {
	n := 0
	for _, c := range r.Clients {
		n += c.Statements
	}
	return n
}

// Engine validates and prices quote requests.
type Engine struct {
	Catalog Catalog
	Now     func() time.Time
}

// NewEngine returns an engine over the default catalog.
func NewEngine() *Engine {
	return &Engine{Catalog: DefaultCatalog(), Now: time.Now}
}

// Calculate validates req and prices every client in input order. It returns
// a *ValidationError for user input problems and, only once validation has
// passed, an *UnknownTierError when a client references a tier outside the
// catalog.
func (e *Engine) Calculate(req Request) (*Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	catalog := e.Catalog
	if catalog.tiers == nil {
		catalog = DefaultCatalog()
	}

	priced := make([]PricedClient, 0, len(req.Clients))
	var totals Totals
	for i, entry := range req.Clients {
		tier, err := catalog.Lookup(entry.Tier)
		if err != nil {
			return nil, &UnknownTierError{ID: string(entry.Tier), Index: i}
		}
		pc := Price(entry, tier)
		totals.TransactionCost += pc.TransactionCost
		totals.StatementCost += pc.StatementCost
		totals.Subtotal += pc.Subtotal
		totals.DiscountAmount += pc.DiscountAmount
		totals.GrandTotal += pc.Total
		priced = append(priced, pc)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return &Result{
		CompanyName:  req.CompanyName,
		CompanyEmail: req.CompanyEmail,
		Clients:      priced,
		Totals:       totals,
		Timestamp:    now().UTC(),
	}, nil
}

// Price derives the cost breakdown of a single client under tier.
func Price(entry ClientEntry, tier Tier) PricedClient {
	transactionCost := float64(entry.Transactions) * tier.TransactionRate
	statementCost := float64(entry.Statements) * tier.StatementRate
	subtotal := transactionCost + statementCost
	discount := subtotal * tier.Discount
	return PricedClient{
		ClientEntry:     entry,
		TierName:        tier.Name,
		TransactionCost: transactionCost,
		StatementCost:   statementCost,
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		Total:           subtotal - discount,
	}
}

// Validate applies the form rules in order and returns the first failure.
// Client-scoped rules report every offending index rather than the first.
func Validate(req Request) error {
	if strings.TrimSpace(req.CompanyName) == "" {
		return &ValidationError{Field: FieldCompanyName, Reason: ReasonRequired}
	}
	if strings.TrimSpace(req.CompanyEmail) == "" {
		return &ValidationError{Field: FieldCompanyEmail, Reason: ReasonRequired}
	}
	if !ValidEmail(req.CompanyEmail) {
		return &ValidationError{Field: FieldCompanyEmail, Reason: ReasonInvalidFormat}
	}
	if len(req.Clients) == 0 {
		return &ValidationError{Field: FieldClients, Reason: ReasonRequired}
	}

	var missing []int
	for i, c := range req.Clients {
		if strings.TrimSpace(c.Name) == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Field: FieldClients, Reason: ReasonMissingNames, Indices: missing}
	}

	var negative []int
	for i, c := range req.Clients {
		if c.Transactions < 0 || c.Statements < 0 {
			negative = append(negative, i)
		}
	}
	if len(negative) > 0 {
		return &ValidationError{Field: FieldClients, Reason: ReasonNegativeCount, Indices: negative}
	}
	return nil
}

// ValidEmail reports whether email has a local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
