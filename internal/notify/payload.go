package notify

import (
	"time"

	"github.com/noah-isme/engineroom-pricing/internal/pricing"
)

// TimestampLayout renders instants as ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the JSON document posted to the automation webhook.
type Payload struct {
	CompanyName   string         `json:"companyName"`
	CompanyEmail  string         `json:"companyEmail"`
	DateSubmitted string         `json:"dateSubmitted"`
	Quotes        []QuoteLine    `json:"quotes"`
	Totals        pricing.Totals `json:"totals"`
	Timestamp     string         `json:"timestamp"`
}

// QuoteLine is one priced client in the webhook document.
type QuoteLine struct {
	QuoteID         int     `json:"quoteId"`
	ClientName      string  `json:"clientName"`
	Tier            string  `json:"tier"`
	TierName        string  `json:"tierName"`
	Transactions    int     `json:"transactions"`
	Statements      int     `json:"statements"`
	TransactionCost float64 `json:"transactionCost"`
	StatementCost   float64 `json:"statementCost"`
	Subtotal        float64 `json:"subtotal"`
	DiscountAmount  float64 `json:"discountAmount"`
	TotalCost       float64 `json:"totalCost"`
}

// NewPayload builds the webhook document for res. Quote ids are 1-based and
// follow the client order of the result.
func NewPayload(res *pricing.Result, submittedAt time.Time) Payload {
	lines := make([]QuoteLine, 0, len(res.Clients))
	for i, c := range res.Clients {
		lines = append(lines, QuoteLine{
			QuoteID:         i + 1,
			ClientName:      c.Name,
			Tier:            string(c.Tier),
			TierName:        c.TierName,
			Transactions:    c.Transactions,
			Statements:      c.Statements,
			TransactionCost: c.TransactionCost,
			StatementCost:   c.StatementCost,
			Subtotal:        c.Subtotal,
			DiscountAmount:  c.DiscountAmount,
			TotalCost:       c.Total,
		})
	}
	return Payload{
		CompanyName:   res.CompanyName,
		CompanyEmail:  res.CompanyEmail,
		DateSubmitted: submittedAt.UTC().Format(TimestampLayout),
		Quotes:        lines,
		Totals:        res.Totals,
		Timestamp:     res.Timestamp.UTC().Format(TimestampLayout),
	}
}
