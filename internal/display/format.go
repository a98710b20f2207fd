// Package display formats quote values for people rather than machines.
package display

import (
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/noah-isme/engineroom-pricing/internal/pricing"
)

// CurrencySymbol prefixes every displayed amount.
const CurrencySymbol = "R"

// Currency renders v with thousands separators and up to three decimals, e.g. R1,234.5.
func Currency(v float64) string {
	if v < 0 {
		return "-" + CurrencySymbol + humanize.CommafWithDigits(-v, 3)
	}
	return CurrencySymbol + humanize.CommafWithDigits(v, 3)
}

// Discount renders a discount amount as a deduction, e.g. -R116.
func Discount(v float64) string {
	return "-" + Currency(v)
}

// Percent renders a discount fraction as a whole-number percentage deduction.
func Percent(fraction float64) string {
	return "-" + strconv.FormatFloat(fraction*100, 'f', -1, 64) + "%"
}

// TierCard is the display form of a catalog entry.
type TierCard struct {
	ID          pricing.TierID
	Name        string
	Transaction string
	Statement   string
	Discount    string
}

// TierCards converts the catalog into cards in display order.
func TierCards(catalog pricing.Catalog) []TierCard {
	tiers := catalog.All()
	cards := make([]TierCard, 0, len(tiers))
	for _, t := range tiers {
		cards = append(cards, TierCard{
			ID:          t.ID,
			Name:        t.Name,
			Transaction: Currency(t.TransactionRate),
			Statement:   Currency(t.StatementRate),
			Discount:    Percent(t.Discount),
		})
	}
	return cards
}

// Row is one line of the rendered results table.
type Row struct {
	Client      string `json:"client"`
	Tier        string `json:"tier"`
	Transaction string `json:"transactionCost"`
	Statement   string `json:"statementCost"`
	Subtotal    string `json:"subtotal"`
	Discount    string `json:"discount"`
	Total       string `json:"total"`
}

// Table is the rendered results table including its TOTAL line.
type Table struct {
	Rows  []Row `json:"rows"`
	Total Row   `json:"total"`
}

// ResultTable formats a priced quote for display.
func ResultTable(res *pricing.Result) *Table {
	if res == nil {
		return nil
	}
	table := &Table{Rows: make([]Row, 0, len(res.Clients))}
	for _, c := range res.Clients {
		table.Rows = append(table.Rows, Row{
			Client:      c.Name,
			Tier:        string(c.Tier),
			Transaction: Currency(c.TransactionCost),
			Statement:   Currency(c.StatementCost),
			Subtotal:    Currency(c.Subtotal),
			Discount:    Discount(c.DiscountAmount),
			Total:       Currency(c.Total),
		})
	}
	table.Total = Row{
		Client:      "TOTAL",
		Tier:        "-",
		Transaction: Currency(res.Totals.TransactionCost),
		Statement:   Currency(res.Totals.StatementCost),
		Subtotal:    Currency(res.Totals.Subtotal),
		Discount:    Discount(res.Totals.DiscountAmount),
		Total:       Currency(res.Totals.GrandTotal),
	}
	return table
}
