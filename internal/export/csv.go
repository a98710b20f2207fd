// Package export renders priced quotes as downloadable CSV.
package export

import (
	"errors"
	"strconv"
	"strings"

	"github.com/noah-isme/engineroom-pricing/internal/pricing"
)

// ErrNoResult is returned when there is no calculated quote to export.
var ErrNoResult = errors.New("export: no result available")

// Header is the fixed first line of every export.
var Header = []string{
	"Client Name",
	"Tier",
	"Transactions",
	"Supplier Statements",
	"Transaction Cost",
	"Supplier Recon Cost",
	"Subtotal",
	"Discount Amount",
	"Total",
}

// ContentType is the media type used when serving exports.
const ContentType = "text/csv;charset=utf-8"

// ToCSV renders one row per priced client followed by a TOTAL row.
func ToCSV(res *pricing.Result) (string, error) {
	if res == nil {
		return "", ErrNoResult
	}
	var b strings.Builder
	writeRow(&b, Header)
	for _, c := range res.Clients {
		writeRow(&b, []string{
			quote(c.Name),
			c.Tier.Label(),
			strconv.Itoa(c.Transactions),
			strconv.Itoa(c.Statements),
			formatAmount(c.TransactionCost),
			formatAmount(c.StatementCost),
			formatAmount(c.Subtotal),
			formatAmount(c.DiscountAmount),
			formatAmount(c.Total),
		})
	}
	writeRow(&b, []string{
		quote("TOTAL"),
		"-",
		strconv.Itoa(res.TransactionCount()),
		strconv.Itoa(res.StatementCount()),
		formatAmount(res.Totals.TransactionCost),
		formatAmount(res.Totals.StatementCost),
		formatAmount(res.Totals.Subtotal),
		formatAmount(res.Totals.DiscountAmount),
		formatAmount(res.Totals.GrandTotal),
	})
	return b.String(), nil
}

// Filename returns the suggested download name for a company's quote.
func Filename(company string) string {
	var b strings.Builder
	for _, r := range company {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return "pricing-quote-" + b.String() + ".csv"
}

func writeRow(b *strings.Builder, fields []string) {
	b.WriteString(strings.Join(fields, ","))
	b.WriteByte('\n')
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
