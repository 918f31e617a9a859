package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Recompute derives every line total, the subtotal, the tax amount, and
// the grand total from the current items and tax rate. Stored totals are
// never trusted.
func (inv *Invoice) Recompute() {
	subtotal := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		line := decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.UnitPrice)).Round(2)
		it.Total = money(line)
		subtotal = subtotal.Add(line)
	}
	tax := subtotal.Mul(decimal.NewFromFloat(inv.TaxRate)).Div(hundred).Round(2)
	inv.Subtotal = money(subtotal)
	inv.TaxAmount = money(tax)
	inv.Total = money(subtotal.Add(tax))
}

// ItemsTotal sums quantity × unit price over items.
func ItemsTotal(items []LineItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.UnitPrice)).Round(2))
	}
	return money(sum)
}

// InvoicePrefix returns the number prefix for an invoice type.
func InvoicePrefix(typ string) string {
	if typ == InvoiceTypeQuote {
		return "COT"
	}
	return "INV"
}

// FormatInvoiceNumber renders e.g. INV-2026-0007.
func FormatInvoiceNumber(typ string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", InvoicePrefix(typ), year, seq)
}

// ParseInvoiceSeq extracts the sequence from a number with the given
// prefix and year, or 0 when it does not match.
func ParseInvoiceSeq(number, typ string, year int) int {
	head := fmt.Sprintf("%s-%d-", InvoicePrefix(typ), year)
	if !strings.HasPrefix(number, head) {
		return 0
	}
	var seq int
	if _, err := fmt.Sscanf(number[len(head):], "%d", &seq); err != nil {
		return 0
	}
	return seq
}

// RoundMoney rounds f to cents.
func RoundMoney(f float64) float64 {
	return money(decimal.NewFromFloat(f))
}

// AddDays returns date shifted by days, or date unchanged when it does not parse.
func AddDays(date string, days int) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format(DateLayout)
}
