// Package pricing does quote and invoice arithmetic in integer cents.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidLineItem = errors.New("pricing: invalid line item")

// LineItem is one labor or material line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCents   int64   `json:"unit_cents"`
}

// Total is quantity × unit price, rounded half away from zero.
func (li LineItem) Total() int64 {
	return roundCents(li.Quantity * float64(li.UnitCents))
}

// TaxPolicy holds rates as fractions (0.05 = 5%).
type TaxPolicy struct {
	GST        float64
	PST        float64
	PSTOnLabor bool
}

// DefaultPolicy is 5% GST and 7% PST.
func DefaultPolicy() TaxPolicy {
	return TaxPolicy{GST: 0.05, PST: 0.07}
}

// Breakdown is the priced result of a set of line items.
type Breakdown struct {
	LaborCents     int64 `json:"labor_cents"`
	MaterialsCents int64 `json:"materials_cents"`
	SubtotalCents  int64 `json:"subtotal_cents"`
	GSTCents       int64 `json:"gst_cents"`
	PSTCents       int64 `json:"pst_cents"`
	TotalCents     int64 `json:"total_cents"`
}

// Validate rejects lines with a blank description or negative values.
func Validate(items []LineItem) error {
	for i, li := range items {
		if strings.TrimSpace(li.Description) == "" {
			return fmt.Errorf("%w: line %d has no description", ErrInvalidLineItem, i+1)
		}
		if li.Quantity < 0 || math.IsNaN(li.Quantity) || math.IsInf(li.Quantity, 0) {
			return fmt.Errorf("%w: line %d quantity %v", ErrInvalidLineItem, i+1, li.Quantity)
		}
		if li.UnitCents < 0 {
			return fmt.Errorf("%w: line %d unit price %d", ErrInvalidLineItem, i+1, li.UnitCents)
		}
	}
	return nil
}

// Sum totals the lines.
func Sum(items []LineItem) int64 {
	var total int64
	for _, li := range items {
		total += li.Total()
	}
	return total
}

// QuoteTotals applies both taxes to the whole subtotal.
func QuoteTotals(labor, materials []LineItem, p TaxPolicy) Breakdown {
	b := Breakdown{LaborCents: Sum(labor), MaterialsCents: Sum(materials)}
	b.SubtotalCents = b.LaborCents + b.MaterialsCents
	b.GSTCents = roundCents(float64(b.SubtotalCents) * p.GST)
	b.PSTCents = roundCents(float64(b.SubtotalCents) * p.PST)
	b.TotalCents = b.SubtotalCents + b.GSTCents + b.PSTCents
	return b
}

// InvoiceTotals applies GST to everything and PST to materials only, unless
// the policy also taxes labor.
func InvoiceTotals(labor, materials []LineItem, p TaxPolicy) Breakdown {
	b := Breakdown{LaborCents: Sum(labor), MaterialsCents: Sum(materials)}
	b.SubtotalCents = b.LaborCents + b.MaterialsCents
	b.GSTCents = roundCents(float64(b.SubtotalCents) * p.GST)
	pstBase := b.MaterialsCents
	if p.PSTOnLabor {
		pstBase = b.SubtotalCents
	}
	b.PSTCents = roundCents(float64(pstBase) * p.PST)
	b.TotalCents = b.SubtotalCents + b.GSTCents + b.PSTCents
	return b
}

// FlatTotal describes a price given as a single tax-inclusive amount.
func FlatTotal(totalCents int64) Breakdown {
	return Breakdown{SubtotalCents: totalCents, TotalCents: totalCents}
}

// FormatCents renders cents as dollars, e.g. $1,234.56.
func FormatCents(c int64) string {
	sign := ""
	mag := uint64(c)
	if c < 0 {
		sign = "-"
		// two's complement negation stays exact for math.MinInt64
		mag = -mag
	}
	dollars := strconv.FormatUint(mag/100, 10)
	var b strings.Builder
	for i, r := range dollars {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), mag%100)
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
