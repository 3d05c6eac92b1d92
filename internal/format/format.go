// Package format renders prices and counts for display.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// Price renders a dollar amount with two decimals and comma grouping,
// e.g. $1,234.50.
func Price(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Compact shortens large counts: 1.2k, 3.4m. Values below 1000 are
// printed as is.
func Compact(n int64) string {
	d := decimal.NewFromInt(n)
	switch {
	case d.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(1) + "m"
	case d.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(1) + "k"
	default:
		return d.String()
	}
}
