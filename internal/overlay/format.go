package overlay

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxFractionDigits matches what browsers print for toLocaleString().
const maxFractionDigits = 3

// Formatter renders numbers with locale grouping.
type Formatter struct {
	printer *message.Printer
	decSep  string
}

// NewFormatter builds a formatter for tag. An unknown locale string should
// be resolved by the caller with language.Make, which falls back to und.
func NewFormatter(tag language.Tag) *Formatter {
	p := message.NewPrinter(tag)
	sep := strings.TrimSuffix(strings.TrimPrefix(p.Sprintf("%.1f", 1.5), "1"), "5")
	if sep == "" {
		sep = "."
	}
	return &Formatter{printer: p, decSep: sep}
}

// BaseUnits divides a raw integer amount by 10^decimals and formats it. Any
// value that does not parse as a number comes back unchanged.
func (f *Formatter) BaseUnits(raw string, decimals int) string {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return f.Decimal(d.Shift(int32(-decimals)))
}

// Decimal formats d with grouping and at most three fraction digits.
func (f *Formatter) Decimal(d decimal.Decimal) string {
	d = d.Round(maxFractionDigits)
	neg := d.IsNegative()
	d = d.Abs()

	whole := d.Truncate(0)
	frac := d.Sub(whole)

	var out string
	if bi := whole.BigInt(); bi.IsInt64() {
		out = f.printer.Sprintf("%d", bi.Int64())
	} else {
		out = humanize.BigComma(bi)
	}
	if !frac.IsZero() {
		out += f.decSep + strings.TrimPrefix(frac.String(), "0.")
	}
	if neg {
		out = "-" + out
	}
	return out
}
