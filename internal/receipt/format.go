package receipt

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MissingDateLabel is shown when a receipt has no detected trade date
const MissingDateLabel = "Date not detected"

// Formatter renders amounts, counts and dates for display
type Formatter struct {
	printer        *message.Printer
	currencySuffix string
	countSuffix    string
}

// NewFormatter creates a Formatter for a BCP 47 locale such as "ko-KR"
func NewFormatter(locale, currencySuffix, countSuffix string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parsing locale %q: %w", locale, err)
	}
	return &Formatter{
		printer:        message.NewPrinter(tag),
		currencySuffix: currencySuffix,
		countSuffix:    countSuffix,
	}, nil
}

// Amount formats a whole currency amount with thousands separators and the currency suffix
func (f *Formatter) Amount(amount int64) string {
	return f.printer.Sprintf("%d", amount) + f.currencySuffix
}

// Count formats a receipt count with the count suffix
func (f *Formatter) Count(n int) string {
	return f.printer.Sprintf("%d", n) + f.countSuffix
}

// TradeDate returns the trade date, or MissingDateLabel when none was detected
func (f *Formatter) TradeDate(r Record) string {
	if !r.HasTradeDate() {
		return MissingDateLabel
	}
	return *r.TradeDate
}
