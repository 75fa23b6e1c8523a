// Package money parses prices out of display text, respecting locale
// conventions for decimal and grouping separators and resolving the ISO 4217
// currency for the locale's region.
package money

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// comma-decimal locales write 35,50 for 35.50. Everything else is treated as
// point-decimal. Derived from the base language since region data alone does
// not decide the convention.
var commaDecimalLanguages = map[string]struct{}{
	"ro": {}, "de": {}, "fr": {}, "es": {}, "it": {}, "pt": {},
	"nl": {}, "pl": {}, "ru": {}, "tr": {}, "hu": {}, "cs": {},
	"bg": {}, "el": {}, "sv": {}, "da": {}, "fi": {}, "nb": {},
}

// Parser converts price display text into fixed-point decimals.
type Parser struct {
	tag          language.Tag
	decimalSep   rune
	groupSep     rune
	currencyCode string
}

// NewParser builds a Parser for a BCP 47 locale such as "ro-RO" or "en-US".
func NewParser(locale string) (*Parser, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}

	base, _ := tag.Base()
	decimalSep, groupSep := '.', ','
	if _, ok := commaDecimalLanguages[base.String()]; ok {
		decimalSep, groupSep = ',', '.'
	}

	code := "EUR"
	if region, confidence := tag.Region(); confidence != language.No {
		if unit, ok := currency.FromRegion(region); ok {
			code = unit.String()
		}
	}

	return &Parser{
		tag:          tag,
		decimalSep:   decimalSep,
		groupSep:     groupSep,
		currencyCode: code,
	}, nil
}

// Currency returns the ISO 4217 code resolved for the parser's locale.
func (p *Parser) Currency() string {
	return p.currencyCode
}

// Parse extracts the numeric value from price display text such as
// "35,50 lei" or "$1,299.00". Text with no decimal marker and a value of 100
// or more is reinterpreted as cents: catalog sites commonly render "3500" for
// 35.00 by dropping the decimal punctuation.
func (p *Parser) Parse(text string) (decimal.Decimal, error) {
	digits, sawDecimal, err := p.normalize(text)
	if err != nil {
		return decimal.Zero, err
	}

	value, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", text, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", text)
	}

	if !sawDecimal && value.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		value = value.Shift(-2)
	}
	return value, nil
}

// normalize strips currency symbols and words, resolves locale separators, and
// returns a plain "1234.56" string plus whether a decimal marker was present.
func (p *Parser) normalize(text string) (string, bool, error) {
	var b strings.Builder
	sawDecimal := false
	for _, r := range text {
		switch {
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == p.decimalSep:
			if b.Len() == 0 {
				continue
			}
			if !sawDecimal {
				b.WriteRune('.')
				sawDecimal = true
			}
		case r == p.groupSep, unicode.IsSpace(r):
			// grouping separators carry no value
		}
	}
	digits := b.String()
	if strings.TrimPrefix(digits, "-") == "" {
		return "", false, fmt.Errorf("no digits in price text %q", text)
	}
	if strings.HasSuffix(digits, ".") {
		digits = strings.TrimSuffix(digits, ".")
		sawDecimal = false
	}
	return digits, sawDecimal, nil
}
