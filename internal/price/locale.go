package price

import (
	"fmt"
	"unicode"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// probe has enough integer digits to force grouping in every CLDR locale.
const probe = 1234567.5

// Symbols are the number formatting conventions of a locale.
type Symbols struct {
	Decimal  rune
	Grouping rune
	Currency string
}

// LookupSymbols resolves separators from CLDR data by formatting a probe number
// and reading back the non-digit runes.
func LookupSymbols(locale string) (Symbols, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return Symbols{}, fmt.Errorf("failed to parse locale %q: %w", locale, err)
	}

	formatted := message.NewPrinter(tag).Sprint(number.Decimal(probe, number.MinFractionDigits(1)))

	var separators []rune
	for _, r := range formatted {
		if unicode.IsDigit(r) {
			continue
		}
		separators = append(separators, r)
	}

	symbols := Symbols{Decimal: '.', Grouping: ','}
	if len(separators) >= 2 {
		symbols.Grouping = separators[0]
		symbols.Decimal = separators[len(separators)-1]
	}

	unit, conf := currency.FromTag(tag)
	if conf == language.No {
		return Symbols{}, fmt.Errorf("no currency known for locale %q", locale)
	}
	symbols.Currency = unit.String()

	return symbols, nil
}
