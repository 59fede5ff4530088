package price

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrMalformedPrice = errors.New("malformed price")
	ErrMalformedURL   = errors.New("malformed url")
)

var hundred = decimal.NewFromInt(100)

// Parser converts free-text price tags into decimal values for one locale.
type Parser struct {
	locale         string
	symbols        Symbols
	centsHeuristic bool
}

type Option func(*Parser)

// WithCentsHeuristic toggles reading separator-less integers of 100 or more
// as cents, for markup that renders "16<sup>99</sup>" as "1699".
func WithCentsHeuristic(enabled bool) Option {
	return func(p *Parser) {
		p.centsHeuristic = enabled
	}
}

func NewParser(locale string, opts ...Option) (*Parser, error) {
	symbols, err := LookupSymbols(locale)
	if err != nil {
		return nil, err
	}

	p := &Parser{
		locale:         locale,
		symbols:        symbols,
		centsHeuristic: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Parser) Locale() string {
	return p.locale
}

func (p *Parser) Currency() string {
	return p.symbols.Currency
}

// ParseValue returns the monetary value of a price tag.
func (p *Parser) ParseValue(text string) (decimal.Decimal, error) {
	normalized := p.normalize(text)

	value, err := p.parseLeadingNumber(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedPrice, text)
	}

	if p.centsHeuristic && !strings.ContainsAny(text, ".,") && value.Exponent() >= 0 &&
		value.GreaterThanOrEqual(hundred) {
		value = value.Div(hundred)
	}

	return value, nil
}

// PricePoint parses text and builds an immutable observation for rawURL.
func (p *Parser) PricePoint(text, rawURL string, retrievedAt time.Time) (*models.PricePoint, error) {
	value, err := p.ParseValue(text)
	if err != nil {
		return nil, err
	}

	site, err := SiteOf(rawURL)
	if err != nil {
		return nil, err
	}

	if retrievedAt.IsZero() {
		retrievedAt = time.Now()
	}

	return &models.PricePoint{
		ID:           uuid.New().String(),
		NominalValue: value,
		Currency:     p.symbols.Currency,
		RetrievedAt:  retrievedAt.UTC(),
		URL:          rawURL,
		Site:         site,
	}, nil
}

// SiteOf returns the host name of an absolute URL.
func SiteOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrMalformedURL, rawURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

// normalize rewrites separators that do not match the locale's conventions.
func (p *Parser) normalize(text string) string {
	dec, grp := p.symbols.Decimal, p.symbols.Grouping
	decimalAt := strings.IndexRune(text, dec)
	groupingAt := strings.IndexRune(text, grp)

	switch {
	case decimalAt == -1:
		// a single plain number written with foreign separators
		return strings.Map(func(r rune) rune {
			if r == '.' || r == ',' {
				return dec
			}
			return r
		}, text)
	case groupingAt == -1:
		// three or more fractional digits means the separator groups thousands
		if leadingDigits(text[decimalAt+len(string(dec)):]) >= 3 {
			return strings.ReplaceAll(text, string(dec), string(grp))
		}
		return text
	case groupingAt > decimalAt:
		return strings.Map(func(r rune) rune {
			switch r {
			case dec:
				return grp
			case grp:
				return dec
			}
			return r
		}, text)
	default:
		return text
	}
}

// parseLeadingNumber reads the first numeric run, skipping any currency prefix.
func (p *Parser) parseLeadingNumber(text string) (decimal.Decimal, error) {
	runes := []rune(strings.TrimSpace(text))

	i := 0
	for i < len(runes) && !isDigit(runes[i]) {
		i++
	}
	if i == len(runes) {
		return decimal.Zero, ErrMalformedPrice
	}

	var b strings.Builder
	seenDecimal := false
	for ; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isDigit(r):
			b.WriteRune(r)
		case r == p.symbols.Grouping && !seenDecimal && i+1 < len(runes) && isDigit(runes[i+1]):
		case r == p.symbols.Decimal && !seenDecimal && i+1 < len(runes) && isDigit(runes[i+1]):
			seenDecimal = true
			b.WriteByte('.')
		default:
			return decimal.NewFromString(b.String())
		}
	}

	return decimal.NewFromString(b.String())
}

func leadingDigits(s string) int {
	n := 0
	for _, r := range s {
		if !isDigit(r) {
			break
		}
		n++
	}
	return n
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
