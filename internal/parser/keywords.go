package parser

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/maltedev/book-price-scraper/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// Separators splits attribute keys into tokens.
var Separators = regexp.MustCompile(`[\s|,.;:]+`)

// Keywords holds the multilingual word sets used by the heuristics.
type Keywords struct {
	Title         []string          `yaml:"title"`
	Author        []string          `yaml:"author"`
	Price         []string          `yaml:"price"`
	Publisher     []string          `yaml:"publisher"`
	Description   []string          `yaml:"description"`
	Code          []string          `yaml:"code"`
	Stock         []string          `yaml:"stock"`
	CurrencyUnits []string          `yaml:"currency_units"`
	Formats       map[string]string `yaml:"formats"`
	Availability  struct {
		Available   []string `yaml:"available"`
		Unavailable []string `yaml:"unavailable"`
	} `yaml:"availability"`
}

// DefaultKeywords returns the embedded word sets.
func DefaultKeywords() *Keywords {
	kw, err := parseKeywords(defaultKeywords)
	if err != nil {
		panic(fmt.Sprintf("embedded keywords are invalid: %v", err))
	}
	return kw
}

// LoadKeywords reads word sets from path, or the embedded defaults when path is empty.
func LoadKeywords(path string) (*Keywords, error) {
	if path == "" {
		return DefaultKeywords(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}
	return parseKeywords(data)
}

func parseKeywords(data []byte) (*Keywords, error) {
	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return nil, fmt.Errorf("failed to parse keywords: %w", err)
	}
	if len(kw.Title) == 0 || len(kw.Price) == 0 || len(kw.Code) == 0 {
		return nil, fmt.Errorf("keywords must define title, price and code word sets")
	}
	return &kw, nil
}

// ClassOrIDContains builds a selector group matching elements whose class or
// id contains any of the words.
func ClassOrIDContains(words []string) string {
	parts := make([]string, 0, len(words)*2)
	for _, w := range words {
		parts = append(parts, fmt.Sprintf("[class*='%s']", w), fmt.Sprintf("[id*='%s']", w))
	}
	return strings.Join(parts, ",")
}

// CurrencyPattern matches own text ending a price with two decimals and a currency unit.
func (k *Keywords) CurrencyPattern() *regexp.Regexp {
	units := make([]string, 0, len(k.CurrencyUnits))
	for _, u := range k.CurrencyUnits {
		units = append(units, regexp.QuoteMeta(u))
	}
	return regexp.MustCompile(`(?i)[.,][0-9]{2}\s*(` + strings.Join(units, "|") + `)`)
}

// CoerceAvailability maps a stock text onto an availability value.
func (k *Keywords) CoerceAvailability(text string) models.Availability {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return models.AvailabilityUnknown
	}
	// unavailable phrases first: "indisponibil" contains "disponibil"
	for _, phrase := range k.Availability.Unavailable {
		if strings.Contains(text, phrase) {
			return models.AvailabilityUnavailable
		}
	}
	for _, phrase := range k.Availability.Available {
		if strings.Contains(text, phrase) {
			return models.AvailabilityAvailable
		}
	}
	return models.AvailabilityUnknown
}

// CoerceFormat returns the canonical format named by any word of value.
func (k *Keywords) CoerceFormat(value string) string {
	for _, word := range strings.FieldsFunc(strings.ToLower(value), isNotWordRune) {
		if format, ok := k.Formats[word]; ok {
			return format
		}
	}
	return ""
}

// KeyMatches reports whether any token of an attribute key is in words.
func KeyMatches(key string, words []string) bool {
	for _, token := range Separators.Split(strings.ToLower(key), -1) {
		for _, w := range words {
			if token == w {
				return true
			}
		}
	}
	return false
}

var leadingLetters = regexp.MustCompile(`^[ a-zA-Z]*`)

// CoerceISBN strips a leading label such as "ISBN " from a code value.
func CoerceISBN(value string) string {
	return strings.TrimSpace(leadingLetters.ReplaceAllString(value, ""))
}

func isNotWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
