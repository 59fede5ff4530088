package models

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var isbnSeparators = regexp.MustCompile(`[-\s]`)

// Book is a retail book listing reconciled across pages by its normalized ISBN.
type Book struct {
	ID            string       `json:"id"`
	Title         string       `json:"title,omitempty"`
	Authors       string       `json:"authors,omitempty"`
	ISBN          string       `json:"isbn,omitempty"`
	Keywords      []string     `json:"keywords,omitempty"`
	Description   string       `json:"description,omitempty"`
	Publisher     string       `json:"publisher,omitempty"`
	Format        string       `json:"format,omitempty"`
	ImageURL      string       `json:"image_url,omitempty"`
	Availability  Availability `json:"availability,omitempty"`
	PricePointIDs []string     `json:"price_point_ids,omitempty"`
	BestOffer     *PricePoint  `json:"best_offer,omitempty"`
}

// NormalizeISBN strips hyphens and whitespace.
func NormalizeISBN(isbn string) string {
	return isbnSeparators.ReplaceAllString(isbn, "")
}

func (b *Book) SetISBN(isbn string) {
	b.ISBN = NormalizeISBN(isbn)
}

// IsValid reports whether the book can be reconciled, which requires an ISBN.
func (b *Book) IsValid() bool {
	return b != nil && b.ISBN != ""
}

// RefreshKeywords rebuilds the keyword set from the identifying fields.
func (b *Book) RefreshKeywords() {
	b.Keywords = SplitKeywords(b.Title, b.Authors, b.ISBN, b.Publisher, b.Format)
}

// Merge combines b, the persisted record, with an addition sharing its ISBN.
// Neither input is modified. The result is not commutative for the
// first-non-empty fields.
func (b *Book) Merge(addition *Book) *Book {
	if addition == nil {
		c := *b
		return &c
	}

	merged := &Book{
		ID:           firstNonEmpty(b.ID, addition.ID),
		Title:        firstNonEmpty(b.Title, addition.Title),
		ISBN:         firstNonEmpty(b.ISBN, addition.ISBN),
		Publisher:    firstNonEmpty(b.Publisher, addition.Publisher),
		Format:       firstNonEmpty(b.Format, addition.Format),
		ImageURL:     firstNonEmpty(b.ImageURL, addition.ImageURL),
		Availability: Availability(firstNonEmpty(string(b.Availability), string(addition.Availability))),
		Authors:      longest(b.Authors, addition.Authors),
		Description:  longest(b.Description, addition.Description),
	}

	merged.PricePointIDs = unionOrdered(b.PricePointIDs, addition.PricePointIDs)
	merged.Keywords = SplitKeywords(append(append([]string{}, b.Keywords...), addition.Keywords...)...)

	switch {
	case b.BestOffer == nil:
		merged.BestOffer = addition.BestOffer
	case addition.BestOffer == nil:
		merged.BestOffer = b.BestOffer
	case addition.BestOffer.RetrievedAt.Before(b.BestOffer.RetrievedAt):
		merged.BestOffer = b.BestOffer
	default:
		merged.BestOffer = addition.BestOffer
	}

	// the freshest offer decides current availability
	if merged.BestOffer != nil && merged.BestOffer.Availability != "" {
		merged.Availability = merged.BestOffer.Availability
	}

	return merged
}

// SplitKeywords tokenizes values on whitespace and punctuation and returns the
// sorted set of lowercase tokens with at least three characters.
func SplitKeywords(values ...string) []string {
	seen := make(map[string]struct{})
	for _, v := range values {
		tokens := strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, t := range tokens {
			if len([]rune(t)) < 3 {
				continue
			}
			seen[t] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(seen))
	for k := range seen {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func longest(a, b string) string {
	if len([]rune(b)) > len([]rune(a)) {
		return b
	}
	return a
}

func unionOrdered(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
