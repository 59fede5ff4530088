package induction

import (
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"golang.org/x/net/html"
)

const (
	bookCardSelector     = "[class*='produ']:has(img):has(a)"
	defaultImageSelector = "img[alt]:not([alt='']),meta[property*='image']"
)

// Generator induces a wrapper from an example product page and optional
// listing ("grid") pages of the same site.
type Generator struct {
	keywords *parser.Keywords
	logger   *slog.Logger
}

func NewGenerator(keywords *parser.Keywords, logger *slog.Logger) *Generator {
	return &Generator{
		keywords: keywords,
		logger:   logger.With("component", "wrapper_generator"),
	}
}

// GenerateWrapper derives field selectors from page. The price and ISBN
// examples are required; the other fields are set only when found. Script
// and style elements are removed from page and grids first.
func (g *Generator) GenerateWrapper(site string, page *goquery.Document, grids ...*goquery.Document) (*models.Wrapper, error) {
	parser.StripNonContent(page)
	for _, grid := range grids {
		parser.StripNonContent(grid)
	}

	wrapper := models.NewWrapper(site)

	optional := []struct {
		name  string
		words []string
	}{
		{models.SelectorTitle, g.keywords.Title},
		{models.SelectorAuthors, g.keywords.Author},
		{models.SelectorDescription, g.keywords.Description},
		{models.SelectorAvailability, g.keywords.Stock},
	}
	for _, field := range optional {
		el := leafKeywordElement(page.Selection, field.words)
		if el == nil {
			continue
		}
		if err := g.set(wrapper, field.name, el, models.KindText); err != nil {
			return nil, err
		}
	}

	priceEl := g.priceElement(page.Selection)
	if priceEl == nil {
		return nil, fmt.Errorf("%w: no price element on example page", ErrExtractionUnsupported)
	}
	if err := g.set(wrapper, models.SelectorPrice, priceEl, models.KindText); err != nil {
		return nil, err
	}

	attributes := attributeElements(page.Selection)
	if attributes == nil {
		return nil, fmt.Errorf("%w: no isbn on example page", ErrExtractionUnsupported)
	}
	if err := g.set(wrapper, models.SelectorAttributes, attributes, models.KindText); err != nil {
		return nil, err
	}

	wrapper.Set(models.SelectorImage, models.Selector{Query: defaultImageSelector, Kind: models.KindImage})

	if len(grids) > 0 {
		cards := bookCards(grids)
		if cards.Length() > 0 {
			if err := g.set(wrapper, models.SelectorBookCard, cards, models.KindLink); err != nil {
				return nil, err
			}
		}
	}

	g.logger.Info("wrapper generated", "site", site, "selectors", len(wrapper.Selectors))
	return wrapper, nil
}

func (g *Generator) set(w *models.Wrapper, name string, el *goquery.Selection, kind models.SelectorKind) error {
	query, err := GenerateSelector(el)
	if err != nil {
		return fmt.Errorf("failed to generate %s selector: %w", name, err)
	}
	w.Set(name, models.Selector{Query: query, Kind: kind})
	return nil
}

// priceElement picks between the keyword match and the currency-text match,
// preferring whichever comes first in the document.
func (g *Generator) priceElement(sel *goquery.Selection) *goquery.Selection {
	byKeyword := leafKeywordElement(sel, g.keywords.Price)

	var byCurrency *goquery.Selection
	pattern := g.keywords.CurrencyPattern()
	sel.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if pattern.MatchString(ownText(el)) {
			byCurrency = el
			return false
		}
		return true
	})

	switch {
	case byKeyword == nil:
		return byCurrency
	case byCurrency == nil, byKeyword.IsSelection(byCurrency):
		return byKeyword
	}

	order := documentOrder(sel)
	if order[byKeyword.Get(0)] <= order[byCurrency.Get(0)] {
		return byKeyword
	}
	return byCurrency
}

// leafKeywordElement returns the first element whose class or id contains a
// word, skipping containers of other matches.
func leafKeywordElement(sel *goquery.Selection, words []string) *goquery.Selection {
	query := parser.ClassOrIDContains(words)
	matches := sel.Find(query)
	if matches.Length() == 0 {
		return nil
	}

	leaves := matches.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return el.Find(query).Length() == 0
	})
	if leaves.Length() == 0 {
		return nil
	}
	return leaves.First()
}

// attributeElements locates the ISBN element and returns the sibling set
// forming the attribute block.
func attributeElements(sel *goquery.Selection) *goquery.Selection {
	var isbnEl *goquery.Selection
	sel.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		for _, m := range parser.ISBNPattern.FindAllString(ownText(el), -1) {
			if n := len(models.NormalizeISBN(m)); n == 10 || n == 13 {
				isbnEl = el
				return false
			}
		}
		return true
	})
	if isbnEl == nil {
		return nil
	}

	anchor := isbnEl
	if className(isbnEl) != "" && isbnEl.Parent().Length() > 0 {
		anchor = isbnEl.Parent()
	}
	if anchor.Parent().Length() == 0 {
		return anchor
	}
	return anchor.Parent().Children()
}

// bookCards collects the leaf-most product cards across the grid pages.
func bookCards(grids []*goquery.Document) *goquery.Selection {
	var cards *goquery.Selection
	for _, grid := range grids {
		found := grid.Find(bookCardSelector).FilterFunction(func(_ int, el *goquery.Selection) bool {
			return el.Find(bookCardSelector).Length() == 0
		})
		if cards == nil {
			cards = found
		} else {
			cards = cards.AddSelection(found)
		}
	}
	if cards == nil {
		return &goquery.Selection{}
	}
	return cards
}

func documentOrder(sel *goquery.Selection) map[*html.Node]int {
	order := make(map[*html.Node]int)
	sel.Find("*").Each(func(i int, el *goquery.Selection) {
		order[el.Get(0)] = i
	})
	return order
}

func ownText(sel *goquery.Selection) string {
	var text string
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				text += c.Data + " "
			}
		}
	}
	return text
}
