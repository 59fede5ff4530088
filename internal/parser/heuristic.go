package parser

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/price"
	"golang.org/x/net/html"
)

// ISBNPattern matches ISBN-shaped runs of digits with optional separators.
// Candidates must still be checked for 10 or 13 digits.
var ISBNPattern = regexp.MustCompile(`\d+[-\s]?\d+[-\s]?\d+[-\s]?\d*[-\s]?[\dxX]`)

// HeuristicExtractor extracts books from pages with no prior knowledge of
// their markup, using the keyword sets and an ISBN-anchored attribute block.
type HeuristicExtractor struct {
	keywords *Keywords
	prices   *price.Parser
	logger   *slog.Logger
	now      func() time.Time

	currency *regexp.Regexp
}

func NewHeuristicExtractor(keywords *Keywords, prices *price.Parser, logger *slog.Logger) *HeuristicExtractor {
	return &HeuristicExtractor{
		keywords: keywords,
		prices:   prices,
		logger:   logger.With("component", "heuristic_extractor"),
		now:      time.Now,
		currency: keywords.CurrencyPattern(),
	}
}

func (h *HeuristicExtractor) Name() string {
	return "heuristic"
}

func (h *HeuristicExtractor) Extract(doc *goquery.Document) Result {
	attributes := h.ExtractAttributes(doc.Selection)

	book := &models.Book{
		Title:        h.ExtractTitle(doc.Selection),
		Authors:      h.ExtractAuthors(doc.Selection, attributes),
		ImageURL:     h.ExtractImageURL(doc),
		Description:  h.ExtractDescription(doc.Selection),
		Availability: h.ExtractAvailability(doc.Selection),
		Format:       h.ExtractFormat(attributes),
		Publisher:    h.ExtractPublisher(attributes),
	}
	book.SetISBN(h.ExtractISBN(attributes))
	book.RefreshKeywords()

	pp := h.ExtractPricePoint(doc)
	if pp != nil {
		pp.Availability = book.Availability
	}

	return Result{Book: book, PricePoint: pp, Attributes: attributes}
}

func (h *HeuristicExtractor) ExtractTitle(sel *goquery.Selection) string {
	if title := nonEmptyAttr(sel.Find("meta[property='og:title']").First(), "content"); title != "" {
		return title
	}
	if title := firstText(sel, "title"); title != "" {
		return title
	}
	return firstText(sel, ClassOrIDContains(h.keywords.Title))
}

func (h *HeuristicExtractor) ExtractAuthors(sel *goquery.Selection, attributes map[string]string) string {
	if authors := firstText(sel, ClassOrIDContains(h.keywords.Author)); authors != "" {
		return authors
	}
	for _, key := range sortedKeys(attributes) {
		if KeyMatches(key, h.keywords.Author) {
			return attributes[key]
		}
	}
	return ""
}

func (h *HeuristicExtractor) ExtractImageURL(doc *goquery.Document) string {
	if image := nonEmptyAttr(doc.Find("meta[property*='image']").First(), "content"); image != "" {
		return absURL(doc, image)
	}

	var src string
	doc.Find("img[alt]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if nonEmptyAttr(img, "alt") == "" {
			return true
		}
		src = absURL(doc, nonEmptyAttr(img, "src"))
		return false
	})
	return src
}

func (h *HeuristicExtractor) ExtractDescription(sel *goquery.Selection) string {
	return firstText(sel, ClassOrIDContains(h.keywords.Description))
}

func (h *HeuristicExtractor) ExtractAvailability(sel *goquery.Selection) models.Availability {
	return h.keywords.CoerceAvailability(firstText(sel, ClassOrIDContains(h.keywords.Stock)))
}

// ExtractAttributes finds the first ISBN on the page and reads its sibling
// elements as a key:value attribute table.
func (h *HeuristicExtractor) ExtractAttributes(sel *goquery.Selection) map[string]string {
	attributes := make(map[string]string)

	for _, match := range ISBNPattern.FindAllString(normText(sel.Text()), -1) {
		isbn := models.NormalizeISBN(match)
		if len(isbn) != 10 && len(isbn) != 13 {
			continue
		}

		anchor := deepestContaining(sel, match)
		if anchor == nil {
			continue
		}

		text := normText(anchor.Text())
		if (text == isbn || text == match) && anchor.Parent().Length() > 0 {
			anchor = anchor.Parent()
		}

		for _, el := range attributeBlock(anchor) {
			key, value, ok := splitAttribute(normText(el.Text()))
			if ok {
				attributes[key] = value
			}
		}
		break
	}

	return attributes
}

func (h *HeuristicExtractor) ExtractISBN(attributes map[string]string) string {
	for _, key := range sortedKeys(attributes) {
		if KeyMatches(key, h.keywords.Code) {
			return CoerceISBN(attributes[key])
		}
	}
	return ""
}

func (h *HeuristicExtractor) ExtractFormat(attributes map[string]string) string {
	for _, key := range sortedKeys(attributes) {
		if format := h.keywords.CoerceFormat(attributes[key]); format != "" {
			return format
		}
	}
	return ""
}

func (h *HeuristicExtractor) ExtractPublisher(attributes map[string]string) string {
	for _, key := range sortedKeys(attributes) {
		if KeyMatches(key, h.keywords.Publisher) {
			return attributes[key]
		}
	}
	return ""
}

// ExtractPricePoint reads the first price-looking element. Parse failures are
// logged and yield no price point.
func (h *HeuristicExtractor) ExtractPricePoint(doc *goquery.Document) *models.PricePoint {
	el := h.PriceElement(doc.Selection)
	if el == nil {
		return nil
	}

	text := normText(el.Text())
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = strings.TrimSpace(text[i+1:])
	}

	pp, err := h.prices.PricePoint(text, SourceURL(doc), h.now())
	if err != nil {
		h.logger.Warn("failed to parse price tag", "text", text, "error", err)
		return nil
	}
	pp.PageTitle = PageTitle(doc)
	return pp
}

// PriceElement returns the first element in document order whose own text
// looks like an amount in the local currency or whose class or id names a price.
func (h *HeuristicExtractor) PriceElement(sel *goquery.Selection) *goquery.Selection {
	byKeyword := nodeSet(sel.Find(ClassOrIDContains(h.keywords.Price)))

	var found *goquery.Selection
	sel.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if byKeyword[el.Get(0)] || h.currency.MatchString(ownText(el)) {
			found = el
			return false
		}
		return true
	})
	return found
}

// deepestContaining returns the last element in document order whose text
// contains needle; descendants follow their ancestors, so it is the deepest.
func deepestContaining(sel *goquery.Selection, needle string) *goquery.Selection {
	needle = strings.ToLower(needle)
	var found *goquery.Selection
	sel.Find("*").Each(func(_ int, el *goquery.Selection) {
		if strings.Contains(strings.ToLower(normText(el.Text())), needle) {
			found = el
		}
	})
	return found
}

// attributeBlock returns el and its siblings in document order, with lists
// expanded into their items.
func attributeBlock(el *goquery.Selection) []*goquery.Selection {
	members := el
	if el.Parent().Length() > 0 {
		members = el.Parent().Children()
	}

	var block []*goquery.Selection
	members.Each(func(_ int, member *goquery.Selection) {
		if goquery.NodeName(member) == "ul" {
			member.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				block = append(block, li)
			})
			return
		}
		block = append(block, member)
	})
	return block
}

// splitAttribute splits on the first colon. Text without one is its own key and value.
func splitAttribute(text string) (string, string, bool) {
	if text == "" {
		return "", "", false
	}
	key, value, found := strings.Cut(text, ":")
	if !found {
		return text, text, true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func nodeSet(sel *goquery.Selection) map[*html.Node]bool {
	set := make(map[*html.Node]bool, sel.Length())
	for _, n := range sel.Nodes {
		set[n] = true
	}
	return set
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
