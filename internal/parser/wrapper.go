package parser

import (
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/price"
)

// WrapperExtractor replays a site's induced selectors. Missing selectors or
// selectors without a match leave the field empty.
type WrapperExtractor struct {
	wrapper  *models.Wrapper
	keywords *Keywords
	prices   *price.Parser
	logger   *slog.Logger
	now      func() time.Time

	matchers map[string]cascadia.Selector
}

func NewWrapperExtractor(wrapper *models.Wrapper, keywords *Keywords, prices *price.Parser, logger *slog.Logger) *WrapperExtractor {
	w := &WrapperExtractor{
		wrapper:  wrapper,
		keywords: keywords,
		prices:   prices,
		logger:   logger.With("component", "wrapper_extractor", "site", wrapper.Site),
		now:      time.Now,
		matchers: make(map[string]cascadia.Selector),
	}

	for name, s := range wrapper.Selectors {
		if s.Query == "" {
			continue
		}
		m, err := cascadia.Compile(s.Query)
		if err != nil {
			w.logger.Warn("ignoring invalid selector", "name", name, "query", s.Query, "error", err)
			continue
		}
		w.matchers[name] = m
	}

	return w
}

func (w *WrapperExtractor) Name() string {
	return "wrapper"
}

func (w *WrapperExtractor) Extract(doc *goquery.Document) Result {
	attributes := w.ExtractAttributes(doc)

	book := &models.Book{
		Title:        w.value(doc, models.SelectorTitle),
		Description:  w.value(doc, models.SelectorDescription),
		ImageURL:     w.value(doc, models.SelectorImage),
		Availability: w.keywords.CoerceAvailability(w.value(doc, models.SelectorAvailability)),
		Authors:      w.valueOrAttribute(doc, models.SelectorAuthors, attributes, w.keywords.Author),
		Publisher:    w.valueOrAttribute(doc, models.SelectorPublisher, attributes, w.keywords.Publisher),
	}

	if isbn, ok := w.lookup(doc, models.SelectorISBN); ok {
		book.SetISBN(CoerceISBN(isbn))
	} else {
		for _, key := range sortedKeys(attributes) {
			if KeyMatches(key, w.keywords.Code) {
				book.SetISBN(CoerceISBN(attributes[key]))
				break
			}
		}
	}

	if format, ok := w.lookup(doc, models.SelectorFormat); ok {
		book.Format = w.keywords.CoerceFormat(format)
	} else {
		for _, key := range sortedKeys(attributes) {
			if format := w.keywords.CoerceFormat(attributes[key]); format != "" {
				book.Format = format
				break
			}
		}
	}

	book.RefreshKeywords()

	pp := w.ExtractPricePoint(doc)
	if pp != nil {
		pp.Availability = book.Availability
	}

	return Result{Book: book, PricePoint: pp, Attributes: attributes}
}

// ExtractAttributes splits every element matched by the attributes selector.
func (w *WrapperExtractor) ExtractAttributes(doc *goquery.Document) map[string]string {
	attributes := make(map[string]string)
	m, ok := w.matchers[models.SelectorAttributes]
	if !ok {
		return attributes
	}

	doc.FindMatcher(m).Each(func(_ int, el *goquery.Selection) {
		if key, value, ok := splitAttribute(normText(el.Text())); ok {
			attributes[key] = value
		}
	})
	return attributes
}

func (w *WrapperExtractor) ExtractPricePoint(doc *goquery.Document) *models.PricePoint {
	text, ok := w.lookup(doc, models.SelectorPrice)
	if !ok {
		return nil
	}

	pp, err := w.prices.PricePoint(text, SourceURL(doc), w.now())
	if err != nil {
		w.logger.Warn("failed to parse price tag", "text", text, "error", err)
		return nil
	}
	pp.PageTitle = PageTitle(doc)
	return pp
}

func (w *WrapperExtractor) value(doc *goquery.Document, name string) string {
	v, _ := w.lookup(doc, name)
	return v
}

func (w *WrapperExtractor) valueOrAttribute(doc *goquery.Document, name string, attributes map[string]string, words []string) string {
	if v, ok := w.lookup(doc, name); ok {
		return v
	}
	for _, key := range sortedKeys(attributes) {
		if KeyMatches(key, words) {
			return attributes[key]
		}
	}
	return ""
}

// lookup reads the named selector's first match according to its kind. The
// boolean reports whether the wrapper defines the selector at all.
func (w *WrapperExtractor) lookup(doc *goquery.Document, name string) (string, bool) {
	s, ok := w.wrapper.Selector(name)
	if !ok {
		return "", false
	}
	m, ok := w.matchers[name]
	if !ok {
		return "", true
	}

	el := doc.FindMatcher(m).First()
	if el.Length() == 0 {
		return "", true
	}

	switch s.Kind {
	case models.KindLink:
		return absURL(doc, nonEmptyAttr(el, "href")), true
	case models.KindImage:
		src := nonEmptyAttr(el, "src")
		if src == "" {
			src = nonEmptyAttr(el, "content")
		}
		return absURL(doc, src), true
	case models.KindAttribute:
		return strings.TrimSpace(nonEmptyAttr(el, s.Target)), true
	default:
		return normText(el.Text()), true
	}
}
