package parser

import (
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/price"
)

// SemanticExtractor reads schema.org Book microdata.
type SemanticExtractor struct {
	keywords *Keywords
	prices   *price.Parser
	logger   *slog.Logger
	now      func() time.Time
}

func NewSemanticExtractor(keywords *Keywords, prices *price.Parser, logger *slog.Logger) *SemanticExtractor {
	return &SemanticExtractor{
		keywords: keywords,
		prices:   prices,
		logger:   logger.With("component", "semantic_extractor"),
		now:      time.Now,
	}
}

func (s *SemanticExtractor) Name() string {
	return "semantic"
}

func (s *SemanticExtractor) Extract(doc *goquery.Document) Result {
	scope := doc.Find("[itemtype$='Book']").First()
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	book := &models.Book{}
	var priceText, availability string

	scope.Find("[itemprop]").Each(func(_ int, item *goquery.Selection) {
		value := itemValue(doc, item)
		if value == "" {
			return
		}
		switch strings.ToLower(nonEmptyAttr(item, "itemprop")) {
		case "name", "title":
			if book.Title == "" {
				book.Title = value
			}
		case "author":
			if book.Authors == "" {
				book.Authors = value
			}
		case "isbn":
			book.SetISBN(CoerceISBN(value))
		case "publisher":
			if book.Publisher == "" {
				book.Publisher = value
			}
		case "bookformat":
			book.Format = s.keywords.CoerceFormat(value[strings.LastIndex(value, "/")+1:])
		case "description":
			book.Description = value
		case "image":
			book.ImageURL = value
		case "price":
			priceText = value
		case "availability":
			availability = value[strings.LastIndex(value, "/")+1:]
		}
	})

	if book.ImageURL == "" {
		book.ImageURL = absURL(doc, nonEmptyAttr(scope.Find("img[src]").First(), "src"))
	}
	book.Availability = s.keywords.CoerceAvailability(availability)
	book.RefreshKeywords()

	var pp *models.PricePoint
	if priceText != "" {
		var err error
		pp, err = s.prices.PricePoint(priceText, SourceURL(doc), s.now())
		if err != nil {
			s.logger.Warn("failed to parse price tag", "text", priceText, "error", err)
			pp = nil
		} else {
			pp.PageTitle = PageTitle(doc)
			pp.Availability = book.Availability
		}
	}

	return Result{Book: book, PricePoint: pp, Attributes: map[string]string{}}
}

func itemValue(doc *goquery.Document, item *goquery.Selection) string {
	if content := nonEmptyAttr(item, "content"); content != "" {
		return content
	}
	switch goquery.NodeName(item) {
	case "img":
		return absURL(doc, nonEmptyAttr(item, "src"))
	case "a", "link":
		return absURL(doc, nonEmptyAttr(item, "href"))
	}
	return normText(item.Text())
}
