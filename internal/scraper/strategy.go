package scraper

import (
	"log/slog"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"github.com/maltedev/book-price-scraper/internal/price"
)

// SelectExtractor picks the extractor for a whole job. A stored wrapper wins
// over any requested strategy.
func SelectExtractor(job *models.Job, wrapper *models.Wrapper, keywords *parser.Keywords, prices *price.Parser, logger *slog.Logger) parser.Extractor {
	switch {
	case wrapper != nil:
		return parser.NewWrapperExtractor(wrapper, keywords, prices, logger)
	case job.Strategy == models.StrategySemantic:
		return parser.NewSemanticExtractor(keywords, prices, logger)
	default:
		return parser.NewHeuristicExtractor(keywords, prices, logger)
	}
}

// Classify maps an extraction result onto a page type.
func Classify(result parser.Result) models.PageType {
	if !result.Book.IsValid() {
		return models.PageTypeJunk
	}
	if result.PricePoint == nil {
		return models.PageTypeUnavailable
	}
	return models.PageTypeProduct
}
