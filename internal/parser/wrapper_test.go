package parser

import (
	"log/slog"
	"testing"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/price"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wrappedPage = `<html><head><title>Bird Box</title></head><body>
	<div id="product">
		<h1 class="pname big">Bird Box. Orbeste</h1>
		<a class="author-link" href="/autor/josh-malerman">Josh Malerman</a>
		<span class="amount">34,90 lei</span>
		<img class="cover" src="/static/bird-box.jpg">
		<span class="badge" data-stock="In stoc">!</span>
		<ul class="specs">
			<li>Editura: Nemira</li>
			<li>ISBN: 978-606-43-0123-4</li>
			<li>Tip: Paperback</li>
		</ul>
	</div>
</body></html>`

func newWrapper() *models.Wrapper {
	w := models.NewWrapper("cartepedia.ro")
	w.Set(models.SelectorTitle, models.Selector{Query: ".pname.big"})
	w.Set(models.SelectorAuthors, models.Selector{Query: ".author-link"})
	w.Set(models.SelectorPrice, models.Selector{Query: ".amount"})
	w.Set(models.SelectorAttributes, models.Selector{Query: ".specs>li"})
	w.Set(models.SelectorImage, models.Selector{Query: "img.cover", Kind: models.KindImage})
	w.Set(models.SelectorAvailability, models.Selector{Query: ".badge", Kind: models.KindAttribute, Target: "data-stock"})
	return w
}

func newTestWrapperExtractor(t *testing.T, w *models.Wrapper) *WrapperExtractor {
	t.Helper()
	prices, err := price.NewParser("ro-RO")
	require.NoError(t, err)
	return NewWrapperExtractor(w, DefaultKeywords(), prices, slog.Default())
}

func TestWrapperExtractor_Extract(t *testing.T) {
	e := newTestWrapperExtractor(t, newWrapper())

	doc, err := NewDocument(wrappedPage, "https://www.cartepedia.ro/carte/bird-box")
	require.NoError(t, err)

	result := e.Extract(doc)
	book := result.Book

	assert.Equal(t, "Bird Box. Orbeste", book.Title)
	assert.Equal(t, "Josh Malerman", book.Authors)
	assert.Equal(t, "9786064301234", book.ISBN)
	assert.Equal(t, "Nemira", book.Publisher)
	assert.Equal(t, "paperback", book.Format)
	assert.Equal(t, "https://www.cartepedia.ro/static/bird-box.jpg", book.ImageURL)
	assert.Equal(t, models.AvailabilityAvailable, book.Availability)
	assert.Equal(t, "", book.Description)

	require.NotNil(t, result.PricePoint)
	assert.True(t, decimal.RequireFromString("34.90").Equal(result.PricePoint.NominalValue))
	assert.Equal(t, "www.cartepedia.ro", result.PricePoint.Site)
	assert.Equal(t, "Bird Box", result.PricePoint.PageTitle)
}

func TestWrapperExtractor_MissingSelectorsYieldEmptyFields(t *testing.T) {
	w := models.NewWrapper("example.ro")
	w.Set(models.SelectorTitle, models.Selector{Query: ".does-not-exist"})
	w.Set(models.SelectorDescription, models.Selector{Query: "p[unclosed"})
	e := newTestWrapperExtractor(t, w)

	doc, err := NewDocument(wrappedPage, "https://example.ro/x")
	require.NoError(t, err)

	result := e.Extract(doc)
	assert.Equal(t, "", result.Book.Title)
	assert.Equal(t, "", result.Book.Description)
	assert.Equal(t, "", result.Book.ISBN)
	assert.Nil(t, result.PricePoint)
	assert.Empty(t, result.Attributes)
}

func TestWrapperExtractor_Kinds(t *testing.T) {
	w := models.NewWrapper("example.ro")
	w.Set(models.SelectorTitle, models.Selector{Query: ".author-link", Kind: models.KindLink})
	w.Set(models.SelectorImage, models.Selector{Query: "meta[property='og:image']", Kind: models.KindImage})
	e := newTestWrapperExtractor(t, w)

	doc, err := NewDocument(`<html><head><meta property="og:image" content="https://cdn.example.ro/c.jpg"></head>
		<body><a class="author-link" href="/a/b">x</a></body></html>`, "https://example.ro/carte/1")
	require.NoError(t, err)

	result := e.Extract(doc)
	assert.Equal(t, "https://example.ro/a/b", result.Book.Title)
	assert.Equal(t, "https://cdn.example.ro/c.jpg", result.Book.ImageURL)
}
