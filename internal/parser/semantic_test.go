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

const microdataPage = `<html><head><title>Povestiri</title></head><body>
<div itemscope itemtype="http://schema.org/Book">
	<h1 itemprop="name">Povestiri</h1>
	<span itemprop="author">Ion Creanga</span>
	<meta itemprop="isbn" content="978-973-46-1234-5">
	<link itemprop="bookFormat" href="http://schema.org/Hardcover">
	<img src="/cover.jpg">
	<div itemprop="offers" itemscope itemtype="http://schema.org/Offer">
		<meta itemprop="price" content="29.99">
		<link itemprop="availability" href="http://schema.org/InStock">
	</div>
</div>
</body></html>`

func TestSemanticExtractor_Extract(t *testing.T) {
	prices, err := price.NewParser("ro-RO")
	require.NoError(t, err)
	e := NewSemanticExtractor(DefaultKeywords(), prices, slog.Default())

	doc, err := NewDocument(microdataPage, "https://www.libris.ro/povestiri")
	require.NoError(t, err)

	result := e.Extract(doc)
	book := result.Book

	assert.Equal(t, "Povestiri", book.Title)
	assert.Equal(t, "Ion Creanga", book.Authors)
	assert.Equal(t, "9789734612345", book.ISBN)
	assert.Equal(t, "hardcover", book.Format)
	assert.Equal(t, "https://www.libris.ro/cover.jpg", book.ImageURL)
	assert.Equal(t, models.AvailabilityAvailable, book.Availability)

	require.NotNil(t, result.PricePoint)
	assert.True(t, decimal.RequireFromString("29.99").Equal(result.PricePoint.NominalValue))
	assert.Equal(t, models.AvailabilityAvailable, result.PricePoint.Availability)
}

func TestSemanticExtractor_NoMicrodata(t *testing.T) {
	prices, err := price.NewParser("ro-RO")
	require.NoError(t, err)
	e := NewSemanticExtractor(DefaultKeywords(), prices, slog.Default())

	doc, err := NewDocument(`<html><body><p>plain</p></body></html>`, "https://www.libris.ro/x")
	require.NoError(t, err)

	result := e.Extract(doc)
	assert.False(t, result.Book.IsValid())
	assert.Nil(t, result.PricePoint)
}
