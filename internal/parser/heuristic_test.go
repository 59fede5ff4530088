package parser

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/price"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookPage = `<html>
<head>
	<title>Inima omului - Carturesti</title>
	<meta property="og:title" content="Inima omului">
	<meta property="og:image" content="/img/prod/171704655-0.jpeg">
	<link rel="canonical" href="https://carturesti.ro/carte/inima-omului-171704655">
</head>
<body>
	<div class="header"><a href="/">Acasa</a></div>
	<div class="product-info">
		<h1 class="titlu-produs">Inima omului</h1>
		<div class="autorProdus">Jon Kalman Stefansson</div>
		<div class="pret-produs">Pret: 41,95 lei</div>
		<div class="stoc">In stoc</div>
		<div class="detalii">
			<p>Editura: Polirom</p>
			<p>Format: Paperback</p>
			<p>Cod: 9789734671234</p>
			<p>Pagini: 320</p>
		</div>
		<div class="descriere">O poveste despre oameni si mare.</div>
		<img src="/img/logo.png" alt="">
		<img src="/img/cover.jpg" alt="Inima omului">
	</div>
</body>
</html>`

func newTestHeuristic(t *testing.T) *HeuristicExtractor {
	t.Helper()
	prices, err := price.NewParser("ro-RO")
	require.NoError(t, err)
	h := NewHeuristicExtractor(DefaultKeywords(), prices, slog.Default())
	h.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	return h
}

func TestHeuristicExtractor_ExtractAttributes(t *testing.T) {
	h := newTestHeuristic(t)

	tests := []struct {
		name     string
		html     string
		expected map[string]string
	}{
		{
			name: "isbn cell with labelled siblings",
			html: `<div><span>Titlu: X</span><span>Autor: Y</span><span>Cod: 9781234567890</span></div>`,
			expected: map[string]string{
				"Cod":   "9781234567890",
				"Titlu": "X",
				"Autor": "Y",
			},
		},
		{
			name: "isolated isbn leaf climbs to its row",
			html: `<div class="row"><span>Format: Hardcover</span><span>ISBN: <b>9781234567890</b></span></div>`,
			expected: map[string]string{
				"Format": "Hardcover",
				"ISBN":   "9781234567890",
			},
		},
		{
			name: "list items are expanded",
			html: `<div class="specs"><p>ISBN: 978-606-43-0123-4</p><ul><li>Editura: Nemira</li><li>Pagini</li></ul></div>`,
			expected: map[string]string{
				"ISBN":    "978-606-43-0123-4",
				"Editura": "Nemira",
				"Pagini":  "Pagini",
			},
		},
		{
			name: "short digit runs are ignored",
			html: `<div><p>Telefon: 0213 456 78</p><p>Pagini: 320</p></div>`,
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewDocument(tt.html, "https://example.ro/carte")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h.ExtractAttributes(doc.Selection))
		})
	}
}

func TestHeuristicExtractor_Extract(t *testing.T) {
	h := newTestHeuristic(t)

	doc, err := NewDocument(bookPage, "https://carturesti.ro/carte/inima-omului-171704655?p=1")
	require.NoError(t, err)

	result := h.Extract(doc)
	book := result.Book
	require.NotNil(t, book)

	assert.Equal(t, "Inima omului", book.Title)
	assert.Equal(t, "Jon Kalman Stefansson", book.Authors)
	assert.Equal(t, "9789734671234", book.ISBN)
	assert.Equal(t, "Polirom", book.Publisher)
	assert.Equal(t, "paperback", book.Format)
	assert.Equal(t, "https://carturesti.ro/img/prod/171704655-0.jpeg", book.ImageURL)
	assert.Equal(t, "O poveste despre oameni si mare.", book.Description)
	assert.Equal(t, models.AvailabilityAvailable, book.Availability)
	assert.Contains(t, book.Keywords, "polirom")
	assert.Contains(t, book.Keywords, "inima")

	pp := result.PricePoint
	require.NotNil(t, pp)
	assert.True(t, decimal.RequireFromString("41.95").Equal(pp.NominalValue))
	assert.Equal(t, "RON", pp.Currency)
	assert.Equal(t, "https://carturesti.ro/carte/inima-omului-171704655", pp.URL)
	assert.Equal(t, "carturesti.ro", pp.Site)
	assert.Equal(t, "Inima omului - Carturesti", pp.PageTitle)
	assert.Equal(t, models.AvailabilityAvailable, pp.Availability)
}

func TestHeuristicExtractor_ExtractTitle(t *testing.T) {
	h := newTestHeuristic(t)

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"og title", `<html><head><meta property="og:title" content="OG"><title>T</title></head></html>`, "OG"},
		{"title tag", `<html><head><title> Page  title </title></head></html>`, "Page title"},
		{"keyword class", `<html><body><h2 class="product-name">Named</h2></body></html>`, "Named"},
		{"nothing", `<html><body><p>x</p></body></html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewDocument(tt.html, "")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h.ExtractTitle(doc.Selection))
		})
	}
}

func TestHeuristicExtractor_ExtractImageURL(t *testing.T) {
	h := newTestHeuristic(t)

	doc, err := NewDocument(`<body><img src="a.png" alt=""><img src="/b.png" alt="cover"></body>`, "https://libris.ro/carti/x")
	require.NoError(t, err)
	assert.Equal(t, "https://libris.ro/b.png", h.ExtractImageURL(doc))

	doc, err = NewDocument(`<body><img src="a.png"></body>`, "https://libris.ro/carti/x")
	require.NoError(t, err)
	assert.Equal(t, "", h.ExtractImageURL(doc))
}

func TestHeuristicExtractor_ExtractAvailability(t *testing.T) {
	h := newTestHeuristic(t)

	tests := []struct {
		html     string
		expected models.Availability
	}{
		{`<span class="stoc">În stoc</span>`, models.AvailabilityAvailable},
		{`<span id="stock-label">Stoc limitat</span>`, models.AvailabilityAvailable},
		{`<span class="stoc">Indisponibil</span>`, models.AvailabilityUnavailable},
		{`<span class="stoc">Disponibil la comanda</span>`, models.AvailabilityUnavailable},
		{`<span class="stoc">?</span>`, models.AvailabilityUnknown},
		{`<span>In stoc</span>`, models.AvailabilityUnknown},
	}

	for _, tt := range tests {
		doc, err := NewDocument(tt.html, "")
		require.NoError(t, err)
		assert.Equal(t, tt.expected, h.ExtractAvailability(doc.Selection), tt.html)
	}
}

func TestHeuristicExtractor_ExtractPricePoint(t *testing.T) {
	h := newTestHeuristic(t)

	t.Run("currency text before keyword element", func(t *testing.T) {
		doc, err := NewDocument(`<body><span>39,00 lei</span><div class="price">45,00 lei</div></body>`, "https://www.librariilealexandria.ro/x")
		require.NoError(t, err)
		pp := h.ExtractPricePoint(doc)
		require.NotNil(t, pp)
		assert.True(t, decimal.NewFromInt(39).Equal(pp.NominalValue))
		assert.Equal(t, "www.librariilealexandria.ro", pp.Site)
	})

	t.Run("unparsable price yields nothing", func(t *testing.T) {
		doc, err := NewDocument(`<body><div class="pret">Pret: la cerere</div></body>`, "https://example.ro/x")
		require.NoError(t, err)
		assert.Nil(t, h.ExtractPricePoint(doc))
	})

	t.Run("no url yields nothing", func(t *testing.T) {
		doc, err := NewDocument(`<body><div class="pret">12,50 lei</div></body>`, "")
		require.NoError(t, err)
		assert.Nil(t, h.ExtractPricePoint(doc))
	})

	t.Run("no price element", func(t *testing.T) {
		doc, err := NewDocument(`<body><p>nothing here</p></body>`, "https://example.ro/x")
		require.NoError(t, err)
		assert.Nil(t, h.ExtractPricePoint(doc))
	})
}

func TestHeuristicExtractor_IgnoresScriptText(t *testing.T) {
	h := newTestHeuristic(t)

	tests := []struct {
		name   string
		anchor string
		inject string
	}{
		{
			name:   "timestamp in head script",
			anchor: "</title>",
			inject: `</title><script>window.dataLayer=[{"ts":1714550400000}];</script>`,
		},
		{
			name:   "phone number in body script",
			anchor: "<body>",
			inject: `<body><script>var phone="0213456789"</script>`,
		},
		{
			name:   "price json in head script",
			anchor: "</title>",
			inject: `</title><script>var product={"value":"39.99 lei","id":7}</script>`,
		},
		{
			name:   "style and noscript",
			anchor: "<body>",
			inject: `<body><style>.x:after{content:"9781234567897 12,00 lei"}</style><noscript>0213456789 5,00 lei</noscript>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := strings.Replace(bookPage, tt.anchor, tt.inject, 1)
			require.NotEqual(t, bookPage, page)

			doc, err := NewDocument(page, "https://carturesti.ro/carte/inima-omului-171704655")
			require.NoError(t, err)

			attributes := h.ExtractAttributes(doc.Selection)
			assert.Equal(t, "9789734671234", attributes["Cod"])

			result := h.Extract(doc)
			assert.Equal(t, "9789734671234", result.Book.ISBN)
			require.NotNil(t, result.PricePoint)
			assert.True(t, decimal.RequireFromString("41.95").Equal(result.PricePoint.NominalValue))
		})
	}
}

func TestHeuristicExtractor_JunkPage(t *testing.T) {
	h := newTestHeuristic(t)

	doc, err := NewDocument(`<html><head><title>Contact</title></head><body><p>Suna-ne!</p></body></html>`, "https://example.ro/contact")
	require.NoError(t, err)

	result := h.Extract(doc)
	assert.False(t, result.Book.IsValid())
	assert.Nil(t, result.PricePoint)
}
