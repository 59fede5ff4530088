package induction

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><body>
<h1 class="product-title">Fundatia</h1>
<div class="author-name">Isaac Asimov</div>
<div class="price-box"><span class="product-price">39,90 lei</span></div>
<ul class="product-specs">
	<li>ISBN: 978-606-43-0123-4</li>
	<li>Editura: Paladin</li>
</ul>
<p class="stock-info">In stoc</p>
<div id="description-body">O carte despre viitor.</div>
</body></html>`

const gridPage = `<html><body>
<div class="products">
	<div class="product-card"><a href="/a"><img src="a.jpg"></a></div>
	<div class="product-card"><a href="/b"><img src="b.jpg"></a></div>
</div>
</body></html>`

func newTestGenerator() *Generator {
	return NewGenerator(parser.DefaultKeywords(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateWrapper(t *testing.T) {
	g := newTestGenerator()
	page := mustDoc(t, productPage)

	wrapper, err := g.GenerateWrapper("books.example.ro", page, mustDoc(t, gridPage))
	require.NoError(t, err)
	assert.Equal(t, "books.example.ro", wrapper.Site)

	tests := []struct {
		name string
		want string
	}{
		{models.SelectorTitle, ".product-title"},
		{models.SelectorAuthors, ".author-name"},
		{models.SelectorPrice, ".product-price"},
		{models.SelectorAttributes, ".product-specs"},
		{models.SelectorAvailability, ".stock-info"},
		{models.SelectorDescription, "#description-body"},
		{models.SelectorBookCard, ".product-card"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := wrapper.Selector(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, sel.Query)
		})
	}

	image, ok := wrapper.Selector(models.SelectorImage)
	require.True(t, ok)
	assert.Equal(t, models.KindImage, image.Kind)
}

func TestGenerateWrapper_IgnoresScripts(t *testing.T) {
	page := strings.Replace(productPage, "<html><body>",
		`<html><head><script>fbq('init','1234567890123'); var p="12,00 lei";</script></head><body><script>var phone="0213456789"</script>`, 1)
	require.NotEqual(t, productPage, page)

	wrapper, err := newTestGenerator().GenerateWrapper("books.example.ro", mustDoc(t, page))
	require.NoError(t, err)

	attributes, ok := wrapper.Selector(models.SelectorAttributes)
	require.True(t, ok)
	assert.Equal(t, ".product-specs", attributes.Query)

	price, ok := wrapper.Selector(models.SelectorPrice)
	require.True(t, ok)
	assert.Equal(t, ".product-price", price.Query)
}

func TestGenerateWrapper_NoGridsNoBookCard(t *testing.T) {
	wrapper, err := newTestGenerator().GenerateWrapper("books.example.ro", mustDoc(t, productPage))
	require.NoError(t, err)

	_, ok := wrapper.Selector(models.SelectorBookCard)
	assert.False(t, ok)
}

func TestGenerateWrapper_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"no price", `<div class="info">ISBN 9786064301234</div>`},
		{"no isbn", `<span class="price">10,00 lei</span>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestGenerator().GenerateWrapper("x", mustDoc(t, tt.markup))
			assert.ErrorIs(t, err, ErrExtractionUnsupported)
		})
	}
}

func TestAttributeElements_ClassedISBNUsesParentRow(t *testing.T) {
	doc := mustDoc(t, `<div id="specs">
		<div><span class="value">ISBN 9786064301234</span></div>
		<div><span class="value">Paladin</span></div>
	</div>`)

	els := attributeElements(doc.Selection)
	require.NotNil(t, els)
	assert.Equal(t, 2, els.Length())

	got, err := GenerateSelector(els)
	require.NoError(t, err)
	assert.Equal(t, "#specs>div", got)
}

func TestPriceElement_PrefersEarlierMatch(t *testing.T) {
	g := newTestGenerator()
	doc := mustDoc(t, `<div>
		<span class="old">49,90 lei</span>
		<span class="price-current">39</span>
	</div>`)

	el := g.priceElement(doc.Selection)
	require.NotNil(t, el)
	assert.True(t, el.HasClass("old"))
}
