package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/book-price-scraper/internal/models"
	"golang.org/x/net/html"
)

// Result is what an extractor recovers from a single page.
type Result struct {
	Book       *models.Book
	PricePoint *models.PricePoint
	Attributes map[string]string
}

// Extractor turns a product page into a book candidate.
type Extractor interface {
	Name() string
	Extract(doc *goquery.Document) Result
}

// NonContent matches elements whose text is code or markup, never page copy.
const NonContent = "script, style, noscript, template"

// NewDocument parses html and records pageURL so relative links can be
// resolved. Non-content elements are removed so text scans only see copy.
func NewDocument(body, pageURL string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	StripNonContent(doc)
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page url: %w", err)
		}
		doc.Url = u
	}
	return doc, nil
}

// StripNonContent removes script, style, noscript and template elements.
func StripNonContent(doc *goquery.Document) {
	doc.Find(NonContent).Remove()
}

// PageTitle returns the text of the document's <title>.
func PageTitle(doc *goquery.Document) string {
	return normText(doc.Find("title").First().Text())
}

// CanonicalURL returns the absolute canonical link of the page, if declared.
func CanonicalURL(doc *goquery.Document) string {
	href, ok := doc.Find("link[rel='canonical']").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return absURL(doc, strings.TrimSpace(href))
}

// SourceURL is the canonical URL, falling back to the URL the page was fetched from.
func SourceURL(doc *goquery.Document) string {
	if canonical := CanonicalURL(doc); canonical != "" {
		return canonical
	}
	if doc.Url != nil {
		return doc.Url.String()
	}
	return ""
}

func absURL(doc *goquery.Document, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if doc.Url == nil || u.IsAbs() {
		return u.String()
	}
	return doc.Url.ResolveReference(u).String()
}

func normText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ownText concatenates the element's direct text children.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
				b.WriteByte(' ')
			}
		}
	}
	return normText(b.String())
}

// firstText returns the trimmed text of the first element matching query.
func firstText(sel *goquery.Selection, query string) string {
	return normText(sel.Find(query).First().Text())
}

func nonEmptyAttr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}
