package browser

import (
	"testing"
	"time"

	"github.com/maltedev/book-price-scraper/internal/fetch"
	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, fetch.DefaultUserAgent, opts.UserAgent)
	assert.Equal(t, "ro-RO", opts.Locale)
	assert.Contains(t, opts.AcceptLanguage, "ro-RO")
}

func TestClose_NilSafe(t *testing.T) {
	b := &Browser{}
	assert.NoError(t, b.Close())
}
