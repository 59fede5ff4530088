package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"hyphenated", "978-1234-1093-23", "9781234109323"},
		{"spaces and hyphens", "978 -1234-1093-23", "9781234109323"},
		{"already normalized", "9781234109323", "9781234109323"},
		{"isbn10 with x", "0-306-40615-X", "030640615X"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeISBN(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, NormalizeISBN(got), "normalization must be idempotent")
		})
	}

	assert.Equal(t, NormalizeISBN("978-1234-1093-23"), NormalizeISBN("978 -1234-1093-23"))
}

func TestBook_Merge(t *testing.T) {
	older := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	persisted := &Book{
		ID:            "book-1",
		Title:         "Inima omului",
		Authors:       "Jon Kalman",
		ISBN:          "9786067791234",
		Description:   "short",
		PricePointIDs: []string{"pp-1"},
		Keywords:      []string{"inima", "omului"},
		BestOffer:     &PricePoint{ID: "pp-1", RetrievedAt: older, NominalValue: decimal.NewFromInt(40)},
	}
	addition := &Book{
		Title:         "Inima omului (paperback)",
		Authors:       "Jon Kalman Stefansson",
		ISBN:          "9786067791234",
		Publisher:     "Polirom",
		Description:   "a much longer description",
		PricePointIDs: []string{"pp-2"},
		Keywords:      []string{"polirom"},
		BestOffer:     &PricePoint{ID: "pp-2", RetrievedAt: newer, NominalValue: decimal.NewFromInt(35)},
	}

	t.Run("field policies", func(t *testing.T) {
		merged := persisted.Merge(addition)

		assert.Equal(t, "book-1", merged.ID)
		assert.Equal(t, "Inima omului", merged.Title)
		assert.Equal(t, "Polirom", merged.Publisher)
		assert.Equal(t, "Jon Kalman Stefansson", merged.Authors)
		assert.Equal(t, "a much longer description", merged.Description)
		assert.Equal(t, []string{"pp-1", "pp-2"}, merged.PricePointIDs)
		assert.Equal(t, []string{"inima", "omului", "polirom"}, merged.Keywords)
		require.NotNil(t, merged.BestOffer)
		assert.Equal(t, "pp-2", merged.BestOffer.ID)
	})

	t.Run("does not mutate inputs", func(t *testing.T) {
		_ = persisted.Merge(addition)
		assert.Equal(t, []string{"pp-1"}, persisted.PricePointIDs)
		assert.Equal(t, "short", persisted.Description)
	})

	t.Run("first non-empty fields are not commutative", func(t *testing.T) {
		ab := persisted.Merge(addition)
		ba := addition.Merge(persisted)
		assert.NotEqual(t, ab.Title, ba.Title)
	})

	t.Run("price points and longest fields are commutative", func(t *testing.T) {
		ab := persisted.Merge(addition)
		ba := addition.Merge(persisted)
		assert.ElementsMatch(t, ab.PricePointIDs, ba.PricePointIDs)
		assert.Equal(t, ab.Description, ba.Description)
		assert.Equal(t, ab.Authors, ba.Authors)
		assert.Equal(t, ab.BestOffer.ID, ba.BestOffer.ID)
	})

	t.Run("addition wins best offer ties", func(t *testing.T) {
		a := &Book{BestOffer: &PricePoint{ID: "a", RetrievedAt: older}}
		b := &Book{BestOffer: &PricePoint{ID: "b", RetrievedAt: older}}
		assert.Equal(t, "b", a.Merge(b).BestOffer.ID)
		assert.Equal(t, "a", b.Merge(a).BestOffer.ID)
	})

	t.Run("missing offers", func(t *testing.T) {
		a := &Book{}
		b := &Book{BestOffer: &PricePoint{ID: "b", RetrievedAt: older}}
		assert.Equal(t, "b", a.Merge(b).BestOffer.ID)
		assert.Equal(t, "b", b.Merge(a).BestOffer.ID)
	})

	t.Run("duplicate price point ids are kept once", func(t *testing.T) {
		a := &Book{PricePointIDs: []string{"x", "y"}}
		b := &Book{PricePointIDs: []string{"y", "z"}}
		assert.Equal(t, []string{"x", "y", "z"}, a.Merge(b).PricePointIDs)
	})
}

func TestSplitKeywords(t *testing.T) {
	got := SplitKeywords("Bird Box. Orbește", "Josh Malerman", "9786067791234", "", "ab")
	assert.Equal(t, []string{"9786067791234", "bird", "box", "josh", "malerman", "orbește"}, got)
	assert.Nil(t, SplitKeywords("a b", ""))
}

func TestBook_IsValid(t *testing.T) {
	var nilBook *Book
	assert.False(t, nilBook.IsValid())
	assert.False(t, (&Book{Title: "x"}).IsValid())

	b := &Book{}
	b.SetISBN("978-606-8-1234-5")
	assert.True(t, b.IsValid())
	assert.Equal(t, "978606812345", b.ISBN)
}
