package database

import (
	"context"
	"testing"
	"time"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/scraper"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontier_Pages(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	seeds := []*models.Page{
		{URL: "https://a.ro/3", Domain: "a.ro"},
		{URL: "https://a.ro/1", Domain: "a.ro"},
		{URL: "https://a.ro/2", Domain: "a.ro"},
		{URL: "https://b.ro/1", Domain: "b.ro"},
	}
	for _, page := range seeds {
		inserted, err := db.SeedPage(ctx, page)
		require.NoError(t, err)
		assert.True(t, inserted)
	}
	inserted, err := db.SeedPage(ctx, &models.Page{URL: "https://a.ro/1", Domain: "a.ro"})
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, db.UpsertPage(ctx, &models.Page{URL: "https://a.ro/2", Domain: "a.ro", Type: models.PageTypeJunk}))

	pages, err := db.PossibleProductPages(ctx, "a.ro", "", 10)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://a.ro/1", pages[0].URL)
	assert.Equal(t, "https://a.ro/3", pages[1].URL)

	pages, err = db.PossibleProductPages(ctx, "a.ro", "https://a.ro/1", 10)
	require.NoError(t, err)
	require.Len(t, pages, 1)
}

func TestFrontier_Jobs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	job := &models.Job{
		ID: "job-1", Domain: "a.ro", Homepage: "https://a.ro", Type: models.JobTypeScrape,
		Status: models.JobStatusRunning, StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		CrawlDelay: 5 * time.Second, Locale: "ro-RO",
	}
	require.NoError(t, db.UpsertJob(ctx, job))

	active, err := db.ActiveJobsByType(ctx, models.JobTypeScrape)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 5*time.Second, active[0].CrawlDelay)

	ended := time.Now().UTC()
	job.Status, job.EndedAt = models.JobStatusFinished, &ended
	require.NoError(t, db.UpsertJob(ctx, job))

	got, err := db.JobByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, got.Status)
	assert.NotNil(t, got.EndedAt)

	_, err = db.JobByID(ctx, "missing")
	assert.ErrorIs(t, err, scraper.ErrNotFound)
}

func TestFrontier_Wrappers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	w, err := db.WrapperForDomain(ctx, "a.ro")
	require.NoError(t, err)
	assert.Nil(t, w)

	w = models.NewWrapper("a.ro")
	w.Set(models.SelectorPrice, models.Selector{Query: ".price"})
	require.NoError(t, db.SaveWrapper(ctx, w))

	got, err := db.WrapperForDomain(ctx, "a.ro")
	require.NoError(t, err)
	sel, ok := got.Selector(models.SelectorPrice)
	require.True(t, ok)
	assert.Equal(t, ".price", sel.Query)
}

func TestBookStore_UnitOfWork(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewBookStore(db, nil)

	pp := &models.PricePoint{
		ID: "pp-1", NominalValue: decimal.RequireFromString("39.90"), Currency: "RON",
		RetrievedAt: time.Now().UTC(), URL: "https://a.ro/1", Site: "a.ro",
	}
	book := &models.Book{ID: "b-1", ISBN: "9786064301234", Title: "Fundatia", PricePointIDs: []string{"pp-1"}, BestOffer: pp}

	err := store.UnitOfWork(ctx, func(tx scraper.ProductTx) error {
		if err := tx.SavePricePoint(ctx, pp); err != nil {
			return err
		}
		return tx.SaveBook(ctx, book)
	})
	require.NoError(t, err)

	err = store.UnitOfWork(ctx, func(tx scraper.ProductTx) error {
		books, err := tx.FindByISBN(ctx, "978-606-43-0123-4")
		require.NoError(t, err)
		require.Len(t, books, 1)
		assert.Equal(t, "Fundatia", books[0].Title)
		require.NotNil(t, books[0].BestOffer)
		assert.True(t, decimal.RequireFromString("39.9").Equal(books[0].BestOffer.NominalValue))

		return tx.DeleteBooks(ctx, []string{"b-1"})
	})
	require.NoError(t, err)
}

func TestBookStore_KeepsPricePrecision(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewBookStore(db, nil)

	pp := &models.PricePoint{
		ID: "pp-precise", NominalValue: decimal.RequireFromString("1.2345"), Currency: "RON",
		RetrievedAt: time.Now().UTC(), URL: "https://a.ro/2", Site: "a.ro",
	}
	book := &models.Book{ID: "b-precise", ISBN: "9789734649876", PricePointIDs: []string{pp.ID}, BestOffer: pp}

	require.NoError(t, store.UnitOfWork(ctx, func(tx scraper.ProductTx) error {
		if err := tx.SavePricePoint(ctx, pp); err != nil {
			return err
		}
		return tx.SaveBook(ctx, book)
	}))

	require.NoError(t, store.UnitOfWork(ctx, func(tx scraper.ProductTx) error {
		books, err := tx.FindByISBN(ctx, book.ISBN)
		require.NoError(t, err)
		require.Len(t, books, 1)
		require.NotNil(t, books[0].BestOffer)
		assert.Equal(t, "1.2345", books[0].BestOffer.NominalValue.String())

		return tx.DeleteBooks(ctx, []string{book.ID})
	}))
}
