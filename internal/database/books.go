package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/scraper"
	"github.com/shopspring/decimal"
)

// BookEventWriter records a change notification in the same transaction
// that saved the book.
type BookEventWriter interface {
	BookSaved(ctx context.Context, tx pgx.Tx, book *models.Book) error
}

// BookStore persists books and price points. Each unit of work is one
// Postgres transaction.
type BookStore struct {
	db     *DB
	events BookEventWriter
}

// NewBookStore creates a store. events may be nil.
func NewBookStore(db *DB, events BookEventWriter) *BookStore {
	return &BookStore{db: db, events: events}
}

func (s *BookStore) UnitOfWork(ctx context.Context, fn func(scraper.ProductTx) error) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(&bookTx{tx: tx, events: s.events})
	})
}

type bookTx struct {
	tx     pgx.Tx
	events BookEventWriter
}

const bookColumns = `b.id, b.isbn, b.title, b.authors, b.keywords, b.description, b.publisher,
	b.format, b.image_url, b.availability, b.price_point_ids,
	p.id, p.nominal_value::text, p.currency, p.retrieved_at, p.url, p.site, p.page_title, p.availability`

// FindByISBN locks and returns the books stored under the normalized ISBN.
func (t *bookTx) FindByISBN(ctx context.Context, isbn string) ([]*models.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books b
		LEFT JOIN price_points p ON p.id = b.best_offer_id
		WHERE b.isbn = $1
		ORDER BY b.updated_at ASC
		FOR UPDATE OF b`

	rows, err := t.tx.Query(ctx, query, models.NormalizeISBN(isbn))
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return books, nil
}

func (t *bookTx) SaveBook(ctx context.Context, b *models.Book) error {
	var bestOfferID *string
	if b.BestOffer != nil {
		bestOfferID = &b.BestOffer.ID
	}

	query := `
		INSERT INTO books (
			id, isbn, title, authors, keywords, description, publisher,
			format, image_url, availability, price_point_ids, best_offer_id, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			isbn = EXCLUDED.isbn,
			title = EXCLUDED.title,
			authors = EXCLUDED.authors,
			keywords = EXCLUDED.keywords,
			description = EXCLUDED.description,
			publisher = EXCLUDED.publisher,
			format = EXCLUDED.format,
			image_url = EXCLUDED.image_url,
			availability = EXCLUDED.availability,
			price_point_ids = EXCLUDED.price_point_ids,
			best_offer_id = EXCLUDED.best_offer_id,
			updated_at = NOW()`

	_, err := t.tx.Exec(ctx, query,
		b.ID, b.ISBN, b.Title, b.Authors, nonNil(b.Keywords), b.Description, b.Publisher,
		b.Format, b.ImageURL, string(b.Availability), nonNil(b.PricePointIDs), bestOfferID)
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}

	if t.events != nil {
		if err := t.events.BookSaved(ctx, t.tx, b); err != nil {
			return fmt.Errorf("failed to record book event: %w", err)
		}
	}

	return nil
}

func (t *bookTx) SavePricePoint(ctx context.Context, pp *models.PricePoint) error {
	query := `
		INSERT INTO price_points (
			id, nominal_value, currency, retrieved_at, url, site, page_title, availability
		) VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := t.tx.Exec(ctx, query,
		pp.ID, pp.NominalValue.String(), pp.Currency, pp.RetrievedAt, pp.URL, pp.Site,
		pp.PageTitle, string(pp.Availability))
	if err != nil {
		return fmt.Errorf("failed to save price point: %w", err)
	}

	return nil
}

func (t *bookTx) DeleteBooks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM books WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete books: %w", err)
	}

	return nil
}

func scanBook(row pgx.Row) (*models.Book, error) {
	var (
		b            models.Book
		availability string
		offerID      *string
		offerValue   *string
		offerCur     *string
		offer        models.PricePoint
		offerAvail   *string
		offerTitle   *string
		offerURL     *string
		offerSite    *string
		offerAt      *time.Time
	)

	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Authors, &b.Keywords, &b.Description, &b.Publisher,
		&b.Format, &b.ImageURL, &availability, &b.PricePointIDs,
		&offerID, &offerValue, &offerCur, &offerAt, &offerURL, &offerSite, &offerTitle, &offerAvail)
	if err != nil {
		return nil, err
	}
	b.Availability = models.Availability(availability)

	if offerID != nil {
		value, err := decimal.NewFromString(deref(offerValue))
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored price: %w", err)
		}
		offer.ID = *offerID
		offer.NominalValue = value
		offer.Currency = deref(offerCur)
		if offerAt != nil {
			offer.RetrievedAt = offerAt.UTC()
		}
		offer.URL = deref(offerURL)
		offer.Site = deref(offerSite)
		offer.PageTitle = deref(offerTitle)
		offer.Availability = models.Availability(deref(offerAvail))
		b.BestOffer = &offer
	}

	return &b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
