package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/book-price-scraper/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrFrontierExhausted = errors.New("frontier exhausted")
)

// Frontier is the externally maintained set of candidate pages plus the job
// and wrapper records that describe crawls over it.
type Frontier interface {
	// PossibleProductPages returns up to limit non-junk pages of domain with
	// URLs strictly after the given one, in URL order.
	PossibleProductPages(ctx context.Context, domain, after string, limit int) ([]*models.Page, error)
	UpsertPage(ctx context.Context, page *models.Page) error
	UpsertJob(ctx context.Context, job *models.Job) error
	// JobByID returns ErrNotFound when no such job exists.
	JobByID(ctx context.Context, id string) (*models.Job, error)
	ActiveJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
	// WrapperForDomain returns nil, nil when the domain has no wrapper.
	WrapperForDomain(ctx context.Context, domain string) (*models.Wrapper, error)
	SaveWrapper(ctx context.Context, wrapper *models.Wrapper) error
}

// ProductStore persists books and their price points. All writes for one
// product page happen inside a single unit of work.
type ProductStore interface {
	UnitOfWork(ctx context.Context, fn func(tx ProductTx) error) error
}

type ProductTx interface {
	FindByISBN(ctx context.Context, isbn string) ([]*models.Book, error)
	SaveBook(ctx context.Context, book *models.Book) error
	SavePricePoint(ctx context.Context, pp *models.PricePoint) error
	DeleteBooks(ctx context.Context, ids []string) error
}

// Fetcher downloads a page and returns its markup.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// SeenSet records pages a job has already processed. A finished job's set
// is forgotten; an interrupted job keeps it for the resume.
type SeenSet interface {
	Seen(ctx context.Context, jobID, url string) (bool, error)
	Mark(ctx context.Context, jobID, url string) error
	Count(ctx context.Context, jobID string) (int64, error)
	Forget(ctx context.Context, jobID string) error
}

// WrapperSource resolves the stored wrapper for a site, if any.
type WrapperSource interface {
	Wrapper(ctx context.Context, site string) (*models.Wrapper, error)
}
