package database

import (
	"context"
	"fmt"

	"github.com/maltedev/book-price-scraper/internal/models"
)

// PossibleProductPages returns the next batch of non-junk pages of a domain
// after the given URL. Pages never visited are included.
func (db *DB) PossibleProductPages(ctx context.Context, domain, after string, limit int) ([]*models.Page, error) {
	query := `
		SELECT url, domain, title, canonical_url, type, retrieved_at, last_job_id
		FROM pages
		WHERE domain = $1 AND url > $2 AND type <> $3
		ORDER BY url ASC
		LIMIT $4`

	rows, err := db.pool.Query(ctx, query, domain, after, models.PageTypeJunk, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.Page
	for rows.Next() {
		p := &models.Page{}
		var pageType string
		if err := rows.Scan(&p.URL, &p.Domain, &p.Title, &p.CanonicalURL, &pageType, &p.RetrievedAt, &p.LastJobID); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Type = models.PageType(pageType)
		pages = append(pages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pages, nil
}

func (db *DB) UpsertPage(ctx context.Context, p *models.Page) error {
	query := `
		INSERT INTO pages (url, domain, title, canonical_url, type, retrieved_at, last_job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			domain = EXCLUDED.domain,
			title = EXCLUDED.title,
			canonical_url = EXCLUDED.canonical_url,
			type = EXCLUDED.type,
			retrieved_at = EXCLUDED.retrieved_at,
			last_job_id = EXCLUDED.last_job_id`

	_, err := db.pool.Exec(ctx, query,
		p.URL, p.Domain, p.Title, p.CanonicalURL, string(p.Type), p.RetrievedAt, p.LastJobID)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}

	return nil
}

// SeedPage adds a page to the frontier without touching one that exists.
func (db *DB) SeedPage(ctx context.Context, p *models.Page) (bool, error) {
	query := `
		INSERT INTO pages (url, domain)
		VALUES ($1, $2)
		ON CONFLICT (url) DO NOTHING`

	tag, err := db.pool.Exec(ctx, query, p.URL, p.Domain)
	if err != nil {
		return false, fmt.Errorf("failed to seed page: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
