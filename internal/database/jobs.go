package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/scraper"
)

const jobColumns = `id, domain, homepage, type, status, started_at, ended_at, crawl_delay_ms, locale, strategy, error`

func (db *DB) UpsertJob(ctx context.Context, j *models.Job) error {
	query := `
		INSERT INTO scrape_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			crawl_delay_ms = EXCLUDED.crawl_delay_ms,
			locale = EXCLUDED.locale,
			strategy = EXCLUDED.strategy,
			error = EXCLUDED.error`

	_, err := db.pool.Exec(ctx, query,
		j.ID, j.Domain, j.Homepage, string(j.Type), string(j.Status), j.StartedAt, j.EndedAt,
		j.CrawlDelay.Milliseconds(), j.Locale, string(j.Strategy), j.Error)
	if err != nil {
		return fmt.Errorf("failed to upsert job: %w", err)
	}

	return nil
}

func (db *DB) JobByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`

	job, err := scanJob(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, scraper.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (db *DB) ActiveJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scrape_jobs
		WHERE type = $1 AND status = $2
		ORDER BY started_at ASC`

	rows, err := db.pool.Query(ctx, query, string(jobType), string(models.JobStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j                          models.Job
		jobType, status, strategy string
		delayMillis                int64
	)

	err := row.Scan(&j.ID, &j.Domain, &j.Homepage, &jobType, &status, &j.StartedAt, &j.EndedAt,
		&delayMillis, &j.Locale, &strategy, &j.Error)
	if err != nil {
		return nil, err
	}

	j.Type = models.JobType(jobType)
	j.Status = models.JobStatus(status)
	j.Strategy = models.Strategy(strategy)
	j.CrawlDelay = time.Duration(delayMillis) * time.Millisecond
	return &j, nil
}
