package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/book-price-scraper/internal/models"
)

func (db *DB) WrapperForDomain(ctx context.Context, domain string) (*models.Wrapper, error) {
	var selectors []byte
	err := db.pool.QueryRow(ctx, `SELECT selectors FROM wrappers WHERE site = $1`, domain).Scan(&selectors)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wrapper: %w", err)
	}

	w := models.NewWrapper(domain)
	if err := json.Unmarshal(selectors, &w.Selectors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wrapper selectors: %w", err)
	}

	return w, nil
}

func (db *DB) SaveWrapper(ctx context.Context, w *models.Wrapper) error {
	selectors, err := json.Marshal(w.Selectors)
	if err != nil {
		return fmt.Errorf("failed to marshal wrapper selectors: %w", err)
	}

	query := `
		INSERT INTO wrappers (site, selectors, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (site) DO UPDATE SET
			selectors = EXCLUDED.selectors,
			updated_at = NOW()`

	if _, err := db.pool.Exec(ctx, query, w.Site, selectors); err != nil {
		return fmt.Errorf("failed to save wrapper: %w", err)
	}

	return nil
}
