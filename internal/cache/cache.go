// Package cache keeps induced wrappers close to the scraper so every job
// start does not hit the database.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/book-price-scraper/internal/models"
)

// Store is a site-keyed wrapper cache backend.
type Store interface {
	Get(site string) (*models.Wrapper, bool)
	Set(site string, w *models.Wrapper)
	Delete(site string)
}

// LoaderFunc fetches a wrapper from the system of record. A nil wrapper
// with nil error means the site has none.
type LoaderFunc func(ctx context.Context, site string) (*models.Wrapper, error)

type WrapperCache struct {
	store  Store
	load   LoaderFunc
	logger *slog.Logger
}

func NewWrapperCache(store Store, load LoaderFunc, logger *slog.Logger) *WrapperCache {
	return &WrapperCache{
		store:  store,
		load:   load,
		logger: logger.With("component", "wrapper_cache"),
	}
}

// Wrapper returns the site's wrapper, reading through to the loader on a
// miss. Absent wrappers are not cached so a newly induced one is picked up
// by the next job.
func (c *WrapperCache) Wrapper(ctx context.Context, site string) (*models.Wrapper, error) {
	key := normalizeSite(site)
	if w, ok := c.store.Get(key); ok {
		c.logger.Debug("wrapper cache hit", "site", key)
		return w, nil
	}

	w, err := c.load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load wrapper for %s: %w", key, err)
	}
	if w != nil {
		c.store.Set(key, w)
	}
	return w, nil
}

// Invalidate drops the cached wrapper, typically after a new one is saved.
func (c *WrapperCache) Invalidate(site string) {
	c.store.Delete(normalizeSite(site))
}

func normalizeSite(site string) string {
	return strings.ToLower(strings.TrimSpace(site))
}
