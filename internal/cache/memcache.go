package cache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/maltedev/book-price-scraper/internal/models"
)

const keyPrefix = "wrapper:"

// MemcacheClient is the subset of the memcache client used here.
type MemcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

// MemcacheStore shares wrappers between scraper processes. Backend errors
// degrade to cache misses.
type MemcacheStore struct {
	client MemcacheClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewMemcacheStore(addr string, ttl time.Duration, logger *slog.Logger) *MemcacheStore {
	return NewMemcacheStoreWithClient(memcache.New(addr), ttl, logger)
}

func NewMemcacheStoreWithClient(client MemcacheClient, ttl time.Duration, logger *slog.Logger) *MemcacheStore {
	return &MemcacheStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "memcache_store"),
	}
}

func (m *MemcacheStore) Get(site string) (*models.Wrapper, bool) {
	item, err := m.client.Get(keyPrefix + site)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			m.logger.Warn("memcache get failed", "site", site, "error", err)
		}
		return nil, false
	}

	var w models.Wrapper
	if err := json.Unmarshal(item.Value, &w); err != nil {
		m.logger.Warn("discarding corrupt cached wrapper", "site", site, "error", err)
		return nil, false
	}
	return &w, true
}

func (m *MemcacheStore) Set(site string, w *models.Wrapper) {
	data, err := json.Marshal(w)
	if err != nil {
		m.logger.Warn("failed to encode wrapper", "site", site, "error", err)
		return
	}

	err = m.client.Set(&memcache.Item{
		Key:        keyPrefix + site,
		Value:      data,
		Expiration: int32(m.ttl.Seconds()),
	})
	if err != nil {
		m.logger.Warn("memcache set failed", "site", site, "error", err)
	}
}

func (m *MemcacheStore) Delete(site string) {
	if err := m.client.Delete(keyPrefix + site); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		m.logger.Warn("memcache delete failed", "site", site, "error", err)
	}
}
