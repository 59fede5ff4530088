package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/maltedev/book-price-scraper/internal/models"
)

// LRUStore is an in-process bounded cache with per-entry expiry.
type LRUStore struct {
	lru *expirable.LRU[string, *models.Wrapper]
}

func NewLRUStore(size int, ttl time.Duration) *LRUStore {
	if size <= 0 {
		size = 128
	}
	return &LRUStore{lru: expirable.NewLRU[string, *models.Wrapper](size, nil, ttl)}
}

func (s *LRUStore) Get(site string) (*models.Wrapper, bool) {
	return s.lru.Get(site)
}

func (s *LRUStore) Set(site string, w *models.Wrapper) {
	s.lru.Add(site, w)
}

func (s *LRUStore) Delete(site string) {
	s.lru.Remove(site)
}

func (s *LRUStore) Len() int {
	return s.lru.Len()
}
