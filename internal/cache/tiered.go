package cache

import "github.com/maltedev/book-price-scraper/internal/models"

// TieredStore checks a local store before a shared one and back-fills the
// local store on shared hits.
type TieredStore struct {
	local  Store
	shared Store
}

func NewTieredStore(local, shared Store) *TieredStore {
	return &TieredStore{local: local, shared: shared}
}

func (t *TieredStore) Get(site string) (*models.Wrapper, bool) {
	if w, ok := t.local.Get(site); ok {
		return w, true
	}
	w, ok := t.shared.Get(site)
	if ok {
		t.local.Set(site, w)
	}
	return w, ok
}

func (t *TieredStore) Set(site string, w *models.Wrapper) {
	t.local.Set(site, w)
	t.shared.Set(site, w)
}

func (t *TieredStore) Delete(site string) {
	t.local.Delete(site)
	t.shared.Delete(site)
}
