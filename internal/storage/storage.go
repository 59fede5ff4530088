// Package storage is a single-file JSON backend for the frontier and the
// product store, for running without Postgres.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/scraper"
)

type snapshot struct {
	Pages       map[string]*models.Page       `json:"pages"`
	Jobs        map[string]*models.Job        `json:"jobs"`
	Wrappers    map[string]*models.Wrapper    `json:"wrappers"`
	Books       map[string]*models.Book       `json:"books"`
	PricePoints map[string]*models.PricePoint `json:"price_points"`
}

func newSnapshot() *snapshot {
	return &snapshot{
		Pages:       make(map[string]*models.Page),
		Jobs:        make(map[string]*models.Job),
		Wrappers:    make(map[string]*models.Wrapper),
		Books:       make(map[string]*models.Book),
		PricePoints: make(map[string]*models.PricePoint),
	}
}

// FileStore keeps everything in memory and rewrites the whole file after
// each change. An empty filename disables persistence.
type FileStore struct {
	mu       sync.RWMutex
	data     *snapshot
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		data:     newSnapshot(),
		filename: filename,
	}

	if filename != "" {
		if err := fs.Load(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	return fs, nil
}

func (fs *FileStore) PossibleProductPages(_ context.Context, domain, after string, limit int) ([]*models.Page, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var pages []*models.Page
	for _, p := range fs.data.Pages {
		if p.Domain == domain && p.URL > after && p.Type != models.PageTypeJunk {
			cp := *p
			pages = append(pages, &cp)
		}
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

func (fs *FileStore) UpsertPage(_ context.Context, p *models.Page) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cp := *p
	fs.data.Pages[p.URL] = &cp
	return fs.save()
}

// SeedPage adds a page to the frontier without touching one that exists.
func (fs *FileStore) SeedPage(_ context.Context, p *models.Page) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data.Pages[p.URL]; ok {
		return false, nil
	}
	fs.data.Pages[p.URL] = &models.Page{URL: p.URL, Domain: p.Domain}
	return true, fs.save()
}

func (fs *FileStore) Page(url string) (*models.Page, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	p, ok := fs.data.Pages[url]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (fs *FileStore) UpsertJob(_ context.Context, j *models.Job) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cp := *j
	fs.data.Jobs[j.ID] = &cp
	return fs.save()
}

func (fs *FileStore) JobByID(_ context.Context, id string) (*models.Job, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	j, ok := fs.data.Jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, scraper.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (fs *FileStore) ActiveJobsByType(_ context.Context, jobType models.JobType) ([]*models.Job, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var jobs []*models.Job
	for _, j := range fs.data.Jobs {
		if j.Type == jobType && j.IsActive() {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.Before(jobs[k].StartedAt) })
	return jobs, nil
}

func (fs *FileStore) WrapperForDomain(_ context.Context, domain string) (*models.Wrapper, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	w, ok := fs.data.Wrappers[domain]
	if !ok {
		return nil, nil
	}
	return cloneWrapper(w), nil
}

func (fs *FileStore) SaveWrapper(_ context.Context, w *models.Wrapper) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.data.Wrappers[w.Site] = cloneWrapper(w)
	return fs.save()
}

// Books returns every stored book ordered by ISBN.
func (fs *FileStore) Books() []*models.Book {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	books := make([]*models.Book, 0, len(fs.data.Books))
	for _, b := range fs.data.Books {
		books = append(books, cloneBook(b))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ISBN < books[j].ISBN })
	return books
}

func (fs *FileStore) PricePointCount() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.data.PricePoints)
}

// UnitOfWork runs fn against a copy of the product tables and commits the
// copy only if fn succeeds and the file is written.
func (fs *FileStore) UnitOfWork(ctx context.Context, fn func(scraper.ProductTx) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	tx := &fileTx{
		books:       make(map[string]*models.Book, len(fs.data.Books)),
		pricePoints: make(map[string]*models.PricePoint, len(fs.data.PricePoints)),
	}
	for k, v := range fs.data.Books {
		tx.books[k] = v
	}
	for k, v := range fs.data.PricePoints {
		tx.pricePoints[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}

	prevBooks, prevPrices := fs.data.Books, fs.data.PricePoints
	fs.data.Books, fs.data.PricePoints = tx.books, tx.pricePoints
	if err := fs.save(); err != nil {
		fs.data.Books, fs.data.PricePoints = prevBooks, prevPrices
		return err
	}

	return nil
}

// fileTx replaces map entries rather than mutating stored values, so the
// shallow map copies above are enough for isolation.
type fileTx struct {
	books       map[string]*models.Book
	pricePoints map[string]*models.PricePoint
}

func (t *fileTx) FindByISBN(_ context.Context, isbn string) ([]*models.Book, error) {
	isbn = models.NormalizeISBN(isbn)

	var books []*models.Book
	for _, b := range t.books {
		if b.ISBN == isbn {
			books = append(books, cloneBook(b))
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (t *fileTx) SaveBook(_ context.Context, b *models.Book) error {
	if b.ID == "" {
		return fmt.Errorf("failed to save book: missing id")
	}
	t.books[b.ID] = cloneBook(b)
	return nil
}

func (t *fileTx) SavePricePoint(_ context.Context, pp *models.PricePoint) error {
	if _, ok := t.pricePoints[pp.ID]; ok {
		return nil
	}
	cp := *pp
	t.pricePoints[pp.ID] = &cp
	return nil
}

func (t *fileTx) DeleteBooks(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.books, id)
	}
	return nil
}

// save must be called with mu held.
func (fs *FileStore) save() error {
	if fs.filename == "" {
		return nil
	}

	data, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.filename), filepath.Base(fs.filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), fs.filename); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	loaded := newSnapshot()
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	fresh := newSnapshot()
	if loaded.Pages == nil {
		loaded.Pages = fresh.Pages
	}
	if loaded.Jobs == nil {
		loaded.Jobs = fresh.Jobs
	}
	if loaded.Wrappers == nil {
		loaded.Wrappers = fresh.Wrappers
	}
	if loaded.Books == nil {
		loaded.Books = fresh.Books
	}
	if loaded.PricePoints == nil {
		loaded.PricePoints = fresh.PricePoints
	}
	fs.data = loaded
	return nil
}

func cloneBook(b *models.Book) *models.Book {
	cp := *b
	cp.Keywords = append([]string(nil), b.Keywords...)
	cp.PricePointIDs = append([]string(nil), b.PricePointIDs...)
	if b.BestOffer != nil {
		offer := *b.BestOffer
		cp.BestOffer = &offer
	}
	return &cp
}

func cloneWrapper(w *models.Wrapper) *models.Wrapper {
	cp := models.NewWrapper(w.Site)
	for name, sel := range w.Selectors {
		cp.Selectors[name] = sel
	}
	return cp
}
