package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"github.com/maltedev/book-price-scraper/internal/price"
	"github.com/maltedev/book-price-scraper/internal/queue"
	"github.com/maltedev/book-price-scraper/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	FetchTries      int
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	QueueCapacity   int
	FrontierBatch   int
	// StatsEvery logs statistics after every n processed pages. Zero disables it.
	StatsEvery     int
	CentsHeuristic bool
	AdaptiveDelay  bool
	MaxDelay       time.Duration
}

func DefaultConfig() Config {
	return Config{
		FetchTries:      2,
		PollInterval:    500 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
		QueueCapacity:   64,
		FrontierBatch:   100,
		StatsEvery:      10000,
		CentsHeuristic:  true,
		MaxDelay:        time.Minute,
	}
}

// Deps bundles the collaborators of a Scraper. Wrappers may be nil, in which
// case wrappers are read from the frontier directly.
type Deps struct {
	Frontier Frontier
	Products ProductStore
	Fetcher  Fetcher
	Seen     SeenSet
	Wrappers WrapperSource
	Keywords *parser.Keywords
	Metrics  *Metrics
}

// Scraper runs crawl jobs: a rate-limited downloader feeding a single
// consumer through a bounded queue.
type Scraper struct {
	frontier Frontier
	products ProductStore
	fetcher  Fetcher
	seen     SeenSet
	wrappers WrapperSource
	keywords *parser.Keywords
	metrics  *Metrics
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Scraper {
	defaults := DefaultConfig()
	if cfg.FetchTries <= 0 {
		cfg.FetchTries = defaults.FetchTries
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaults.QueueCapacity
	}
	if cfg.FrontierBatch <= 0 {
		cfg.FrontierBatch = defaults.FrontierBatch
	}

	keywords := deps.Keywords
	if keywords == nil {
		keywords = parser.DefaultKeywords()
	}
	wrappers := deps.Wrappers
	if wrappers == nil {
		wrappers = frontierWrappers{deps.Frontier}
	}

	return &Scraper{
		frontier: deps.Frontier,
		products: deps.Products,
		fetcher:  deps.Fetcher,
		seen:     deps.Seen,
		wrappers: wrappers,
		keywords: keywords,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger.With("component", "scraper"),
		now:      time.Now,
	}
}

type frontierWrappers struct {
	frontier Frontier
}

func (f frontierWrappers) Wrapper(ctx context.Context, site string) (*models.Wrapper, error) {
	return f.frontier.WrapperForDomain(ctx, site)
}

type fetchResult struct {
	page     *models.Page
	html     string
	err      error
	started  time.Time
	download time.Duration
}

// run carries the per-job state shared by the two stages.
type run struct {
	job       *models.Job
	extractor parser.Extractor
	limiter   ratelimit.RateLimiter
	stats     *Statistics
	logger    *slog.Logger
}

// Run crawls the job's domain until the frontier is exhausted, then marks the
// job FINISHED. When ctx is cancelled the job is left RUNNING so it can be
// resumed and ctx.Err() is returned.
func (s *Scraper) Run(ctx context.Context, job *models.Job) error {
	_, err := s.Crawl(ctx, job)
	return err
}

// Crawl is Run that also reports the final statistics.
func (s *Scraper) Crawl(ctx context.Context, job *models.Job) (StatsSnapshot, error) {
	logger := s.logger.With("job_id", job.ID, "domain", job.Domain)

	prices, err := price.NewParser(job.Locale, price.WithCentsHeuristic(s.cfg.CentsHeuristic))
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("failed to create price parser: %w", err)
	}

	wrapper, err := s.wrappers.Wrapper(ctx, job.Domain)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("failed to load wrapper for %s: %w", job.Domain, err)
	}

	r := &run{
		job:       job,
		extractor: SelectExtractor(job, wrapper, s.keywords, prices, logger),
		limiter:   s.limiterFor(job),
		stats:     NewStatistics(),
		logger:    logger,
	}
	logger.Info("job started", "extractor", r.extractor.Name(), "crawl_delay", job.CrawlDelay)
	s.logResume(ctx, r)

	s.metrics.JobStarted()
	defer s.metrics.JobEnded()

	q := queue.NewInMemoryQueue[fetchResult](s.cfg.QueueCapacity)

	// The consumer outlives job cancellation by at most ShutdownTimeout so
	// in-flight page writes can finish.
	consumerCtx, cancelConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConsumer()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(s.cfg.ShutdownTimeout, cancelConsumer)
	})
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer q.Close()
		return s.download(ctx, r, q)
	})
	g.Go(func() error {
		return s.consume(consumerCtx, r, q)
	})
	err = g.Wait()

	snapshot := r.stats.Snapshot()
	r.stats.Log(logger, "job statistics")

	if ctx.Err() != nil {
		logger.Info("job interrupted, left resumable")
		return snapshot, ctx.Err()
	}
	if err != nil {
		return snapshot, err
	}

	ended := s.now()
	job.Status = models.JobStatusFinished
	job.EndedAt = &ended
	if err := s.frontier.UpsertJob(context.WithoutCancel(ctx), job); err != nil {
		return snapshot, fmt.Errorf("failed to mark job finished: %w", err)
	}

	if s.seen != nil {
		if err := s.seen.Forget(context.WithoutCancel(ctx), job.ID); err != nil {
			logger.Warn("failed to clear seen pages", "error", err)
		}
	}

	logger.Info("job finished", "pages", snapshot.PagesProcessed, "offers", snapshot.ProductOffers)
	return snapshot, nil
}

func (s *Scraper) logResume(ctx context.Context, r *run) {
	if s.seen == nil {
		return
	}
	n, err := s.seen.Count(ctx, r.job.ID)
	if err != nil {
		r.logger.Warn("failed to count seen pages", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("resuming job", "seen_pages", n)
	}
}

func (s *Scraper) limiterFor(job *models.Job) ratelimit.RateLimiter {
	if s.cfg.AdaptiveDelay {
		return ratelimit.NewAdaptiveRateLimiter(job.CrawlDelay, s.cfg.MaxDelay)
	}
	return ratelimit.NewCrawlDelayLimiter(job.CrawlDelay)
}

// download walks the frontier in URL order and pushes one result per page
// that this job has not processed yet.
func (s *Scraper) download(ctx context.Context, r *run, q queue.Queue[fetchResult]) error {
	after := ""
	for {
		pages, err := s.frontier.PossibleProductPages(ctx, r.job.Domain, after, s.cfg.FrontierBatch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frontier: %w", err)
		}
		if len(pages) == 0 {
			r.logger.Debug("frontier exhausted")
			return nil
		}

		for _, page := range pages {
			after = page.URL

			if s.alreadySeen(ctx, r, page) {
				r.stats.PageSkipped()
				s.metrics.IncSkipped()
				continue
			}

			if err := r.limiter.Wait(ctx); err != nil {
				return nil
			}

			r.stats.PageRequested()
			result := s.fetch(ctx, r, page)
			if ctx.Err() != nil {
				return nil
			}
			if err := q.Push(ctx, result); err != nil {
				return nil
			}
		}
	}
}

func (s *Scraper) alreadySeen(ctx context.Context, r *run, page *models.Page) bool {
	if page.LastJobID == r.job.ID {
		return true
	}
	if s.seen == nil {
		return false
	}
	seen, err := s.seen.Seen(ctx, r.job.ID, page.URL)
	if err != nil {
		r.logger.Warn("seen-set lookup failed", "url", page.URL, "error", err)
		return false
	}
	return seen
}

func (s *Scraper) fetch(ctx context.Context, r *run, page *models.Page) fetchResult {
	result := fetchResult{page: page, started: time.Now()}

	for attempt := 1; attempt <= s.cfg.FetchTries; attempt++ {
		r.stats.RequestMade()
		html, err := s.fetcher.Get(ctx, page.URL)
		if err == nil {
			result.html, result.err = html, nil
			s.metrics.IncRequest("success")
			break
		}
		result.err = err
		s.metrics.IncRequest("error")
		r.logger.Debug("fetch attempt failed", "url", page.URL, "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	result.download = time.Since(result.started)
	r.stats.AddDownload(result.download)
	s.metrics.ObserveDownload(result.download)

	if fb, ok := r.limiter.(ratelimit.Feedback); ok {
		if result.err != nil {
			fb.RecordError()
		} else {
			fb.RecordSuccess()
		}
	}

	return result
}

// consume drains the queue until it is closed and empty.
func (s *Scraper) consume(ctx context.Context, r *run, q queue.Queue[fetchResult]) error {
	for {
		result, err := q.PopTimeout(ctx, s.cfg.PollInterval)
		switch {
		case errors.Is(err, queue.ErrQueueEmpty):
			continue
		case errors.Is(err, queue.ErrQueueClosed):
			return nil
		case err != nil:
			return fmt.Errorf("consumer stopped: %w", err)
		}

		s.process(ctx, r, result)
	}
}

func (s *Scraper) process(ctx context.Context, r *run, result fetchResult) {
	page := result.page
	retrieved := s.now()
	page.RetrievedAt = &retrieved
	page.LastJobID = r.job.ID

	if result.err != nil {
		r.logger.Warn("page unreachable", "url", page.URL, "error", result.err)
		page.Type = models.PageTypeUnreachable
	} else {
		r.stats.PageReached()
		s.extract(ctx, r, page, result.html)
	}

	start := time.Now()
	if err := s.frontier.UpsertPage(ctx, page); err != nil {
		r.logger.Error("failed to update page", "url", page.URL, "error", err)
	}
	if s.seen != nil {
		if err := s.seen.Mark(ctx, r.job.ID, page.URL); err != nil {
			r.logger.Warn("failed to mark page seen", "url", page.URL, "error", err)
		}
	}
	elapsed := time.Since(start)
	r.stats.AddCrawlPersistence(elapsed)
	s.metrics.ObservePersist("page", elapsed)
	s.metrics.IncPage(string(page.Type))

	processed := r.stats.PageProcessed(time.Since(result.started))
	if s.cfg.StatsEvery > 0 && processed%int64(s.cfg.StatsEvery) == 0 {
		r.stats.Log(r.logger, "job progress")
	}
}

func (s *Scraper) extract(ctx context.Context, r *run, page *models.Page, html string) {
	start := time.Now()

	doc, err := parser.NewDocument(html, page.URL)
	if err != nil {
		r.logger.Warn("failed to parse page", "url", page.URL, "error", err)
		page.Type = models.PageTypeJunk
		return
	}

	page.Title = parser.PageTitle(doc)
	page.CanonicalURL = parser.CanonicalURL(doc)

	result := r.extractor.Extract(doc)
	page.Type = Classify(result)

	elapsed := time.Since(start)
	r.stats.AddProcessing(elapsed)
	s.metrics.ObserveProcessing(string(page.Type), elapsed)

	if page.Type != models.PageTypeProduct {
		return
	}

	start = time.Now()
	book, err := PersistOffer(context.WithoutCancel(ctx), s.products, result)
	if err != nil {
		r.logger.Error("failed to save product offer", "url", page.URL, "error", err)
		return
	}
	elapsed = time.Since(start)
	r.stats.AddProductPersistence(elapsed)
	r.stats.ProductOfferSaved()
	s.metrics.ObservePersist("product", elapsed)
	s.metrics.IncProductOffer()

	r.logger.Debug("product offer saved", "url", page.URL, "isbn", book.ISBN, "book_id", book.ID)
}
