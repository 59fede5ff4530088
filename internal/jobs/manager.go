package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/price"
	"github.com/maltedev/book-price-scraper/internal/scraper"
)

var (
	ErrJobConflict     = errors.New("domain already has an active job")
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidHomepage = errors.New("invalid homepage")
	ErrInvalidOptions  = errors.New("invalid job options")
	ErrShuttingDown    = errors.New("job manager is shutting down")
)

// ConflictError carries the job that already holds the domain.
type ConflictError struct {
	Active *models.Job
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("domain %s already has active job %s", e.Active.Domain, e.Active.ID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrJobConflict
}

// Runner executes one job to completion.
type Runner interface {
	Run(ctx context.Context, job *models.Job) error
}

// Store is the subset of the frontier the manager needs.
type Store interface {
	UpsertJob(ctx context.Context, job *models.Job) error
	JobByID(ctx context.Context, id string) (*models.Job, error)
	ActiveJobsByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
}

// Options tune a single job. Zero values fall back to the manager defaults.
type Options struct {
	CrawlDelay time.Duration
	Locale     string
	Strategy   models.Strategy
}

type Manager struct {
	store    Store
	runner   Runner
	defaults Options
	logger   *slog.Logger

	// mu serializes the conflict check with job registration.
	mu      sync.Mutex
	running map[string]*models.Job
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

func NewManager(store Store, runner Runner, defaults Options, logger *slog.Logger) *Manager {
	if defaults.Locale == "" {
		defaults.Locale = "ro-RO"
	}
	if defaults.Strategy == "" {
		defaults.Strategy = models.StrategyAuto
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		runner:   runner,
		defaults: defaults,
		logger:   logger.With("component", "job_manager"),
		running:  make(map[string]*models.Job),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// CreateJob starts a scrape of homepage's domain, or resumes the job with
// continueID. The pipeline runs in the background; the returned job is a
// snapshot taken before it starts.
func (m *Manager) CreateJob(ctx context.Context, homepage, continueID string, opts Options) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}

	var (
		job *models.Job
		err error
	)
	if continueID != "" {
		job, err = m.resumable(ctx, continueID)
	} else {
		job, err = m.newJob(homepage, opts)
	}
	if err != nil {
		return nil, err
	}

	if err := m.checkConflict(ctx, job); err != nil {
		return nil, err
	}

	job.Status = models.JobStatusRunning
	job.EndedAt = nil
	job.Error = ""
	if err := m.store.UpsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	snapshot, registered := *job, *job
	m.running[job.ID] = &registered
	m.wg.Add(1)
	go m.execute(job)

	m.logger.Info("job created",
		"id", job.ID,
		"domain", job.Domain,
		"resumed", continueID != "",
		"crawl_delay", job.CrawlDelay)

	return &snapshot, nil
}

func (m *Manager) newJob(homepage string, opts Options) (*models.Job, error) {
	homepage = strings.TrimSpace(homepage)
	if !strings.HasPrefix(homepage, "http://") && !strings.HasPrefix(homepage, "https://") {
		return nil, fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidHomepage, homepage)
	}
	domain, err := price.SiteOf(homepage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHomepage, err)
	}

	opts, err = m.resolve(opts)
	if err != nil {
		return nil, err
	}

	return &models.Job{
		ID:         uuid.New().String(),
		Domain:     domain,
		Homepage:   homepage,
		Type:       models.JobTypeScrape,
		StartedAt:  m.now(),
		CrawlDelay: opts.CrawlDelay,
		Locale:     opts.Locale,
		Strategy:   opts.Strategy,
	}, nil
}

func (m *Manager) resumable(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.store.JobByID(ctx, id)
	if errors.Is(err, scraper.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

func (m *Manager) resolve(opts Options) (Options, error) {
	if opts.CrawlDelay < 0 {
		return opts, fmt.Errorf("%w: negative crawl delay", ErrInvalidOptions)
	}
	if opts.CrawlDelay == 0 {
		opts.CrawlDelay = m.defaults.CrawlDelay
	}
	if opts.Locale == "" {
		opts.Locale = m.defaults.Locale
	}
	if _, err := price.LookupSymbols(opts.Locale); err != nil {
		return opts, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	switch opts.Strategy {
	case "":
		opts.Strategy = m.defaults.Strategy
	case models.StrategyAuto, models.StrategyHeuristic, models.StrategySemantic:
	default:
		return opts, fmt.Errorf("%w: unknown strategy %q", ErrInvalidOptions, opts.Strategy)
	}

	return opts, nil
}

// checkConflict rejects a job when another job is active on its domain. A
// RUNNING job that this process is not executing may be resumed by its own ID.
func (m *Manager) checkConflict(ctx context.Context, job *models.Job) error {
	for _, active := range m.running {
		if active.Domain == job.Domain {
			cp := *active
			return &ConflictError{Active: &cp}
		}
	}

	active, err := m.store.ActiveJobsByType(ctx, models.JobTypeScrape)
	if err != nil {
		return fmt.Errorf("failed to list active jobs: %w", err)
	}
	for _, other := range active {
		if other.Domain == job.Domain && other.ID != job.ID {
			return &ConflictError{Active: other}
		}
	}
	return nil
}

func (m *Manager) execute(job *models.Job) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.running, job.ID)
		m.mu.Unlock()
	}()

	logger := m.logger.With("job_id", job.ID)
	err := m.runner.Run(m.ctx, job)

	switch {
	case err == nil:
		logger.Info("job completed")
	case errors.Is(err, context.Canceled):
		logger.Info("job interrupted", "error", err)
	default:
		logger.Error("job failed", "error", err)
		ended := m.now()
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
		job.EndedAt = &ended
		if err := m.store.UpsertJob(context.Background(), job); err != nil {
			logger.Error("failed to mark job failed", "error", err)
		}
	}
}

// JobStatus returns the stored state of a job.
func (m *Manager) JobStatus(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.store.JobByID(ctx, id)
	if errors.Is(err, scraper.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (m *Manager) ListActiveJobs(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	jobs, err := m.store.ActiveJobsByType(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Running reports how many pipelines this process is executing.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Shutdown interrupts running pipelines, leaving their jobs resumable, and
// waits for them to return or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all jobs stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop jobs: %w", ctx.Err())
	}
}
