package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/maltedev/book-price-scraper/internal/induction"
	"github.com/maltedev/book-price-scraper/internal/jobs"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"github.com/maltedev/book-price-scraper/internal/price"
	"github.com/maltedev/book-price-scraper/internal/scraper"
)

const maxBodyBytes = 1 << 20

type JobService interface {
	CreateJob(ctx context.Context, homepage, continueID string, opts jobs.Options) (*models.Job, error)
	JobStatus(ctx context.Context, id string) (*models.Job, error)
	ListActiveJobs(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
}

type PageSeeder interface {
	SeedPage(ctx context.Context, page *models.Page) (bool, error)
}

type WrapperRepository interface {
	SaveWrapper(ctx context.Context, wrapper *models.Wrapper) error
}

// WrapperCache serves wrapper reads and is told when a wrapper changes.
type WrapperCache interface {
	Wrapper(ctx context.Context, site string) (*models.Wrapper, error)
	Invalidate(site string)
}

type WrapperInducer interface {
	GenerateWrapper(site string, page *goquery.Document, grids ...*goquery.Document) (*models.Wrapper, error)
}

// OutboxHealth reports the state of the event outbox. Only the Postgres
// backend has one.
type OutboxHealth interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Deps struct {
	Jobs     JobService
	Pages    PageSeeder
	Wrappers WrapperRepository
	Cache    WrapperCache
	Fetcher  scraper.Fetcher
	Inducer  WrapperInducer
	Outbox   OutboxHealth
}

type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
}

// CreateJobRequest starts a crawl of a homepage's domain, or resumes a job
// when Continue is set.
type CreateJobRequest struct {
	Homepage   string `json:"homepage"`
	Continue   string `json:"continue,omitempty"`
	CrawlDelay string `json:"crawlDelay,omitempty"`
	Locale     string `json:"locale,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Homepage == "" && req.Continue == "" {
		h.respondError(w, http.StatusBadRequest, "homepage or continue is required")
		return
	}

	opts := jobs.Options{
		Locale:   req.Locale,
		Strategy: models.Strategy(req.Strategy),
	}
	if req.CrawlDelay != "" {
		d, err := time.ParseDuration(req.CrawlDelay)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid crawlDelay %q", req.CrawlDelay))
			return
		}
		opts.CrawlDelay = d
	}

	job, err := h.deps.Jobs.CreateJob(r.Context(), req.Homepage, req.Continue, opts)
	var conflict *jobs.ConflictError
	switch {
	case err == nil:
		w.Header().Set("Location", jobLocation(job.ID))
		h.respondJSON(w, http.StatusAccepted, job)
	case errors.As(err, &conflict):
		w.Header().Set("Location", jobLocation(conflict.Active.ID))
		h.respondJSON(w, http.StatusConflict, conflict.Active)
	case errors.Is(err, jobs.ErrInvalidHomepage), errors.Is(err, jobs.ErrInvalidOptions):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrShuttingDown):
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
	}
}

func jobLocation(id string) string {
	return "/api/v1/jobs/" + id
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.deps.Jobs.JobStatus(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs returns the active jobs of a type, SCRAPE unless ?type= says otherwise.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobType := models.JobType(strings.ToUpper(r.URL.Query().Get("type")))
	if jobType == "" {
		jobType = models.JobTypeScrape
	}
	if jobType != models.JobTypeScrape {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown job type %q", jobType))
		return
	}

	active, err := h.deps.Jobs.ListActiveJobs(r.Context(), jobType)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if active == nil {
		active = []*models.Job{}
	}

	h.respondJSON(w, http.StatusOK, active)
}

type SeedPagesRequest struct {
	URLs []string `json:"urls"`
}

type SeedPagesResponse struct {
	Seeded   int `json:"seeded"`
	Existing int `json:"existing"`
}

// SeedPages adds candidate pages to the frontier. Pages already known are
// left untouched.
func (h *Handlers) SeedPages(w http.ResponseWriter, r *http.Request) {
	var req SeedPagesRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	pages := make([]*models.Page, 0, len(req.URLs))
	for _, u := range req.URLs {
		u = strings.TrimSpace(u)
		site, err := price.SiteOf(u)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid url %q", u))
			return
		}
		pages = append(pages, &models.Page{URL: u, Domain: site})
	}

	var resp SeedPagesResponse
	for _, p := range pages {
		added, err := h.deps.Pages.SeedPage(r.Context(), p)
		if err != nil {
			h.logger.Error("failed to seed page", "url", p.URL, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to seed pages")
			return
		}
		if added {
			resp.Seeded++
		} else {
			resp.Existing++
		}
	}

	h.logger.Info("frontier seeded", "seeded", resp.Seeded, "existing", resp.Existing)
	h.respondJSON(w, http.StatusOK, resp)
}

// InduceWrapperRequest names an example product page and, optionally, grid
// pages listing several books.
type InduceWrapperRequest struct {
	URL   string   `json:"url"`
	Grids []string `json:"grids,omitempty"`
}

func (h *Handlers) InduceWrapper(w http.ResponseWriter, r *http.Request) {
	var req InduceWrapperRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	site, err := price.SiteOf(req.URL)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid url %q", req.URL))
		return
	}

	page, err := h.document(r.Context(), req.URL)
	if err != nil {
		h.logger.Warn("failed to fetch example page", "url", req.URL, "error", err)
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	grids := make([]*goquery.Document, 0, len(req.Grids))
	for _, g := range req.Grids {
		doc, err := h.document(r.Context(), g)
		if err != nil {
			h.logger.Warn("failed to fetch grid page", "url", g, "error", err)
			h.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		grids = append(grids, doc)
	}

	wrapper, err := h.deps.Inducer.GenerateWrapper(site, page, grids...)
	if errors.Is(err, induction.ErrExtractionUnsupported) {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to induce wrapper", "site", site, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to induce wrapper")
		return
	}

	if err := h.deps.Wrappers.SaveWrapper(r.Context(), wrapper); err != nil {
		h.logger.Error("failed to save wrapper", "site", site, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to save wrapper")
		return
	}
	h.deps.Cache.Invalidate(site)

	h.logger.Info("wrapper induced", "site", site, "selectors", len(wrapper.Selectors))
	h.respondJSON(w, http.StatusCreated, wrapper)
}

func (h *Handlers) document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := h.deps.Fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return parser.NewDocument(body, url)
}

func (h *Handlers) GetWrapper(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")

	wrapper, err := h.deps.Cache.Wrapper(r.Context(), site)
	if err != nil {
		h.logger.Error("failed to get wrapper", "site", site, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get wrapper")
		return
	}
	if wrapper == nil {
		h.respondError(w, http.StatusNotFound, "wrapper not found")
		return
	}

	h.respondJSON(w, http.StatusOK, wrapper)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.deps.Outbox != nil {
		pending, err := h.deps.Outbox.GetPendingCount(r.Context())
		if err != nil {
			h.logger.Error("failed to count pending events", "error", err)
		}
		deadLetter, err := h.deps.Outbox.GetDeadLetterCount(r.Context())
		if err != nil {
			h.logger.Error("failed to count dead letter events", "error", err)
		}

		health["outbox"] = map[string]int64{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
