package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors Statistics as Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	ProductOffersTotal prometheus.Counter
	PagesSkippedTotal  prometheus.Counter
	DownloadDuration   prometheus.Histogram
	ProcessingDuration *prometheus.HistogramVec
	PersistDuration    *prometheus.HistogramVec
	ActiveJobs         prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscraper_pages_total",
			Help: "Pages processed, by resulting page type.",
		},
		[]string{"type"},
	)
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscraper_requests_total",
			Help: "Fetch attempts, by outcome.",
		},
		[]string{"outcome"},
	)
	offers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_product_offers_total",
			Help: "Book and price point pairs persisted.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_pages_skipped_total",
			Help: "Frontier pages skipped because the job already processed them.",
		},
	)
	download := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookscraper_download_duration_seconds",
			Help:    "Time spent fetching a page, retries included.",
			Buckets: prometheus.DefBuckets,
		},
	)
	processing := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookscraper_processing_duration_seconds",
			Help:    "Time spent extracting a page, by resulting page type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	persist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookscraper_persist_duration_seconds",
			Help:    "Time spent writing pages and products.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookscraper_active_jobs",
			Help: "Scrape jobs currently running in this process.",
		},
	)

	registry.MustRegister(pages, requests, offers, skipped, download, processing, persist, active)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		RequestsTotal:      requests,
		ProductOffersTotal: offers,
		PagesSkippedTotal:  skipped,
		DownloadDuration:   download,
		ProcessingDuration: processing,
		PersistDuration:    persist,
		ActiveJobs:         active,
	}
}

func (m *Metrics) IncPage(pageType string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(pageType).Inc()
}

func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncProductOffer() {
	if m == nil {
		return
	}
	m.ProductOffersTotal.Inc()
}

func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.PagesSkippedTotal.Inc()
}

func (m *Metrics) ObserveDownload(d time.Duration) {
	if m == nil {
		return
	}
	m.DownloadDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveProcessing(pageType string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessingDuration.WithLabelValues(pageType).Observe(d.Seconds())
}

func (m *Metrics) ObservePersist(target string, d time.Duration) {
	if m == nil {
		return
	}
	m.PersistDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

func (m *Metrics) JobEnded() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}
