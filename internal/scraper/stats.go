package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Statistics counts pipeline progress. All methods are safe for concurrent use.
type Statistics struct {
	pagesToBeRequested atomic.Int64
	requests           atomic.Int64
	pagesReached       atomic.Int64
	productOffers      atomic.Int64
	pagesSkipped       atomic.Int64
	pagesProcessed     atomic.Int64

	totalNanos              atomic.Int64
	downloadNanos           atomic.Int64
	processingNanos         atomic.Int64
	crawlPersistenceNanos   atomic.Int64
	productPersistenceNanos atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Statistics.
type StatsSnapshot struct {
	PagesToBeRequested int64 `json:"pages_to_be_requested"`
	Requests           int64 `json:"requests"`
	PagesReached       int64 `json:"pages_reached"`
	ProductOffers      int64 `json:"product_offers"`
	PagesSkipped       int64 `json:"pages_skipped"`
	PagesProcessed     int64 `json:"pages_processed"`

	AvgTotal              time.Duration `json:"avg_total"`
	AvgDownload           time.Duration `json:"avg_download"`
	AvgProcessing         time.Duration `json:"avg_processing"`
	AvgCrawlPersistence   time.Duration `json:"avg_crawl_persistence"`
	AvgProductPersistence time.Duration `json:"avg_product_persistence"`
}

func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) PageRequested() { s.pagesToBeRequested.Add(1) }

func (s *Statistics) RequestMade() { s.requests.Add(1) }

func (s *Statistics) PageReached() { s.pagesReached.Add(1) }

func (s *Statistics) ProductOfferSaved() { s.productOffers.Add(1) }

func (s *Statistics) PageSkipped() { s.pagesSkipped.Add(1) }

func (s *Statistics) AddDownload(d time.Duration) { s.downloadNanos.Add(int64(d)) }

func (s *Statistics) AddProcessing(d time.Duration) { s.processingNanos.Add(int64(d)) }

func (s *Statistics) AddCrawlPersistence(d time.Duration) { s.crawlPersistenceNanos.Add(int64(d)) }

func (s *Statistics) AddProductPersistence(d time.Duration) { s.productPersistenceNanos.Add(int64(d)) }

// PageProcessed records the end-to-end time of one page and returns how many
// pages have been processed so far.
func (s *Statistics) PageProcessed(total time.Duration) int64 {
	s.totalNanos.Add(int64(total))
	return s.pagesProcessed.Add(1)
}

func (s *Statistics) Snapshot() StatsSnapshot {
	requested := s.pagesToBeRequested.Load()
	reached := s.pagesReached.Load()
	processed := s.pagesProcessed.Load()
	offers := s.productOffers.Load()

	return StatsSnapshot{
		PagesToBeRequested:    requested,
		Requests:              s.requests.Load(),
		PagesReached:          reached,
		ProductOffers:         offers,
		PagesSkipped:          s.pagesSkipped.Load(),
		PagesProcessed:        processed,
		AvgTotal:              average(s.totalNanos.Load(), processed),
		AvgDownload:           average(s.downloadNanos.Load(), requested),
		AvgProcessing:         average(s.processingNanos.Load(), reached),
		AvgCrawlPersistence:   average(s.crawlPersistenceNanos.Load(), processed),
		AvgProductPersistence: average(s.productPersistenceNanos.Load(), offers),
	}
}

// Log writes the current counters and averages.
func (s *Statistics) Log(logger *slog.Logger, msg string) {
	snap := s.Snapshot()
	logger.Info(msg,
		"pages_to_be_requested", snap.PagesToBeRequested,
		"requests", snap.Requests,
		"pages_reached", snap.PagesReached,
		"product_offers", snap.ProductOffers,
		"pages_skipped", snap.PagesSkipped,
		"avg_total", snap.AvgTotal,
		"avg_download", snap.AvgDownload,
		"avg_processing", snap.AvgProcessing,
		"avg_crawl_persistence", snap.AvgCrawlPersistence,
		"avg_product_persistence", snap.AvgProductPersistence)
}

func average(totalNanos, n int64) time.Duration {
	if n == 0 {
		return 0
	}
	return time.Duration(totalNanos / n)
}
