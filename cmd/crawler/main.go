package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maltedev/book-price-scraper/internal/browser"
	"github.com/maltedev/book-price-scraper/internal/checkpoint"
	"github.com/maltedev/book-price-scraper/internal/fetch"
	"github.com/maltedev/book-price-scraper/internal/jobs"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"github.com/maltedev/book-price-scraper/internal/price"
	"github.com/maltedev/book-price-scraper/internal/scraper"
	"github.com/maltedev/book-price-scraper/internal/storage"
)

// notifyingRunner reports each finished run so the CLI can crawl homepages
// one after another.
type notifyingRunner struct {
	runner *scraper.Scraper
	done   chan result
}

type result struct {
	stats scraper.StatsSnapshot
	err   error
}

func (n notifyingRunner) Run(ctx context.Context, job *models.Job) error {
	stats, err := n.runner.Crawl(ctx, job)
	n.done <- result{stats: stats, err: err}
	return err
}

func main() {
	var (
		storageFile = flag.String("storage", "bookscraper.json", "JSON file holding the frontier and the books")
		seedsFile   = flag.String("seeds", "", "File with one candidate page URL per line")
		continueID  = flag.String("continue", "", "Resume the job with this ID instead of starting new ones")
		delay       = flag.Duration("delay", 5*time.Second, "Crawl delay between requests")
		locale      = flag.String("locale", "ro-RO", "Locale used to read prices")
		strategy    = flag.String("strategy", "auto", "Extraction strategy: auto, heuristic or semantic")
		keywords    = flag.String("keywords", "", "YAML file overriding the built-in keyword sets")
		useBrowser  = flag.Bool("browser", false, "Render pages with a headless browser")
		verbose     = flag.Bool("v", false, "Log at debug level")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] homepage...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	homepages := flag.Args()
	if len(homepages) == 0 && *continueID == "" {
		flag.Usage()
		os.Exit(2)
	}

	store, err := storage.NewFileStore(*storageFile)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	if *seedsFile != "" {
		n, err := seed(context.Background(), store, *seedsFile)
		if err != nil {
			logger.Error("failed to seed frontier", "error", err)
			os.Exit(1)
		}
		logger.Info("frontier seeded", "pages", n)
	}

	kw := parser.DefaultKeywords()
	if *keywords != "" {
		if kw, err = parser.LoadKeywords(*keywords); err != nil {
			logger.Error("failed to load keywords", "error", err)
			os.Exit(1)
		}
	}

	var fetcher scraper.Fetcher = fetch.NewHTTPFetcher(fetch.Options{}, logger)
	if *useBrowser {
		b, err := browser.New(browser.DefaultOptions(), logger)
		if err != nil {
			logger.Error("failed to initialize browser", "error", err)
			os.Exit(1)
		}
		defer b.Close()
		fetcher = b
	}

	runner := notifyingRunner{
		runner: scraper.New(scraper.Deps{
			Frontier: store,
			Products: store,
			Fetcher:  fetcher,
			Seen:     checkpoint.NewMemorySeenSet(),
			Keywords: kw,
		}, scraper.Config{StatsEvery: 100, CentsHeuristic: true}, logger),
		done: make(chan result, 1),
	}
	manager := jobs.NewManager(store, runner, jobs.Options{CrawlDelay: *delay, Locale: *locale}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, jobs stay resumable")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := manager.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	opts := jobs.Options{Strategy: models.Strategy(*strategy)}
	if *continueID != "" {
		homepages = []string{""}
	}

	failed := false
	for _, homepage := range homepages {
		job, err := manager.CreateJob(context.Background(), homepage, *continueID, opts)
		if errors.Is(err, jobs.ErrShuttingDown) {
			break
		}
		if err != nil {
			logger.Error("failed to start job", "homepage", homepage, "error", err)
			failed = true
			continue
		}

		res := <-runner.done
		switch {
		case errors.Is(res.err, context.Canceled):
			fmt.Printf("job %s interrupted; resume with -continue %s\n", job.ID, job.ID)
		case res.err != nil:
			fmt.Printf("job %s failed: %v\n", job.ID, res.err)
			failed = true
		default:
			fmt.Printf("job %s finished: %d pages, %d offers, %d skipped\n",
				job.ID, res.stats.PagesProcessed, res.stats.ProductOffers, res.stats.PagesSkipped)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	if failed {
		os.Exit(1)
	}
}

// seed adds every URL listed in path to the frontier.
func seed(ctx context.Context, store *storage.FileStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open seeds: %w", err)
	}
	defer f.Close()

	added := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		site, err := price.SiteOf(line)
		if err != nil {
			return added, err
		}
		ok, err := store.SeedPage(ctx, &models.Page{URL: line, Domain: site})
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, scanner.Err()
}
