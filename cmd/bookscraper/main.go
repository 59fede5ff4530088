package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/book-price-scraper/internal/api"
	"github.com/maltedev/book-price-scraper/internal/browser"
	"github.com/maltedev/book-price-scraper/internal/cache"
	"github.com/maltedev/book-price-scraper/internal/checkpoint"
	"github.com/maltedev/book-price-scraper/internal/config"
	"github.com/maltedev/book-price-scraper/internal/database"
	"github.com/maltedev/book-price-scraper/internal/events"
	"github.com/maltedev/book-price-scraper/internal/fetch"
	"github.com/maltedev/book-price-scraper/internal/induction"
	"github.com/maltedev/book-price-scraper/internal/jobs"
	"github.com/maltedev/book-price-scraper/internal/parser"
	"github.com/maltedev/book-price-scraper/internal/scraper"
	"github.com/maltedev/book-price-scraper/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// backend is whichever store holds the frontier and the books.
type backend interface {
	scraper.Frontier
	scraper.ProductStore
	api.PageSeeder
	api.WrapperRepository
}

type postgresBackend struct {
	*database.DB
	*database.BookStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("bookscraper failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	var (
		store  backend
		outbox api.OutboxHealth
	)
	switch cfg.Storage.Backend {
	case config.BackendFile:
		fs, err := storage.NewFileStore(cfg.Storage.File)
		if err != nil {
			return fmt.Errorf("failed to open file store: %w", err)
		}
		store = fs
		logger.Info("using file storage", "file", cfg.Storage.File)

	default:
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		outboxRepo := database.NewOutboxRepository(db)
		publisher := events.NewPublisher(outboxRepo, logger)
		store = postgresBackend{DB: db, BookStore: database.NewBookStore(db, publisher)}

		if redisClient != nil {
			relay := database.NewRelay(outboxRepo, redisClient, logger, database.RelayConfig{
				PollInterval: cfg.Relay.PollInterval,
				BatchSize:    cfg.Relay.BatchSize,
				StreamMaxLen: cfg.Relay.StreamMaxLen,
			})
			outbox = relay
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		} else {
			logger.Warn("REDIS_ADDR not set, outbox events will not be relayed")
		}
	}

	var seen scraper.SeenSet = checkpoint.NewMemorySeenSet()
	if redisClient != nil {
		seen = checkpoint.NewRedisSeenSet(redisClient)
	}

	var cacheStore cache.Store = cache.NewLRUStore(cfg.Cache.Size, cfg.Cache.TTL)
	if cfg.Cache.MemcacheAddr != "" {
		cacheStore = cache.NewTieredStore(cacheStore, cache.NewMemcacheStore(cfg.Cache.MemcacheAddr, cfg.Cache.TTL, logger))
	}
	wrappers := cache.NewWrapperCache(cacheStore, store.WrapperForDomain, logger)

	keywords := parser.DefaultKeywords()
	if cfg.Scraper.KeywordsFile != "" {
		kw, err := parser.LoadKeywords(cfg.Scraper.KeywordsFile)
		if err != nil {
			return fmt.Errorf("failed to load keywords: %w", err)
		}
		keywords = kw
	}

	var fetcher scraper.Fetcher = fetch.NewHTTPFetcher(fetch.Options{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.Scraper.FetchTimeout,
	}, logger)
	if cfg.Scraper.Browser {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Scraper.Headless
		opts.Timeout = cfg.Scraper.FetchTimeout
		if cfg.Scraper.UserAgent != "" {
			opts.UserAgent = cfg.Scraper.UserAgent
		}
		b, err := browser.New(opts, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize browser: %w", err)
		}
		defer b.Close()
		fetcher = b
	}

	metrics := scraper.NewMetrics()
	pipeline := scraper.New(scraper.Deps{
		Frontier: store,
		Products: store,
		Fetcher:  fetcher,
		Seen:     seen,
		Wrappers: wrappers,
		Keywords: keywords,
		Metrics:  metrics,
	}, scraper.Config{
		FetchTries:      cfg.Scraper.FetchTries,
		PollInterval:    cfg.Scraper.PollInterval,
		ShutdownTimeout: cfg.Scraper.ShutdownTimeout,
		QueueCapacity:   cfg.Scraper.QueueCapacity,
		FrontierBatch:   cfg.Scraper.FrontierBatch,
		StatsEvery:      cfg.Scraper.StatsEvery,
		CentsHeuristic:  cfg.Scraper.CentsHeuristic,
		AdaptiveDelay:   cfg.Scraper.AdaptiveDelay,
		MaxDelay:        cfg.Scraper.MaxDelay,
	}, logger)

	jobManager := jobs.NewManager(store, pipeline, jobs.Options{
		CrawlDelay: cfg.Scraper.CrawlDelay,
		Locale:     cfg.Scraper.Locale,
	}, logger)

	handlers := api.NewHandlers(api.Deps{
		Jobs:     jobManager,
		Pages:    store,
		Wrappers: store,
		Cache:    wrappers,
		Fetcher:  fetcher,
		Inducer:  induction.NewGenerator(keywords, logger),
		Outbox:   outbox,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handlers, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}), cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "storage", cfg.Storage.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down server...", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Scraper.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := jobManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("job shutdown failed", "error", err)
	}
	cancel()

	return nil
}
