// Command book-events follows the book update stream and logs best-offer
// price changes.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/book-price-scraper/internal/config"
	"github.com/maltedev/book-price-scraper/internal/database"
	"github.com/maltedev/book-price-scraper/internal/events"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.Redis.Addr == "" {
		log.Fatal("REDIS_ADDR must be set")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	hostname, _ := os.Hostname()
	watcher := events.NewPriceWatcher(rdb, events.WatcherConfig{
		Stream:   database.DefaultTargetStream,
		Consumer: "price-watcher-" + hostname,
	}, logger)

	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Watcher stopped: %v", err)
	}
	logger.Info("Watcher stopped")
}
