package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Scraper  ScraperConfig
	Relay    RelayConfig
}

type ServerConfig struct {
	Port           int
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// RedisConfig is optional: an empty Addr keeps the seen-set in memory and
// disables the outbox relay.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Backend string
	File    string
}

// CacheConfig selects the wrapper cache. With MemcacheAddr set, the local
// LRU is backed by a shared memcached tier.
type CacheConfig struct {
	MemcacheAddr string
	Size         int
	TTL          time.Duration
}

type ScraperConfig struct {
	CrawlDelay      time.Duration
	FetchTimeout    time.Duration
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	UserAgent       string
	FetchTries      int
	Browser         bool
	Headless        bool
	Locale          string
	KeywordsFile    string
	QueueCapacity   int
	StatsEvery      int
	FrontierBatch   int
	CentsHeuristic  bool
	AdaptiveDelay   bool
	MaxDelay        time.Duration
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	StreamMaxLen int64
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8084),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "book_prices"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
			File:    getEnv("STORAGE_FILE", "bookscraper.json"),
		},
		Cache: CacheConfig{
			MemcacheAddr: getEnv("MEMCACHE_ADDR", ""),
			Size:         getEnvInt("WRAPPER_CACHE_SIZE", 256),
			TTL:          getDurationOrDefault("WRAPPER_CACHE_TTL", 10*time.Minute),
		},
		Scraper: ScraperConfig{
			CrawlDelay:      getDurationOrDefault("SCRAPER_CRAWL_DELAY", 5*time.Second),
			FetchTimeout:    getDurationOrDefault("SCRAPER_FETCH_TIMEOUT", 30*time.Second),
			PollInterval:    getDurationOrDefault("SCRAPER_POLL_INTERVAL", 500*time.Millisecond),
			ShutdownTimeout: getDurationOrDefault("SCRAPER_SHUTDOWN_TIMEOUT", 30*time.Second),
			UserAgent:       getEnv("SCRAPER_USER_AGENT", ""),
			FetchTries:      getEnvInt("SCRAPER_FETCH_TRIES", 2),
			Browser:         getEnvBool("SCRAPER_BROWSER", false),
			Headless:        getEnvBool("SCRAPER_HEADLESS", true),
			Locale:          getEnv("SCRAPER_LOCALE", "ro-RO"),
			KeywordsFile:    getEnv("SCRAPER_KEYWORDS_FILE", ""),
			QueueCapacity:   getEnvInt("SCRAPER_QUEUE_CAPACITY", 64),
			StatsEvery:      getEnvInt("SCRAPER_STATS_EVERY", 10000),
			FrontierBatch:   getEnvInt("SCRAPER_FRONTIER_BATCH", 100),
			CentsHeuristic:  getEnvBool("SCRAPER_CENTS_HEURISTIC", true),
			AdaptiveDelay:   getEnvBool("SCRAPER_ADAPTIVE_DELAY", false),
			MaxDelay:        getDurationOrDefault("SCRAPER_MAX_DELAY", time.Minute),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getEnvInt("RELAY_BATCH_SIZE", 100),
			StreamMaxLen: int64(getEnvInt("RELAY_STREAM_MAXLEN", 0)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Server.LogLevel)
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	case BackendFile:
		if c.Storage.File == "" {
			return fmt.Errorf("STORAGE_FILE is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}

	if c.Scraper.CrawlDelay < 0 {
		return fmt.Errorf("SCRAPER_CRAWL_DELAY cannot be negative")
	}
	if c.Scraper.FetchTries < 1 {
		return fmt.Errorf("SCRAPER_FETCH_TRIES must be at least 1")
	}
	if c.Scraper.QueueCapacity < 1 {
		return fmt.Errorf("SCRAPER_QUEUE_CAPACITY must be at least 1")
	}
	if c.Scraper.FrontierBatch < 1 {
		return fmt.Errorf("SCRAPER_FRONTIER_BATCH must be at least 1")
	}
	if c.Scraper.AdaptiveDelay && c.Scraper.MaxDelay < c.Scraper.CrawlDelay {
		return fmt.Errorf("SCRAPER_MAX_DELAY cannot be less than SCRAPER_CRAWL_DELAY")
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("WRAPPER_CACHE_SIZE must be at least 1")
	}
	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
