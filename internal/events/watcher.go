package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultPricesKey is the Redis hash holding the last announced best price per ISBN.
const DefaultPricesKey = "book:best_prices"

// StreamClient is the subset of go-redis the watcher needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type WatcherConfig struct {
	Stream    string
	Group     string
	Consumer  string
	PricesKey string
	Block     time.Duration
	Count     int64
}

// PriceChange is a move of a book's best offer between two BOOK_UPDATED events.
type PriceChange struct {
	ISBN     string
	Title    string
	Previous decimal.Decimal
	Current  decimal.Decimal
	Currency string
	Site     string
	URL      string
}

func (c PriceChange) Drop() bool {
	return c.Current.LessThan(c.Previous)
}

type envelope struct {
	Payload BookUpdatedPayload `json:"payload"`
}

// PriceWatcher follows the book stream through a consumer group and reports
// best-offer price changes.
type PriceWatcher struct {
	client   StreamClient
	cfg      WatcherConfig
	logger   *slog.Logger
	onChange func(PriceChange)
}

func NewPriceWatcher(client StreamClient, cfg WatcherConfig, logger *slog.Logger) *PriceWatcher {
	if cfg.Group == "" {
		cfg.Group = "price-watcher-group"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "price-watcher-1"
	}
	if cfg.PricesKey == "" {
		cfg.PricesKey = DefaultPricesKey
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}

	w := &PriceWatcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "price_watcher"),
	}
	w.onChange = w.logChange
	return w
}

// OnChange replaces the default handler, which logs every change.
func (w *PriceWatcher) OnChange(fn func(PriceChange)) {
	w.onChange = fn
}

func (w *PriceWatcher) Run(ctx context.Context) error {
	err := w.client.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("starting consumer", "stream", w.cfg.Stream, "group", w.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *PriceWatcher) readOnce(ctx context.Context) error {
	streams, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    w.cfg.Group,
		Consumer: w.cfg.Consumer,
		Streams:  []string{w.cfg.Stream, ">"},
		Count:    w.cfg.Count,
		Block:    w.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			change, err := w.Handle(ctx, msg)
			if err != nil {
				// left pending for redelivery
				w.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if change != nil {
				w.onChange(*change)
			}

			if err := w.client.XAck(ctx, w.cfg.Stream, w.cfg.Group, msg.ID).Err(); err != nil {
				w.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
			}
		}
	}
	return nil
}

// Handle records the best price carried by one stream message and returns the
// change against the previously recorded price, if any.
func (w *PriceWatcher) Handle(ctx context.Context, msg redis.XMessage) (*PriceChange, error) {
	if eventType, _ := msg.Values["event_type"].(string); eventType != string(EventTypeBookUpdated) {
		return nil, nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing data in message %s", msg.ID)
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	book := env.Payload
	if book.ISBN == "" || book.BestOffer == nil {
		return nil, nil
	}
	current := book.BestOffer.Amount

	var change *PriceChange
	previous, err := w.client.HGet(ctx, w.cfg.PricesKey, book.ISBN).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("failed to read last price: %w", err)
	default:
		prev, err := decimal.NewFromString(previous)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last price %q: %w", previous, err)
		}
		if prev.Equal(current) {
			return nil, nil
		}
		change = &PriceChange{
			ISBN:     book.ISBN,
			Title:    book.Title,
			Previous: prev,
			Current:  current,
			Currency: book.BestOffer.Currency,
			Site:     book.BestOffer.Site,
			URL:      book.BestOffer.URL,
		}
	}

	if err := w.client.HSet(ctx, w.cfg.PricesKey, book.ISBN, current.String()).Err(); err != nil {
		return nil, fmt.Errorf("failed to record price: %w", err)
	}

	return change, nil
}

func (w *PriceWatcher) logChange(c PriceChange) {
	msg := "price increased"
	if c.Drop() {
		msg = "price dropped"
	}
	w.logger.Info(msg,
		"isbn", c.ISBN,
		"title", c.Title,
		"previous", c.Previous.String(),
		"current", c.Current.String(),
		"currency", c.Currency,
		"site", c.Site,
		"url", c.URL)
}
