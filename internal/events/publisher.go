package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/book-price-scraper/internal/database"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	// EventTypeBookUpdated is emitted whenever a reconciled book is saved.
	EventTypeBookUpdated EventType = "BOOK_UPDATED"

	aggregateBook = "book"
)

// BookUpdatedPayload describes the stored state of a book after a merge.
type BookUpdatedPayload struct {
	EventID         string              `json:"event_id"`
	EventType       string              `json:"event_type"`
	Timestamp       time.Time           `json:"timestamp"`
	BookID          string              `json:"book_id"`
	ISBN            string              `json:"isbn"`
	Title           string              `json:"title,omitempty"`
	Authors         string              `json:"authors,omitempty"`
	Publisher       string              `json:"publisher,omitempty"`
	Format          string              `json:"format,omitempty"`
	Availability    models.Availability `json:"availability,omitempty"`
	BestOffer       *Offer              `json:"best_offer,omitempty"`
	PricePointCount int                 `json:"price_point_count"`
	Source          string              `json:"source"`
}

type Offer struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Site        string          `json:"site"`
	URL         string          `json:"url"`
	RetrievedAt time.Time       `json:"retrieved_at"`
}

func NewBookUpdatedPayload(book *models.Book) *BookUpdatedPayload {
	payload := &BookUpdatedPayload{
		EventID:         uuid.New().String(),
		EventType:       string(EventTypeBookUpdated),
		Timestamp:       time.Now().UTC(),
		BookID:          book.ID,
		ISBN:            book.ISBN,
		Title:           book.Title,
		Authors:         book.Authors,
		Publisher:       book.Publisher,
		Format:          book.Format,
		Availability:    book.Availability,
		PricePointCount: len(book.PricePointIDs),
		Source:          "scraper",
	}

	if pp := book.BestOffer; pp != nil {
		payload.BestOffer = &Offer{
			Amount:      pp.NominalValue,
			Currency:    pp.Currency,
			Site:        pp.Site,
			URL:         pp.URL,
			RetrievedAt: pp.RetrievedAt,
		}
	}

	return payload
}

// OutboxWriter inserts an event inside a caller-owned transaction.
type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher emits book events through the transactional outbox, so an event
// exists if and only if the book change committed.
type Publisher struct {
	outbox OutboxWriter
	stream string
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: outbox,
		stream: database.DefaultTargetStream,
		logger: logger.With("component", "event_publisher"),
	}
}

// BookSaved writes a BOOK_UPDATED event for book within tx.
func (p *Publisher) BookSaved(ctx context.Context, tx pgx.Tx, book *models.Book) error {
	payload := NewBookUpdatedPayload(book)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateBook,
		AggregateID:   book.ISBN,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Debug("event written to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"isbn", book.ISBN,
		"outbox_id", event.ID)

	return nil
}
