package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/book-price-scraper/internal/database"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func sampleBook() *models.Book {
	return &models.Book{
		ID:            "b-1",
		ISBN:          "9786064301234",
		Title:         "Fundatia",
		Authors:       "Isaac Asimov",
		Availability:  models.AvailabilityAvailable,
		PricePointIDs: []string{"pp-1", "pp-2"},
		BestOffer: &models.PricePoint{
			ID:           "pp-2",
			NominalValue: decimal.RequireFromString("39.90"),
			Currency:     "RON",
			Site:         "a.ro",
			URL:          "https://a.ro/fundatia",
			RetrievedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestNewBookUpdatedPayload(t *testing.T) {
	payload := NewBookUpdatedPayload(sampleBook())

	assert.NotEmpty(t, payload.EventID)
	assert.Equal(t, "BOOK_UPDATED", payload.EventType)
	assert.Equal(t, "9786064301234", payload.ISBN)
	assert.Equal(t, 2, payload.PricePointCount)
	require.NotNil(t, payload.BestOffer)
	assert.Equal(t, "RON", payload.BestOffer.Currency)
	assert.Equal(t, "a.ro", payload.BestOffer.Site)

	noOffer := sampleBook()
	noOffer.BestOffer = nil
	assert.Nil(t, NewBookUpdatedPayload(noOffer).BestOffer)
}

func TestPublisher_BookSaved(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("inserts book event", func(t *testing.T) {
		outbox := new(MockOutbox)
		p := NewPublisher(outbox, logger)

		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			var body map[string]interface{}
			if err := json.Unmarshal(e.Payload, &body); err != nil {
				return false
			}
			offer, _ := body["best_offer"].(map[string]interface{})
			return e.AggregateType == "book" &&
				e.AggregateID == "9786064301234" &&
				e.EventType == "BOOK_UPDATED" &&
				e.TargetStream == database.DefaultTargetStream &&
				body["title"] == "Fundatia" &&
				offer["amount"] == "39.9"
		})).Return(nil)

		require.NoError(t, p.BookSaved(ctx, nil, sampleBook()))
		outbox.AssertExpectations(t)
	})

	t.Run("propagates outbox failure", func(t *testing.T) {
		outbox := new(MockOutbox)
		p := NewPublisher(outbox, logger)

		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("tx aborted"))

		err := p.BookSaved(ctx, nil, sampleBook())
		assert.ErrorContains(t, err, "failed to insert outbox event")
	})
}
