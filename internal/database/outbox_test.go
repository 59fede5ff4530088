package database

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{40, 5 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryBackoff(tt.retries), "retries=%d", tt.retries)
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "books"}
	assert.Equal(t, "postgres://u:p@db:5432/books?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "book",
		AggregateID:   "9786064301234",
		EventType:     "BOOK_UPDATED",
		Payload:       json.RawMessage(`{"isbn":"9786064301234"}`),
	}

	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, OutboxStatusPending, event.Status)
	assert.Equal(t, DefaultTargetStream, event.TargetStream)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	require.NoError(t, repo.MarkFailed(ctx, event.ID, errors.New("redis down")))
	var status string
	var retries int
	require.NoError(t, db.QueryRow(ctx,
		"SELECT status, retry_count FROM outbox_event WHERE id = $1", event.ID).Scan(&status, &retries))
	assert.Equal(t, OutboxStatusFailed, status)
	assert.Equal(t, 1, retries)

	require.NoError(t, repo.MarkProcessed(ctx, event.ID))
	assert.ErrorIs(t, repo.MarkProcessed(ctx, uuid.New()), ErrOutboxEventNotFound)
	assert.ErrorIs(t, repo.MarkFailed(ctx, uuid.New(), errors.New("x")), ErrOutboxEventNotFound)
}

func TestOutboxRepository_RollbackDiscardsEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "book",
		AggregateID:   "rollback",
		EventType:     "BOOK_UPDATED",
		Payload:       json.RawMessage(`{}`),
	}

	sentinel := errors.New("abort")
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := repo.InsertWithTx(ctx, tx, event); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM outbox_event WHERE id = $1", event.ID).Scan(&count))
	assert.Zero(t, count)
}

// setupTestDB connects to TEST_DATABASE_URL and applies the schema. Tests
// are skipped when it is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := &DB{pool: pool}
	require.NoError(t, db.Migrate(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE outbox_event, books, price_points, pages, scrape_jobs, wrappers`)
	require.NoError(t, err)

	return db
}
