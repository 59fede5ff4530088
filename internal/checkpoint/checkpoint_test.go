package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "job:abc:seen", Key("abc"))
}

func TestRedisSeenSet(t *testing.T) {
	ctx := context.Background()

	t.Run("mark adds member and refreshes ttl", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		s := NewRedisSeenSet(db)

		mock.ExpectSAdd("job:j1:seen", "https://a.ro/1").SetVal(1)
		mock.ExpectExpire("job:j1:seen", SeenTTL).SetVal(true)

		require.NoError(t, s.Mark(ctx, "j1", "https://a.ro/1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("seen reports membership", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		s := NewRedisSeenSet(db)

		mock.ExpectSIsMember("job:j1:seen", "https://a.ro/1").SetVal(true)
		mock.ExpectSIsMember("job:j1:seen", "https://a.ro/2").SetVal(false)

		seen, err := s.Seen(ctx, "j1", "https://a.ro/1")
		require.NoError(t, err)
		assert.True(t, seen)

		seen, err = s.Seen(ctx, "j1", "https://a.ro/2")
		require.NoError(t, err)
		assert.False(t, seen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		s := NewRedisSeenSet(db)

		mock.ExpectSIsMember("job:j1:seen", "u").SetErr(errors.New("redis down"))
		_, err := s.Seen(ctx, "j1", "u")
		assert.ErrorContains(t, err, "failed to check seen-set")

		mock.ExpectSAdd("job:j1:seen", "u").SetErr(errors.New("redis down"))
		assert.ErrorContains(t, s.Mark(ctx, "j1", "u"), "failed to mark page seen")
	})

	t.Run("count and forget", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		s := NewRedisSeenSet(db)

		mock.ExpectSCard("job:j1:seen").SetVal(3)
		mock.ExpectDel("job:j1:seen").SetVal(1)

		n, err := s.Count(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		require.NoError(t, s.Forget(ctx, "j1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMemorySeenSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeenSet()

	seen, err := s.Seen(ctx, "j1", "u1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Mark(ctx, "j1", "u1"))
	require.NoError(t, s.Mark(ctx, "j1", "u1"))

	seen, _ = s.Seen(ctx, "j1", "u1")
	assert.True(t, seen)

	seen, _ = s.Seen(ctx, "j2", "u1")
	assert.False(t, seen, "seen-sets are per job")

	n, _ := s.Count(ctx, "j1")
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Forget(ctx, "j1"))
	n, _ = s.Count(ctx, "j1")
	assert.Equal(t, int64(0), n)
}
