// Package checkpoint records which pages a job has already processed so an
// interrupted job can resume without refetching them.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenTTL bounds how long a job's seen-set outlives its last write.
const SeenTTL = 7 * 24 * time.Hour

// RedisClient is the subset of go-redis the seen-set needs.
type RedisClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisSeenSet struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisSeenSet(client RedisClient) *RedisSeenSet {
	return &RedisSeenSet{client: client, ttl: SeenTTL}
}

func Key(jobID string) string {
	return "job:" + jobID + ":seen"
}

func (s *RedisSeenSet) Seen(ctx context.Context, jobID, url string) (bool, error) {
	seen, err := s.client.SIsMember(ctx, Key(jobID), url).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check seen-set: %w", err)
	}
	return seen, nil
}

func (s *RedisSeenSet) Mark(ctx context.Context, jobID, url string) error {
	key := Key(jobID)
	if err := s.client.SAdd(ctx, key, url).Err(); err != nil {
		return fmt.Errorf("failed to mark page seen: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh seen-set ttl: %w", err)
	}
	return nil
}

func (s *RedisSeenSet) Count(ctx context.Context, jobID string) (int64, error) {
	n, err := s.client.SCard(ctx, Key(jobID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count seen-set: %w", err)
	}
	return n, nil
}

func (s *RedisSeenSet) Forget(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, Key(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete seen-set: %w", err)
	}
	return nil
}

// MemorySeenSet keeps seen-sets in process. Used when Redis is not
// configured; resume then only works within one process lifetime.
type MemorySeenSet struct {
	mu   sync.RWMutex
	jobs map[string]map[string]struct{}
}

func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{jobs: make(map[string]map[string]struct{})}
}

func (s *MemorySeenSet) Seen(_ context.Context, jobID, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[jobID][url]
	return ok, nil
}

func (s *MemorySeenSet) Mark(_ context.Context, jobID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.jobs[jobID]
	if !ok {
		set = make(map[string]struct{})
		s.jobs[jobID] = set
	}
	set[url] = struct{}{}
	return nil
}

func (s *MemorySeenSet) Count(_ context.Context, jobID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.jobs[jobID])), nil
}

func (s *MemorySeenSet) Forget(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}
