package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// WindowStore counts requests per client within a fixed window. The
// store is injected so the limiter has an explicit lifecycle instead of
// a process-wide counter map.
type WindowStore interface {
	// Incr bumps the counter for key and returns its new value. The first
	// increment of a window arms its expiry.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisWindowStore keeps counters in redis so every API replica shares
// one window.
type RedisWindowStore struct {
	client *redis.Client
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count, nil
}

// MemoryWindowStore is the single-process fallback used in development
// and tests. Expired windows are dropped on access.
type MemoryWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
	resets map[string]time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		counts: make(map[string]int64),
		resets: make(map[string]time.Time),
	}
}

func (s *MemoryWindowStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if reset, ok := s.resets[key]; !ok || now.After(reset) {
		s.counts[key] = 0
		s.resets[key] = now.Add(window)
	}
	s.counts[key]++
	return s.counts[key], nil
}

// RateLimitMiddleware enforces a fixed-window limit per client IP.
// On store failure the request is let through; availability wins over
// strictness here.
func RateLimitMiddleware(store WindowStore, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s", c.ClientIP())

		count, err := store.Incr(c.Request.Context(), key, window)
		if err != nil {
			c.Next()
			return
		}

		if count > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
