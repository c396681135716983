package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es el fixed window del RedisLimiter sobre go-cache.
// Sirve para una sola instancia o para tests.
type MemoryLimiter struct {
	mu  sync.Mutex
	c   *gocache.Cache
	now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{c: gocache.New(time.Minute, time.Minute), now: time.Now}
}

func (m *MemoryLimiter) AllowWithLimits(_ context.Context, key string, limit int, size time.Duration) (Result, error) {
	start, left := window(m.now().UTC(), size)
	k := fmt.Sprintf("%s:%d", key, start.Unix())

	m.mu.Lock()
	defer m.mu.Unlock()
	hits := int64(1)
	if err := m.c.Add(k, hits, left); err != nil {
		v, err := m.c.IncrementInt64(k, 1)
		if err != nil {
			return Result{}, err
		}
		hits = v
	}
	return result(hits, int64(limit), left), nil
}
