package rate

import (
	"context"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// MultiRedisLimiter comparte un cliente redis entre endpoints con límites
// distintos; reutiliza un RedisLimiter por par limit/window.
type MultiRedisLimiter struct {
	client *rdb.Client
	prefix string

	mu       sync.Mutex
	limiters map[limitKey]*RedisLimiter
}

type limitKey struct {
	limit  int
	window time.Duration
}

func NewMultiRedisLimiter(client *rdb.Client, prefix string) *MultiRedisLimiter {
	return &MultiRedisLimiter{client: client, prefix: prefix, limiters: map[limitKey]*RedisLimiter{}}
}

func (m *MultiRedisLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	k := limitKey{limit: limit, window: window}
	m.mu.Lock()
	l, ok := m.limiters[k]
	if !ok {
		l = NewRedisLimiter(m.client, m.prefix, limit, window)
		m.limiters[k] = l
	}
	m.mu.Unlock()
	return l.Allow(ctx, key)
}

// MultiLimiter aplica límites distintos por endpoint sobre el mismo backend.
type MultiLimiter interface {
	AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Fixed fija limit/window de un MultiLimiter y lo expone como Limiter.
// Cada endpoint usa su propio scope para no compartir contadores.
func Fixed(m MultiLimiter, scope string, limit int, window time.Duration) Limiter {
	return fixedLimiter{m: m, scope: scope, limit: limit, window: window}
}

type fixedLimiter struct {
	m      MultiLimiter
	scope  string
	limit  int
	window time.Duration
}

func (f fixedLimiter) Allow(ctx context.Context, key string) (Result, error) {
	return f.m.AllowWithLimits(ctx, f.scope+":"+key, f.limit, f.window)
}
