package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter limita la frecuencia de envio de mensajes por clave (normalmente el user id).
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// memoryRateLimiter es un token bucket por clave; sirve como fallback sin redis.
type memoryRateLimiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	buckets  map[string]*bucket
	now      func() time.Time
}

// NewMemoryRateLimiter permite burst mensajes por ventana, recargando de forma continua.
func NewMemoryRateLimiter(burst int, window time.Duration) RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &memoryRateLimiter{
		capacity: float64(burst),
		rate:     float64(burst) / window.Seconds(),
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

func (l *memoryRateLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastCheck: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
	}
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

const redisAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisRateLimiter usa una ventana fija compartida entre procesos.
type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "chat:rl:",
	}
}

func (l *redisRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	count, err := l.client.Eval(ctx, redisAllowScript, []string{l.prefix + normalizedKey}, seconds).Int()
	if err != nil {
		// fail-open: redis caido no debe cortar el chat
		return true
	}
	return count <= l.max
}
