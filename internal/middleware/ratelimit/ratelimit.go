package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ClientHeader lets callers behind a shared proxy identify themselves.
const ClientHeader = "X-Client-ID"

type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// Limiter is a per-client token bucket. Each client may burst up to the
// per-minute allowance and then refills continuously.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   float64
	perSec  float64
	idleTTL time.Duration
	now     func() time.Time
	log     *zap.Logger
	ticker  *time.Ticker
	done    chan struct{}
}

type Config struct {
	RequestsPerMinute int
	IdleTTL           time.Duration
	Logger            *zap.Logger
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		burst:   float64(cfg.RequestsPerMinute),
		perSec:  float64(cfg.RequestsPerMinute) / 60,
		idleTTL: cfg.IdleTTL,
		now:     time.Now,
		log:     cfg.Logger,
		ticker:  time.NewTicker(cfg.IdleTTL / 2),
		done:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := ClientKey(c)
		if !l.Allow(key) {
			l.log.Warn("Rate limit exceeded",
				zap.String("client", key),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return c.Next()
	}
}

// ClientKey prefers the client header and falls back to the remote IP.
func ClientKey(c *fiber.Ctx) string {
	if id := c.Get(ClientHeader); id != "" {
		return id
	}
	return c.IP()
}

func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastSeen).Seconds() * l.perSec
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) evictLoop() {
	for {
		select {
		case <-l.ticker.C:
			l.evictIdle()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) Stop() {
	l.ticker.Stop()
	close(l.done)
}
