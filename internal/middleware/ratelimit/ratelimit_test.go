package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAllow_BurstThenRefill(t *testing.T) {
	l := New(Config{RequestsPerMinute: 2, Logger: zaptest.NewLogger(t)})
	defer l.Stop()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate buckets")

	clock = clock.Add(30 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestEvictIdle(t *testing.T) {
	l := New(Config{RequestsPerMinute: 5, IdleTTL: time.Minute})
	defer l.Stop()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	l.Allow("a")

	clock = clock.Add(2 * time.Minute)
	l.evictIdle()
	assert.Empty(t, l.buckets)
}

func TestMiddleware_Returns429(t *testing.T) {
	l := New(Config{RequestsPerMinute: 1})
	defer l.Stop()

	app := fiber.New()
	app.Use(l.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(ClientHeader, "client-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(ClientHeader, "client-1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}
