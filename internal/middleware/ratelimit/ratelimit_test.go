package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestLimitsPerCustomer(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 1, Burst: 2})
	defer rl.Stop()
	app := newApp(rl)

	get := func(customer string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(CustomerHeader, customer)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, get("1001"))
	assert.Equal(t, fiber.StatusOK, get("1001"))
	assert.Equal(t, fiber.StatusTooManyRequests, get("1001"))

	// other customers keep their own bucket
	assert.Equal(t, fiber.StatusOK, get("1002"))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	rl.Stop()
}

func TestAllowCustomerSharesHeaderBucket(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 1, Burst: 1})
	defer rl.Stop()
	app := newApp(rl)

	assert.True(t, rl.AllowCustomer(1001, "websocket"))
	assert.False(t, rl.AllowCustomer(1001, "websocket"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(CustomerHeader, "1001")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	assert.True(t, rl.AllowCustomer(1002, "websocket"))
}
