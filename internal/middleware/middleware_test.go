package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(opts ...Option) (*fiber.App, Middleware) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mw := New(logger, opts...)

	app := fiber.New()
	app.Use(mw.NewRequestIDMiddleware())
	app.Use(mw.NewLoggingMiddleware)
	app.Get("/limited", mw.NewRateLimiter, func(c *fiber.Ctx) error {
		return c.SendString(mw.GetRequestID(c))
	})
	return app, mw
}

func TestRateLimiter(t *testing.T) {
	app, _ := newTestApp(WithRateLimit(0.001, 2))

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	assert.Equal(t, "1000", resp.Header.Get(fiber.HeaderRetryAfter))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Too many requests"}`, string(body))
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	limiter := newRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	first := limiter.GetLimiterFrom("10.0.0.1")
	limiter.GetLimiterFrom("10.0.0.2")

	now = now.Add(5 * time.Minute)
	limiter.GetLimiterFrom("10.0.0.2")

	now = now.Add(clientIdleTTL - time.Minute)
	limiter.GetLimiterFrom("10.0.0.2")
	assert.Len(t, limiter.clients, 1)
	assert.NotSame(t, first, limiter.GetLimiterFrom("10.0.0.1"))
}

func TestLimiterPerIP(t *testing.T) {
	limiter := newRateLimiter(1, 1)

	assert.Same(t, limiter.GetLimiterFrom("10.0.0.1"), limiter.GetLimiterFrom("10.0.0.1"))
	assert.NotSame(t, limiter.GetLimiterFrom("10.0.0.1"), limiter.GetLimiterFrom("10.0.0.2"))
}

func TestRequestIDGenerated(t *testing.T) {
	app, _ := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil), -1)
	require.NoError(t, err)

	id := resp.Header.Get(RequestIDKey)
	assert.Len(t, id, 26)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, id, string(body))
}

func TestRequestIDPropagated(t *testing.T) {
	app, _ := newTestApp()

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.Header.Set(RequestIDKey, "client-supplied")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "client-supplied", resp.Header.Get(RequestIDKey))
}

func TestGetRequestIDUnknown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mw := New(logger)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(mw.GetRequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "unknown", string(body))
}
