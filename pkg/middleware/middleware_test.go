package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"portfolio-advisor/pkg/logger"
)

func TestWithRequestContext(t *testing.T) {
	e := echo.New()
	e.Use(WithRequestContext(logger.NewNop(), time.Second))

	var hadDeadline bool
	e.GET("/ping", func(c echo.Context) error {
		_, hadDeadline = c.Request().Context().Deadline()
		return c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	assert.True(t, hadDeadline)
}

func TestRateLimiterMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(NewRateLimiterMiddleware(1, 1))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/x", nil))
	second := httptest.NewRecorder()
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get(echo.HeaderRetryAfter))
	assert.Contains(t, second.Body.String(), `"code":429`)
}

func TestRateLimiterMiddleware_Disabled(t *testing.T) {
	e := echo.New()
	e.Use(NewRateLimiterMiddleware(0, 0))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
