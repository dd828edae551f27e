package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"portfolio-advisor/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// WithRequestContext attaches a request id, a request-scoped logger and a
// deadline to every request context.
func WithRequestContext(log *logger.Logger, timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, requestID)

			ctx := req.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			reqLog := log.With(
				logger.StringField("request_id", requestID),
				logger.StringField("method", req.Method),
				logger.StringField("path", c.Path()),
			)
			ctx = logger.NewContext(ctx, reqLog)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			reqLog.Info("request completed",
				logger.IntField("status", c.Response().Status),
				logger.Field("latency", time.Since(start).String()),
			)
			return err
		}
	}
}
