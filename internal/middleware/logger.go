package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestID reuses the caller's X-Request-Id or assigns a fresh one, and
// echoes it back on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.Set(ctxRequestID, id)
			return next(c)
		}
	}
}

// RequestLogger writes one line per request. Errors returned by the
// handler chain are passed to the echo error handler first so the logged
// status is the one the client saw.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			entry := log.WithFields(logrus.Fields{
				"method":      c.Request().Method,
				"path":        c.Path(),
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  RequestIDFrom(c),
				"client_ip":   c.RealIP(),
			})
			if u, ok := CurrentUser(c); ok {
				entry = entry.WithField("user_id", u.ID)
			}
			switch {
			case status >= 500:
				entry.Error("http request completed")
			case status >= 400:
				entry.Warn("http request completed")
			default:
				entry.Info("http request completed")
			}
			// already handled
			return nil
		}
	}
}
