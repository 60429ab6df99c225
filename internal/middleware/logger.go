package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one access log line per request.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let Echo render the error so the logged status is final.
				c.Error(err)
			}
			req := c.Request()
			entry := log.WithFields(logrus.Fields{
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     c.Response().Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"ip":         c.RealIP(),
			})
			switch status := c.Response().Status; {
			case status >= 500:
				entry.Error("request")
			case status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}
