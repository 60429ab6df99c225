package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is implemented by the backing stores (sql.DB, redis.Client
// wrapped by the caller).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Health reports 200 "ok" when every dependency answers a ping within two
// seconds and 503 naming the first one that does not.
func Health(deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "dependency": name})
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
