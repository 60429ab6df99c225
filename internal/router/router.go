// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/config"
	"github.com/iliyamo/flight-seat-reservation/internal/handler"
	"github.com/iliyamo/flight-seat-reservation/internal/middleware"
)

// Deps holds everything the routes need.  Redis may be nil, which turns the
// rate limiter and the response cache into no-ops.
type Deps struct {
	Reservations *handler.ReservationHandler
	Waitlist     *handler.WaitlistHandler
	Flights      *handler.FlightHandler
	Health       echo.HandlerFunc
	Gatherer     prometheus.Gatherer
	Redis        *redis.Client
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	JWTSecret    string
	Log          logrus.FieldLogger
}

// RegisterRoutes registers the operational endpoints and the /api/v1 API.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api/v1")
	if d.JWTSecret != "" {
		api.Use(middleware.JWTAuth(d.JWTSecret))
	}

	// The flight list changes only when flights are added, so it is cached.
	// Seat maps are not: they must reflect holds immediately.
	api.GET("/flights", d.Flights.ListFlights, middleware.NewRedisCache(d.Cache, d.Redis, d.Log))
	api.GET("/flights/:id/seats", d.Flights.ListSeats)
	api.GET("/bookings/:reference", d.Reservations.GetBooking)
	api.GET("/waitlist/:flightId/:userId", d.Waitlist.Position)

	rl := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)
	api.POST("/seats/hold", d.Reservations.HoldSeat, rl)
	api.DELETE("/seats/hold", d.Reservations.ReleaseHold, rl)
	api.POST("/bookings/confirm", d.Reservations.ConfirmBooking, rl)
	api.POST("/waitlist/join", d.Waitlist.Join, rl)
}
