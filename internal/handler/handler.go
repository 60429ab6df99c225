// Package handler exposes the reservation core over HTTP.  Handlers only
// validate input, resolve the claimant and translate core errors to status
// codes; all seat state changes happen in internal/booking.
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/booking"
	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/middleware"
)

// Validator plugs go-playground/validator into echo.Context.Validate.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, "invalid "+fe.Field()+" ("+fe.Tag()+")")
	}
	return strings.Join(msgs, "; ")
}

// bindAndValidate decodes the body into req and runs its validate tags.
// The returned error is safe to show to the client.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid request body")
	}
	return c.Validate(req)
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}

// claimant is the token subject when a token was presented, otherwise the
// userId from the request body.
func claimant(c echo.Context, bodyUserID string) (string, bool) {
	if id, ok := middleware.UserID(c); ok {
		return id, true
	}
	id := strings.TrimSpace(bodyUserID)
	return id, id != ""
}

// writeError maps core and ledger errors onto HTTP responses.
func writeError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, booking.ErrAlreadyHeld):
		status, code = http.StatusConflict, "already_held"
	case errors.Is(err, booking.ErrSeatAlreadyHeld):
		status, code = http.StatusConflict, "seat_already_held"
	case errors.Is(err, booking.ErrSeatAlreadyBooked):
		status, code = http.StatusConflict, "seat_already_booked"
	case errors.Is(err, booking.ErrHoldExpiredOrForeign):
		status, code = http.StatusConflict, "hold_expired_or_foreign"
	case errors.Is(err, booking.ErrConcurrentBookingDetected):
		status, code = http.StatusConflict, "concurrent_booking_detected"
	case errors.Is(err, booking.ErrSeatNotFound):
		status, code = http.StatusNotFound, "seat_not_found"
	case errors.Is(err, ledger.ErrFlightNotFound):
		status, code = http.StatusNotFound, "flight_not_found"
	case errors.Is(err, ledger.ErrBookingNotFound):
		status, code = http.StatusNotFound, "booking_not_found"
	case booking.IsRetryable(err):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable", "code": "unavailable"})
	}
	if status == http.StatusInternalServerError {
		return c.JSON(status, echo.Map{"error": "internal error", "code": code})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": code})
}
