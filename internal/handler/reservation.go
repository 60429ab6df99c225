package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/booking"
	"github.com/iliyamo/flight-seat-reservation/internal/fee"
	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// ReservationHandler serves holds and bookings.
type ReservationHandler struct {
	coord     *booking.Coordinator
	finalizer *booking.Finalizer
	reader    ledger.Reader
}

// NewReservationHandler panics on nil dependencies.
func NewReservationHandler(coord *booking.Coordinator, finalizer *booking.Finalizer, reader ledger.Reader) *ReservationHandler {
	if coord == nil || finalizer == nil || reader == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{coord: coord, finalizer: finalizer, reader: reader}
}

type seatRequest struct {
	FlightID   uint64 `json:"flightId" validate:"gt=0"`
	SeatNumber string `json:"seatNumber" validate:"required,min=2,max=5,alphanum"`
	UserID     string `json:"userId" validate:"max=64"`
}

type confirmRequest struct {
	seatRequest
	Email            string  `json:"email" validate:"required,email,max=255"`
	BaggageWeightKg  float64 `json:"baggageWeightKg" validate:"gte=0,lte=500"`
	PaymentProcessed bool    `json:"paymentProcessed"`
}

type holdResponse struct {
	HoldID           string `json:"holdId"`
	FlightID         uint64 `json:"flightId"`
	SeatNumber       string `json:"seatNumber"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

type bookingResponse struct {
	model.Booking
	BaggageFeeCents int64 `json:"baggageFeeCents"`
}

// HoldSeat handles POST /api/v1/seats/hold.  The seat stays reserved for
// the claimant until the hold TTL lapses or they confirm or release it.
func (h *ReservationHandler) HoldSeat(c echo.Context) error {
	var req seatRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	who, ok := claimant(c, req.UserID)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}
	seat := strings.ToUpper(req.SeatNumber)

	holdID, err := h.coord.Hold(c.Request().Context(), req.FlightID, seat, who)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, holdResponse{
		HoldID:           holdID,
		FlightID:         req.FlightID,
		SeatNumber:       seat,
		ExpiresInSeconds: int(h.coord.HoldTTL().Seconds()),
	})
}

// ReleaseHold handles DELETE /api/v1/seats/hold.
func (h *ReservationHandler) ReleaseHold(c echo.Context) error {
	var req seatRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	who, ok := claimant(c, req.UserID)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}
	if err := h.coord.Release(c.Request().Context(), req.FlightID, strings.ToUpper(req.SeatNumber), who); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmBooking handles POST /api/v1/bookings/confirm.  Excess baggage
// must be paid before the booking is written.
func (h *ReservationHandler) ConfirmBooking(c echo.Context) error {
	var req confirmRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	who, ok := claimant(c, req.UserID)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	baggageFee := fee.Baggage(req.BaggageWeightKg)
	if baggageFee > 0 && !req.PaymentProcessed {
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"error":           "excess baggage fee must be paid",
			"baggageFeeCents": baggageFee,
		})
	}

	b, err := h.finalizer.Confirm(c.Request().Context(), req.FlightID, strings.ToUpper(req.SeatNumber), who, req.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bookingResponse{Booking: b, BaggageFeeCents: baggageFee})
}

// GetBooking handles GET /api/v1/bookings/:reference.
func (h *ReservationHandler) GetBooking(c echo.Context) error {
	ref := strings.ToUpper(strings.TrimSpace(c.Param("reference")))
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking reference"})
	}
	b, err := h.reader.FindBooking(c.Request().Context(), ref)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
