package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// FlightHandler serves the read-only flight catalogue.
type FlightHandler struct {
	reader ledger.Reader
}

func NewFlightHandler(reader ledger.Reader) *FlightHandler {
	if reader == nil {
		panic("nil reader passed to NewFlightHandler")
	}
	return &FlightHandler{reader: reader}
}

// ListFlights handles GET /api/v1/flights.
func (h *FlightHandler) ListFlights(c echo.Context) error {
	flights, err := h.reader.ListFlights(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if flights == nil {
		flights = []model.Flight{}
	}
	return c.JSON(http.StatusOK, echo.Map{"flights": flights})
}

// ListSeats handles GET /api/v1/flights/:id/seats and returns the seat map
// with each seat's current status.
func (h *FlightHandler) ListSeats(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid flight id"})
	}
	seats, err := h.reader.ListSeats(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if seats == nil {
		seats = []model.Seat{}
	}
	return c.JSON(http.StatusOK, echo.Map{"flightId": id, "seats": seats})
}
