package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/booking"
)

// WaitlistHandler lets users queue for a seat on a full flight.
// Positions in responses are 1-based.
type WaitlistHandler struct {
	waitlist *booking.Waitlist
}

func NewWaitlistHandler(w *booking.Waitlist) *WaitlistHandler {
	if w == nil {
		panic("nil waitlist passed to NewWaitlistHandler")
	}
	return &WaitlistHandler{waitlist: w}
}

type joinRequest struct {
	FlightID uint64 `json:"flightId" validate:"gt=0"`
	UserID   string `json:"userId" validate:"max=64"`
}

// Join handles POST /api/v1/waitlist/join.  A user already on the list gets
// 400 together with their current position.
func (h *WaitlistHandler) Join(c echo.Context) error {
	var req joinRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	who, ok := claimant(c, req.UserID)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	res, err := h.waitlist.Join(c.Request().Context(), req.FlightID, who)
	switch {
	case errors.Is(err, booking.ErrWaitlistDuplicate):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "position": res.Position + 1})
	case err != nil:
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"position": res.Position + 1})
}

// Position handles GET /api/v1/waitlist/:flightId/:userId.
func (h *WaitlistHandler) Position(c echo.Context) error {
	flightID, err := strconv.ParseUint(c.Param("flightId"), 10, 64)
	if err != nil || flightID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid flight id"})
	}
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	rank, ok, err := h.waitlist.Position(c.Request().Context(), flightID, userID)
	if err != nil {
		return writeError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user is not on the waitlist"})
	}
	return c.JSON(http.StatusOK, echo.Map{"position": rank + 1})
}
