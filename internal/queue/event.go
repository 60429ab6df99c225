// Package queue carries domain events over RabbitMQ: a publisher used by
// the booking core and a consumer that appends every event to an audit log.
package queue

import (
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Durable queue names, also used as routing keys on the default exchange.
const (
	BookingConfirmedQueue = "booking.confirmed"
	SeatAvailableQueue    = "seat.available"
)

// BookingConfirmedEvent is published once a booking has committed.  It
// contains enough information for downstream consumers to log or notify
// without querying the ledger.
type BookingConfirmedEvent struct {
	BookingReference string `json:"booking_reference"`
	FlightID         uint64 `json:"flight_id"`
	SeatNumber       string `json:"seat_number"`
	PassengerEmail   string `json:"passenger_email"`
	ConfirmedAt      string `json:"confirmed_at"`
}

// SeatAvailableEvent tells a waitlisted user that a seat on their flight
// was freed.
type SeatAvailableEvent struct {
	FlightID   uint64 `json:"flight_id"`
	SeatNumber string `json:"seat_number"`
	UserID     string `json:"user_id"`
	ReleasedAt string `json:"released_at"`
}

func newBookingConfirmedEvent(b model.Booking) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		BookingReference: b.Reference,
		FlightID:         b.FlightID,
		SeatNumber:       b.SeatNumber,
		PassengerEmail:   b.PassengerEmail,
		ConfirmedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
