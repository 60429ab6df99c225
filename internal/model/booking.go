package model

import "time"

// BookingStatus is the state of a durable booking.
type BookingStatus string

const (
    BookingConfirmed BookingStatus = "CONFIRMED"
    BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is the durable outcome of a confirmed hold.  Reference is the
// human readable PNR handed to the passenger.  SeatNumber and
// PassengerEmail are denormalised for responses and events; they are not
// columns of the bookings table.
type Booking struct {
    ID             uint64        `json:"id"`                       // bookings.id
    Reference      string        `json:"bookingReference"`         // bookings.booking_reference
    FlightID       uint64        `json:"flightId"`                 // bookings.flight_id
    SeatID         uint64        `json:"seatId"`                   // bookings.seat_id
    PassengerID    uint64        `json:"passengerId"`              // bookings.passenger_id
    Status         BookingStatus `json:"status"`                   // bookings.status
    CreatedAt      time.Time     `json:"createdAt"`                // bookings.created_at
    SeatNumber     string        `json:"seatNumber,omitempty"`     // seats.seat_number
    PassengerEmail string        `json:"passengerEmail,omitempty"` // passengers.email
}
