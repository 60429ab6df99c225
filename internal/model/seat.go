package model

import "time"

// SeatClass is the cabin a seat belongs to.
type SeatClass string

const (
    SeatClassEconomy  SeatClass = "ECONOMY"
    SeatClassBusiness SeatClass = "BUSINESS"
    SeatClassFirst    SeatClass = "FIRST"
)

// SeatStatus is the ledger side of a seat's lifecycle.  A seat starts
// AVAILABLE, becomes HELD while a claimant owns the fast lock and ends
// CONFIRMED once a booking is committed.  HELD may fall back to AVAILABLE
// (release, expiry, reaper); nothing leaves CONFIRMED.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "AVAILABLE"
    SeatHeld      SeatStatus = "HELD"
    SeatConfirmed SeatStatus = "CONFIRMED"
)

// Seat is a single seat on a flight, unique by (FlightID, SeatNumber).
//
// Fields:
//  ID         – primary key identifier.
//  FlightID   – flight the seat belongs to.
//  SeatNumber – row and letter, e.g. 1A or 20D.
//  Class      – cabin class.
//  Status     – AVAILABLE, HELD or CONFIRMED.
//  Version    – incremented on every write; used to detect lost updates.
//  UpdatedAt  – time of the last status write.  The reaper compares it
//               against the hold TTL to find abandoned holds.
type Seat struct {
    ID         uint64     `json:"id"`         // seats.id
    FlightID   uint64     `json:"flightId"`   // seats.flight_id
    SeatNumber string     `json:"seatNumber"` // seats.seat_number
    Class      SeatClass  `json:"seatClass"`  // seats.seat_class
    Status     SeatStatus `json:"status"`     // seats.status
    Version    uint64     `json:"version"`    // seats.version
    UpdatedAt  time.Time  `json:"updatedAt"`  // seats.updated_at
}
