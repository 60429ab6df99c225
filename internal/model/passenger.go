package model

import "time"

// Passenger is identified by email.  Passengers created implicitly during
// confirmation get placeholder names.
type Passenger struct {
    ID        uint64    `json:"id"`        // passengers.id
    Email     string    `json:"email"`     // passengers.email
    FirstName string    `json:"firstName"` // passengers.first_name
    LastName  string    `json:"lastName"`  // passengers.last_name
    CreatedAt time.Time `json:"createdAt"` // passengers.created_at
}

// Placeholder names used when a passenger is created from an email only.
const (
    GuestFirstName = "Guest"
    GuestLastName  = "Passenger"
)
