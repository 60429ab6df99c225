package model

import "time"

// Flight is a scheduled departure whose seats can be reserved.
//
// Fields:
//  ID            – primary key identifier.
//  FlightNumber  – carrier code and number, unique (e.g. SH-101).
//  DepartureTime – scheduled departure in UTC.
//  ArrivalTime   – scheduled arrival in UTC.
//  AircraftType  – free-form aircraft designation.
type Flight struct {
    ID            uint64    `json:"id"`            // flights.id
    FlightNumber  string    `json:"flightNumber"`  // flights.flight_number
    DepartureTime time.Time `json:"departureTime"` // flights.departure_time
    ArrivalTime   time.Time `json:"arrivalTime"`   // flights.arrival_time
    AircraftType  string    `json:"aircraftType"`  // flights.aircraft_type
}
