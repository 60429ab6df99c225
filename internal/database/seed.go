package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
	"github.com/iliyamo/flight-seat-reservation/internal/repository"
)

// DemoFlight describes the flight seeded into an empty ledger: SH-101
// departing a day after now with four business and eight economy seats.
// Seat FlightIDs are left zero.
func DemoFlight(now time.Time) (model.Flight, []model.Seat) {
	dep := now.UTC().Add(24 * time.Hour).Truncate(time.Minute)
	f := model.Flight{
		FlightNumber:  "SH-101",
		DepartureTime: dep,
		ArrivalTime:   dep.Add(3 * time.Hour),
		AircraftType:  "Boeing 737",
	}
	var seats []model.Seat
	add := func(row string, class model.SeatClass) {
		for _, letter := range []string{"A", "B", "C", "D"} {
			seats = append(seats, model.Seat{SeatNumber: row + letter, Class: class, Status: model.SeatAvailable})
		}
	}
	add("1", model.SeatClassBusiness)
	add("10", model.SeatClassEconomy)
	add("20", model.SeatClassEconomy)
	return f, seats
}

// Seed inserts the demo flight when the flights table is empty.  It reports
// whether anything was written.
func Seed(ctx context.Context, db *sql.DB, log logrus.FieldLogger) (bool, error) {
	flights := repository.NewFlightRepo(db)
	n, err := flights.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count flights: %w", err)
	}
	if n > 0 {
		log.Info("data already initialized, skipping seed")
		return false, nil
	}

	f, seats := DemoFlight(time.Now())
	f, err = flights.Create(ctx, f)
	if err != nil {
		return false, fmt.Errorf("create flight: %w", err)
	}
	for i := range seats {
		seats[i].FlightID = f.ID
	}
	if err := repository.NewSeatRepo(db).CreateBulk(ctx, seats); err != nil {
		return false, fmt.Errorf("create seats: %w", err)
	}
	log.WithFields(logrus.Fields{"flight_id": f.ID, "seats": len(seats)}).Info("demo flight SH-101 created")
	return true, nil
}
