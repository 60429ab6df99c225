package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// FlightRepo encapsulates database operations for flights.
type FlightRepo struct {
	db *sql.DB
}

func NewFlightRepo(db *sql.DB) *FlightRepo { return &FlightRepo{db: db} }

func (r *FlightRepo) List(ctx context.Context) ([]model.Flight, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, flight_number, departure_time, arrival_time, aircraft_type FROM flights ORDER BY departure_time, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Flight
	for rows.Next() {
		var f model.Flight
		if err := rows.Scan(&f.ID, &f.FlightNumber, &f.DepartureTime, &f.ArrivalTime, &f.AircraftType); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FlightRepo) GetByID(ctx context.Context, id uint64) (model.Flight, error) {
	var f model.Flight
	err := r.db.QueryRowContext(ctx,
		"SELECT id, flight_number, departure_time, arrival_time, aircraft_type FROM flights WHERE id = ?",
		id).Scan(&f.ID, &f.FlightNumber, &f.DepartureTime, &f.ArrivalTime, &f.AircraftType)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Flight{}, ledger.ErrFlightNotFound
	}
	return f, err
}

// Create inserts f and returns it with its ID.
func (r *FlightRepo) Create(ctx context.Context, f model.Flight) (model.Flight, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO flights (flight_number, departure_time, arrival_time, aircraft_type) VALUES (?, ?, ?, ?)",
		f.FlightNumber, f.DepartureTime, f.ArrivalTime, f.AircraftType)
	if err != nil {
		return model.Flight{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Flight{}, err
	}
	f.ID = uint64(id)
	return f, nil
}

func (r *FlightRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flights").Scan(&n)
	return n, err
}
