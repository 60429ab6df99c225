package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

const seatColumns = "id, flight_id, seat_number, seat_class, status, version, updated_at"

// SeatRepo encapsulates database operations for seats.
type SeatRepo struct {
	db *sql.DB
}

func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeat(row rowScanner) (model.Seat, error) {
	var s model.Seat
	err := row.Scan(&s.ID, &s.FlightID, &s.SeatNumber, &s.Class, &s.Status, &s.Version, &s.UpdatedAt)
	return s, err
}

// LockByNumberTx reads the seat and takes its row lock in one statement.
// The lock is held until tx ends.
func (r *SeatRepo) LockByNumberTx(ctx context.Context, tx *sql.Tx, flightID uint64, seatNumber string) (model.Seat, error) {
	s, err := scanSeat(tx.QueryRowContext(ctx,
		"SELECT "+seatColumns+" FROM seats WHERE flight_id = ? AND seat_number = ? FOR UPDATE",
		flightID, seatNumber))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Seat{}, ledger.ErrSeatNotFound
	case isLockTimeout(err):
		return model.Seat{}, ledger.ErrLockTimeout
	case err != nil:
		return model.Seat{}, err
	}
	return s, nil
}

// SaveTx writes the seat's status guarded by its version.  On success the
// struct's Version and UpdatedAt are advanced to match the row.
func (r *SeatRepo) SaveTx(ctx context.Context, tx *sql.Tx, s *model.Seat, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE seats SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
		s.Status, now, s.ID, s.Version)
	if err != nil {
		if isLockTimeout(err) {
			return ledger.ErrLockTimeout
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}

// ListStaleHeld returns HELD seats last written before cutoff, oldest first.
func (r *SeatRepo) ListStaleHeld(ctx context.Context, cutoff time.Time) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+seatColumns+" FROM seats WHERE status = ? AND updated_at < ? ORDER BY updated_at, id",
		model.SeatHeld, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeats(rows)
}

// ListByFlight returns the seat map of a flight ordered by id.
func (r *SeatRepo) ListByFlight(ctx context.Context, flightID uint64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+seatColumns+" FROM seats WHERE flight_id = ? ORDER BY id", flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSeats(rows)
}

func collectSeats(rows *sql.Rows) ([]model.Seat, error) {
	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateBulk inserts seats for a flight in a single statement.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := "INSERT INTO seats (flight_id, seat_number, seat_class, status, version) VALUES "
	args := make([]any, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, 0)"
		status := s.Status
		if status == "" {
			status = model.SeatAvailable
		}
		args = append(args, s.FlightID, s.SeatNumber, s.Class, status)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
