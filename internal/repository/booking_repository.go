package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// BookingRepo encapsulates database operations for bookings.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts b and sets its ID.  A second CONFIRMED booking for the
// same seat violates uq_bookings_confirmed_seat and maps to
// ledger.ErrDuplicateBooking; a reused reference violates
// uq_bookings_reference and maps to ledger.ErrReferenceTaken.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (booking_reference, flight_id, seat_id, passenger_id, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		b.Reference, b.FlightID, b.SeatID, b.PassengerID, b.Status, b.CreatedAt)
	if err != nil {
		switch {
		case isDuplicateOn(err, "uq_bookings_reference"):
			return ledger.ErrReferenceTaken
		case isDuplicate(err):
			return ledger.ErrDuplicateBooking
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByReference loads a booking together with its seat number and
// passenger email.
func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (model.Booking, error) {
	var b model.Booking
	err := r.db.QueryRowContext(ctx, `
        SELECT b.id, b.booking_reference, b.flight_id, b.seat_id, b.passenger_id, b.status, b.created_at,
               s.seat_number, p.email
        FROM bookings b
        JOIN seats s ON s.id = b.seat_id
        JOIN passengers p ON p.id = b.passenger_id
        WHERE b.booking_reference = ?
        LIMIT 1`, reference).Scan(
		&b.ID, &b.Reference, &b.FlightID, &b.SeatID, &b.PassengerID, &b.Status, &b.CreatedAt,
		&b.SeatNumber, &b.PassengerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ledger.ErrBookingNotFound
	}
	return b, err
}
