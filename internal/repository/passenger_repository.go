package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// PassengerRepo encapsulates database operations for passengers.
type PassengerRepo struct {
	db *sql.DB
}

func NewPassengerRepo(db *sql.DB) *PassengerRepo { return &PassengerRepo{db: db} }

const selectPassengerByEmail = "SELECT id, email, first_name, last_name, created_at FROM passengers WHERE email = ? LIMIT 1"

func (r *PassengerRepo) getByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.Passenger, error) {
	return scanPassenger(tx.QueryRowContext(ctx, selectPassengerByEmail, email))
}

// lockByEmailTx is a locking read.  Unlike getByEmailTx it sees rows
// committed after the transaction's snapshot was taken.
func (r *PassengerRepo) lockByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.Passenger, error) {
	return scanPassenger(tx.QueryRowContext(ctx, selectPassengerByEmail+" FOR SHARE", email))
}

func scanPassenger(row *sql.Row) (model.Passenger, error) {
	var p model.Passenger
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.CreatedAt)
	return p, err
}

// FindOrCreateTx returns the passenger with the given email, inserting a
// placeholder record when none exists.  Two transactions racing on the
// same email both end up with the row that won the unique index: the loser
// re-reads it with a locking read, since its snapshot predates the winner's
// commit.
func (r *PassengerRepo) FindOrCreateTx(ctx context.Context, tx *sql.Tx, email string, now time.Time) (model.Passenger, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := r.getByEmailTx(ctx, tx, email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Passenger{}, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO passengers (email, first_name, last_name, created_at) VALUES (?, ?, ?, ?)",
		email, model.GuestFirstName, model.GuestLastName, now)
	if err != nil {
		if isDuplicate(err) {
			return r.lockByEmailTx(ctx, tx, email)
		}
		return model.Passenger{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Passenger{}, err
	}
	return model.Passenger{
		ID:        uint64(id),
		Email:     email,
		FirstName: model.GuestFirstName,
		LastName:  model.GuestLastName,
		CreatedAt: now,
	}, nil
}
