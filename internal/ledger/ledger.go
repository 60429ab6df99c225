// Package ledger defines the durable seat store used by the booking core and
// an in-process implementation of it.  A Ledger hands out transactions; a
// transaction owns every seat row it locked until it commits or rolls back.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

var (
	ErrSeatNotFound     = errors.New("seat not found")
	ErrFlightNotFound   = errors.New("flight not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrLockTimeout      = errors.New("timed out waiting for seat lock")
	ErrVersionConflict  = errors.New("seat version conflict")
	ErrDuplicateBooking = errors.New("seat already has a confirmed booking")
	ErrReferenceTaken   = errors.New("booking reference already exists")
	ErrSeatNotLocked    = errors.New("seat was not locked by this transaction")
)

// Tx is a single ledger transaction.
type Tx interface {
	// LockSeat reads the seat identified by (flightID, seatNumber) and holds an
	// exclusive lock on it until the transaction ends.  Lookup and lock happen
	// in one step.
	LockSeat(ctx context.Context, flightID uint64, seatNumber string) (model.Seat, error)
	// SaveSeat writes the seat's status.  The seat must have been locked in
	// this transaction.  On success Version and UpdatedAt are advanced.
	SaveSeat(ctx context.Context, seat *model.Seat) error
	FindOrCreatePassenger(ctx context.Context, email string) (model.Passenger, error)
	// CreateBooking inserts b and fills in its ID.
	CreateBooking(ctx context.Context, b *model.Booking) error
	// AfterCommit registers fn to run once the transaction has durably
	// committed.  It is never called on rollback.
	AfterCommit(fn func())
}

// Ledger runs transactions and answers the reaper's scan.
type Ledger interface {
	// InTx runs fn inside a transaction.  A nil return commits, anything else
	// rolls back and is returned unchanged.  Post-commit actions run after
	// the commit, in registration order.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// FindStaleHeld lists HELD seats whose last update is before cutoff.
	FindStaleHeld(ctx context.Context, cutoff time.Time) ([]model.Seat, error)
}

// Reader serves the read-only queries of the HTTP layer.
type Reader interface {
	ListFlights(ctx context.Context) ([]model.Flight, error)
	ListSeats(ctx context.Context, flightID uint64) ([]model.Seat, error)
	FindBooking(ctx context.Context, reference string) (model.Booking, error)
}

// Store is a ledger that can also serve reads.
type Store interface {
	Ledger
	Reader
}

// Hooks collects post-commit actions for one transaction.
type Hooks struct {
	fns []func()
}

// Add appends fn.
func (h *Hooks) Add(fn func()) {
	if fn != nil {
		h.fns = append(h.fns, fn)
	}
}

// Run invokes the collected actions in order and forgets them.
func (h *Hooks) Run() {
	fns := h.fns
	h.fns = nil
	for _, fn := range fns {
		fn()
	}
}
