package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Ledger is the MySQL implementation of ledger.Store.  Seat row locks are
// InnoDB exclusive locks taken with SELECT ... FOR UPDATE; waiting for one
// is bounded by innodb_lock_wait_timeout.  That variable is session scoped:
// InTx sets it from lockWait before any locking read, and the value stays on
// the pooled connection until the next transaction on it sets it again.
type Ledger struct {
	db         *sql.DB
	seats      *SeatRepo
	passengers *PassengerRepo
	bookings   *BookingRepo
	flights    *FlightRepo
	lockWait   time.Duration
	now        func() time.Time
}

// NewLedger wires the repositories around db.  lockWait is rounded up to
// whole seconds.  Zero leaves the session value alone, so connections then
// run with the server default.
func NewLedger(db *sql.DB, lockWait time.Duration) *Ledger {
	return &Ledger{
		db:         db,
		seats:      NewSeatRepo(db),
		passengers: NewPassengerRepo(db),
		bookings:   NewBookingRepo(db),
		flights:    NewFlightRepo(db),
		lockWait:   lockWait,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// InTx implements ledger.Ledger.
func (l *Ledger) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if secs := int((l.lockWait + time.Second - 1) / time.Second); secs > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)); err != nil {
			return fmt.Errorf("set lock wait timeout: %w", err)
		}
	}

	stx := &sqlTx{l: l, tx: tx}
	if err := fn(ctx, stx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	stx.hooks.Run()
	return nil
}

// FindStaleHeld implements ledger.Ledger.
func (l *Ledger) FindStaleHeld(ctx context.Context, cutoff time.Time) ([]model.Seat, error) {
	return l.seats.ListStaleHeld(ctx, cutoff)
}

// ListFlights implements ledger.Reader.
func (l *Ledger) ListFlights(ctx context.Context) ([]model.Flight, error) {
	return l.flights.List(ctx)
}

// ListSeats implements ledger.Reader.
func (l *Ledger) ListSeats(ctx context.Context, flightID uint64) ([]model.Seat, error) {
	if _, err := l.flights.GetByID(ctx, flightID); err != nil {
		return nil, err
	}
	return l.seats.ListByFlight(ctx, flightID)
}

// FindBooking implements ledger.Reader.
func (l *Ledger) FindBooking(ctx context.Context, reference string) (model.Booking, error) {
	return l.bookings.GetByReference(ctx, reference)
}

type sqlTx struct {
	l     *Ledger
	tx    *sql.Tx
	hooks ledger.Hooks
}

func (t *sqlTx) LockSeat(ctx context.Context, flightID uint64, seatNumber string) (model.Seat, error) {
	return t.l.seats.LockByNumberTx(ctx, t.tx, flightID, seatNumber)
}

func (t *sqlTx) SaveSeat(ctx context.Context, seat *model.Seat) error {
	return t.l.seats.SaveTx(ctx, t.tx, seat, t.l.now())
}

func (t *sqlTx) FindOrCreatePassenger(ctx context.Context, email string) (model.Passenger, error) {
	return t.l.passengers.FindOrCreateTx(ctx, t.tx, email, t.l.now())
}

func (t *sqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	return t.l.bookings.CreateTx(ctx, t.tx, b)
}

func (t *sqlTx) AfterCommit(fn func()) { t.hooks.Add(fn) }
