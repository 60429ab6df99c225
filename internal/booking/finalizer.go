package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/metrics"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Finalizer turns a live hold into a confirmed booking.
type Finalizer struct {
	locks    FastLockStore
	ledger   ledger.Ledger
	notifier Notifier
	now      func() time.Time
	newRef   func() string
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewFinalizer builds a Finalizer.  notifier may be nil.
func NewFinalizer(locks FastLockStore, l ledger.Ledger, notifier Notifier, log logrus.FieldLogger, m *metrics.Metrics) *Finalizer {
	if locks == nil || l == nil {
		panic("booking: nil store passed to NewFinalizer")
	}
	return &Finalizer{
		locks:    locks,
		ledger:   l,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newRef:   NewReference,
		log:      log.WithField("component", "finalizer"),
		metrics:  m,
	}
}

// referenceAttempts bounds how many fresh references Confirm tries when the
// generated one is already taken.
const referenceAttempts = 3

// NewReference returns a booking reference of the form PNR-XXXXXXXX.
func NewReference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PNR-" + strings.ToUpper(hex[:8])
}

// Confirm books the seat held by claimantID for the passenger with the
// given email.
//
// The hold key is checked before the ledger is touched.  It is deleted only
// after the ledger transaction has committed; if anything fails the key is
// left to expire on its own.
func (f *Finalizer) Confirm(ctx context.Context, flightID uint64, seatNumber, claimantID, email string) (model.Booking, error) {
	key := HoldKey(flightID, seatNumber)
	owner, ok, err := f.locks.Get(ctx, key)
	if err != nil {
		f.metrics.Confirm("error")
		return model.Booking{}, unavailable("read hold", err)
	}
	if !ok || owner != claimantID {
		f.metrics.Confirm("expired_or_foreign")
		return model.Booking{}, ErrHoldExpiredOrForeign
	}

	var booking model.Booking
	err = f.ledger.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		seat, err := tx.LockSeat(ctx, flightID, seatNumber)
		if err != nil {
			return err
		}
		if seat.Status == model.SeatConfirmed {
			return ErrConcurrentBookingDetected
		}

		passenger, err := tx.FindOrCreatePassenger(ctx, email)
		if err != nil {
			return err
		}
		b := model.Booking{
			FlightID:       flightID,
			SeatID:         seat.ID,
			PassengerID:    passenger.ID,
			Status:         model.BookingConfirmed,
			CreatedAt:      f.now(),
			SeatNumber:     seat.SeatNumber,
			PassengerEmail: passenger.Email,
		}
		if err := f.createBooking(ctx, tx, &b); err != nil {
			return err
		}

		seat.Status = model.SeatConfirmed
		if err := tx.SaveSeat(ctx, &seat); err != nil {
			return err
		}

		tx.AfterCommit(func() {
			if _, err := f.locks.DeleteIfValue(context.WithoutCancel(ctx), key, claimantID); err != nil {
				f.log.WithError(err).WithField("key", key).Warn("failed to delete hold key after commit, waiting for TTL")
			}
		})
		booking = b
		return nil
	})
	if err != nil {
		err = classify("confirm booking", err)
		f.metrics.Confirm(resultLabel(err))
		return model.Booking{}, err
	}

	f.metrics.Confirm("ok")
	log := f.log.WithFields(logrus.Fields{"flight_id": flightID, "seat": seatNumber, "reference": booking.Reference})
	log.Info("booking confirmed")
	if f.notifier != nil {
		if err := f.notifier.BookingConfirmed(ctx, booking); err != nil {
			log.WithError(err).Warn("booking confirmed event not published")
		}
	}
	return booking, nil
}

// createBooking inserts b under a fresh reference, drawing a new one when
// the reference is already taken.  A rejected insert leaves the rest of the
// transaction intact.
func (f *Finalizer) createBooking(ctx context.Context, tx ledger.Tx, b *model.Booking) error {
	var err error
	for i := 0; i < referenceAttempts; i++ {
		b.Reference = f.newRef()
		err = tx.CreateBooking(ctx, b)
		if !errors.Is(err, ledger.ErrReferenceTaken) {
			return err
		}
		f.log.WithField("reference", b.Reference).Warn("booking reference collision, drawing a new one")
	}
	return err
}
