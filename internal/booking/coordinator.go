package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/metrics"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// Coordinator places and releases holds.  A hold is the fast lock key owned
// by the claimant plus the HELD status on the ledger row; the two are kept
// in agreement by deleting the key whenever the ledger step fails.
type Coordinator struct {
	locks    FastLockStore
	ledger   ledger.Ledger
	waitlist *Waitlist
	holdTTL  time.Duration
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewCoordinator builds a Coordinator.  waitlist may be nil, in which case
// an explicit release does not feed the waitlist.
func NewCoordinator(locks FastLockStore, l ledger.Ledger, waitlist *Waitlist, holdTTL time.Duration, log logrus.FieldLogger, m *metrics.Metrics) *Coordinator {
	if locks == nil || l == nil {
		panic("booking: nil store passed to NewCoordinator")
	}
	return &Coordinator{
		locks:    locks,
		ledger:   l,
		waitlist: waitlist,
		holdTTL:  holdTTL,
		log:      log.WithField("component", "coordinator"),
		metrics:  m,
	}
}

// HoldTTL is how long a hold lives in the fast lock store.
func (c *Coordinator) HoldTTL() time.Duration { return c.holdTTL }

// Hold claims the seat for claimantID and returns an opaque hold reference.
// A seat already claimed in the fast lock store fails with ErrAlreadyHeld
// without touching the ledger.
func (c *Coordinator) Hold(ctx context.Context, flightID uint64, seatNumber, claimantID string) (string, error) {
	key := HoldKey(flightID, seatNumber)
	acquired, err := c.locks.SetIfAbsent(ctx, key, claimantID, c.holdTTL)
	if err != nil {
		c.metrics.Hold("error")
		return "", unavailable("acquire hold", err)
	}
	if !acquired {
		c.metrics.Hold("already_held")
		return "", ErrAlreadyHeld
	}

	err = c.ledger.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		seat, err := tx.LockSeat(ctx, flightID, seatNumber)
		if err != nil {
			return err
		}
		switch seat.Status {
		case model.SeatConfirmed:
			return ErrSeatAlreadyBooked
		case model.SeatHeld:
			return ErrSeatAlreadyHeld
		}
		seat.Status = model.SeatHeld
		return tx.SaveSeat(ctx, &seat)
	})
	if err != nil {
		c.dropKey(ctx, key, claimantID)
		err = classify("hold seat", err)
		c.metrics.Hold(resultLabel(err))
		return "", err
	}

	c.metrics.Hold("ok")
	c.log.WithFields(logrus.Fields{"flight_id": flightID, "seat": seatNumber, "user_id": claimantID}).Debug("seat held")
	return uuid.NewString(), nil
}

// Release gives up claimantID's hold before its TTL runs out.  The seat
// returns to AVAILABLE and the head of the flight's waitlist is handed the
// seat, exactly as if the reaper had reclaimed it.
func (c *Coordinator) Release(ctx context.Context, flightID uint64, seatNumber, claimantID string) error {
	key := HoldKey(flightID, seatNumber)
	owner, ok, err := c.locks.Get(ctx, key)
	if err != nil {
		c.metrics.Release("error")
		return unavailable("read hold", err)
	}
	if !ok || owner != claimantID {
		c.metrics.Release("expired_or_foreign")
		return ErrHoldExpiredOrForeign
	}

	released := false
	err = c.ledger.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		seat, err := tx.LockSeat(ctx, flightID, seatNumber)
		if err != nil {
			return err
		}
		if seat.Status == model.SeatConfirmed {
			return ErrSeatAlreadyBooked
		}
		tx.AfterCommit(func() { c.dropKey(ctx, key, claimantID) })
		if seat.Status != model.SeatHeld {
			return nil
		}
		seat.Status = model.SeatAvailable
		if err := tx.SaveSeat(ctx, &seat); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		err = classify("release seat", err)
		c.metrics.Release(resultLabel(err))
		return err
	}
	c.metrics.Release("ok")
	if released && c.waitlist != nil {
		c.waitlist.handOff(ctx, flightID, seatNumber)
	}
	return nil
}

// dropKey deletes a hold key if owner still holds it.  A key that expired
// and was taken by someone else is left alone.  A failure only delays reuse
// of the seat until the TTL expires, so it is logged and swallowed.
func (c *Coordinator) dropKey(ctx context.Context, key, owner string) {
	dropped, err := c.locks.DeleteIfValue(context.WithoutCancel(ctx), key, owner)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("failed to delete hold key, waiting for TTL")
		return
	}
	if !dropped {
		c.log.WithFields(logrus.Fields{"key": key, "user_id": owner}).Debug("hold key already expired or reclaimed")
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRetryable(err):
		return "error"
	case errors.Is(err, ErrSeatAlreadyHeld):
		return "seat_held"
	case errors.Is(err, ErrSeatAlreadyBooked):
		return "seat_booked"
	case errors.Is(err, ErrSeatNotFound):
		return "not_found"
	case errors.Is(err, ErrHoldExpiredOrForeign):
		return "expired_or_foreign"
	}
	return "conflict"
}
