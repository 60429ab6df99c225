// Package booking holds the seat reservation core: the hold coordinator,
// the booking finalizer, the hold reaper and the per-flight waitlist.  All
// state lives in the stores handed to the constructors.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// FastLockStore is a shared key/value store with per-key expiry.
// SetIfAbsent must be atomic per key.
type FastLockStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns ok=false when the key does not exist or has expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// DeleteIfValue removes key only if it currently holds value.  Compare
	// and delete must be one atomic step.
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// WaitlistStore is a shared ordered set per key.  Every method is a single
// atomic operation against the store.
type WaitlistStore interface {
	AddIfAbsent(ctx context.Context, key, member string, score float64) (bool, error)
	// Add inserts or rescores member unconditionally.
	Add(ctx context.Context, key, member string, score float64) error
	// Rank is the zero-based position by ascending score.
	Rank(ctx context.Context, key, member string) (rank int64, ok bool, err error)
	PopMin(ctx context.Context, key string) (member string, score float64, ok bool, err error)
}

// Notifier receives domain events once they are durable.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking) error
	// SeatAvailable is the trigger for telling a waitlisted user that a seat
	// on their flight was freed.
	SeatAvailable(ctx context.Context, flightID uint64, seatNumber, userID string) error
}

// HoldKey is the fast lock key of a seat.
func HoldKey(flightID uint64, seatNumber string) string {
	return fmt.Sprintf("seat_hold:%d:%s", flightID, seatNumber)
}

// WaitlistKey is the ordered set holding a flight's waitlist.
func WaitlistKey(flightID uint64) string {
	return fmt.Sprintf("waitlist:%d", flightID)
}
