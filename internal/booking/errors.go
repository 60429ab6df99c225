package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
)

// Business-rule failures.  None of them is retried by the core.
var (
	ErrAlreadyHeld               = errors.New("seat is currently held by another user")
	ErrSeatAlreadyHeld           = errors.New("seat is already held")
	ErrSeatAlreadyBooked         = errors.New("seat is already booked")
	ErrSeatNotFound              = ledger.ErrSeatNotFound
	ErrHoldExpiredOrForeign      = errors.New("hold expired or belongs to another user")
	ErrConcurrentBookingDetected = errors.New("seat was booked by a concurrent request")
	ErrWaitlistDuplicate         = errors.New("user is already on the waitlist")
)

// ErrUnavailable marks infrastructure failures (store down, lock wait
// timeout, commit failure).  The caller may retry them.
var ErrUnavailable = errors.New("reservation backend unavailable")

// IsRetryable reports whether err is an infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// classify passes business failures through unchanged and marks every
// other ledger error as retryable.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrSeatAlreadyHeld),
		errors.Is(err, ErrSeatAlreadyBooked),
		errors.Is(err, ErrSeatNotFound),
		errors.Is(err, ErrHoldExpiredOrForeign),
		errors.Is(err, ErrConcurrentBookingDetected):
		return err
	case errors.Is(err, ledger.ErrDuplicateBooking):
		return fmt.Errorf("%w: %w", ErrConcurrentBookingDetected, err)
	}
	return unavailable(op, err)
}
