package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-reservation/internal/cache"
	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

func TestHold_EndToEndScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.flight.ID

	ref, err := fx.coord.Hold(ctx, f, "1A", "U1")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Equal(t, model.SeatHeld, fx.seat(t, "1A").Status)

	_, err = fx.coord.Hold(ctx, f, "1A", "U2")
	assert.ErrorIs(t, err, ErrAlreadyHeld)

	b, err := fx.finalizer.Confirm(ctx, f, "1A", "U1", "u1@x.com")
	require.NoError(t, err)
	assert.Regexp(t, `^PNR-[0-9A-F]{8}$`, b.Reference)
	assert.Equal(t, model.SeatConfirmed, fx.seat(t, "1A").Status)

	_, err = fx.coord.Hold(ctx, f, "1A", "U2")
	assert.ErrorIs(t, err, ErrSeatAlreadyBooked)
	assert.False(t, fx.holdKeyExists("1A"))
}

func TestHold_MutualExclusion(t *testing.T) {
	fx := newFixture(t)
	const n = 64

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.coord.Hold(context.Background(), fx.flight.ID, "10A", fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyHeld), errors.Is(err, ErrSeatAlreadyHeld):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, model.SeatHeld, fx.seat(t, "10A").Status)
}

// With a fast store that lets everyone through, the ledger row lock alone
// must still admit a single claimant.
func TestHold_LedgerGuardsWhenFastStoreIsPermissive(t *testing.T) {
	fx := newFixture(t)
	coord := NewCoordinator(alwaysGrant{fx.locks}, fx.ledger, nil, testTTL, quietLogger(), nil)
	const n = 32

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Hold(context.Background(), fx.flight.ID, "20A", fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()

	wins, held := 0, 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if errors.Is(err, ErrSeatAlreadyHeld) {
			held++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, held)
}

func TestHold_GuardFailureDeletesFastLock(t *testing.T) {
	tests := []struct {
		name   string
		status model.SeatStatus
		want   error
	}{
		{name: "confirmed seat", status: model.SeatConfirmed, want: ErrSeatAlreadyBooked},
		{name: "zombie held seat", status: model.SeatHeld, want: ErrSeatAlreadyHeld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			s := fx.seat(t, "1B")
			s.Status = tt.status
			fx.ledger.PutSeat(s)

			_, err := fx.coord.Hold(context.Background(), fx.flight.ID, "1B", "U9")
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, IsRetryable(err))
			assert.False(t, fx.holdKeyExists("1B"))
			assert.Equal(t, tt.status, fx.seat(t, "1B").Status)
		})
	}
}

func TestHold_UnknownSeat(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.coord.Hold(context.Background(), fx.flight.ID, "99Z", "U1")
	assert.ErrorIs(t, err, ErrSeatNotFound)
	assert.False(t, fx.holdKeyExists("99Z"))
}

func TestHold_LedgerTimeoutIsRetryableAndCleansUp(t *testing.T) {
	fx := newFixture(t, ledger.WithLockWait(10*time.Millisecond))
	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = fx.ledger.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
			_, err := tx.LockSeat(ctx, fx.flight.ID, "1A")
			close(locked)
			<-done
			return err
		})
	}()
	<-locked
	defer close(done)

	_, err := fx.coord.Hold(context.Background(), fx.flight.ID, "1A", "U1")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, ledger.ErrLockTimeout)
	assert.False(t, fx.holdKeyExists("1A"))
}

func TestHold_FastStoreDownIsRetryable(t *testing.T) {
	fx := newFixture(t)
	coord := NewCoordinator(brokenLocks{}, fx.ledger, nil, testTTL, quietLogger(), nil)

	_, err := coord.Hold(context.Background(), fx.flight.ID, "1A", "U1")
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, model.SeatAvailable, fx.seat(t, "1A").Status)
}

func TestRelease(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.flight.ID

	_, err := fx.coord.Hold(ctx, f, "1A", "U1")
	require.NoError(t, err)
	_, err = fx.waitlist.JoinIfAbsent(ctx, f, "W1")
	require.NoError(t, err)

	assert.ErrorIs(t, fx.coord.Release(ctx, f, "1A", "U2"), ErrHoldExpiredOrForeign)

	require.NoError(t, fx.coord.Release(ctx, f, "1A", "U1"))
	assert.Equal(t, model.SeatAvailable, fx.seat(t, "1A").Status)
	assert.False(t, fx.holdKeyExists("1A"))
	assert.Equal(t, []seatEvent{{f, "1A", "W1"}}, fx.notifier.availableEvents())

	_, err = fx.coord.Hold(ctx, f, "1A", "U2")
	assert.NoError(t, err)
}

func TestRelease_KeepsKeyTakenAfterExpiry(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.coord.Hold(ctx, fx.flight.ID, "1A", "U1")
	require.NoError(t, err)

	locks := &expiresUnderneath{LockStore: fx.locks, fx: fx, next: "U2"}
	coord := NewCoordinator(locks, fx.ledger, nil, testTTL, quietLogger(), nil)
	require.NoError(t, coord.Release(ctx, fx.flight.ID, "1A", "U1"))

	owner, ok := fx.holdOwner("1A")
	assert.True(t, ok, "U1's release must not delete U2's key")
	assert.Equal(t, "U2", owner)
}

func TestHold_RollbackKeepsKeyTakenAfterExpiry(t *testing.T) {
	fx := newFixture(t)
	s := fx.seat(t, "1B")
	s.Status = model.SeatHeld
	fx.ledger.PutSeat(s)

	locks := &expiresUnderneath{LockStore: fx.locks, fx: fx, next: "U2"}
	coord := NewCoordinator(locks, fx.ledger, nil, testTTL, quietLogger(), nil)
	_, err := coord.Hold(context.Background(), fx.flight.ID, "1B", "U1")
	assert.ErrorIs(t, err, ErrSeatAlreadyHeld)

	owner, ok := fx.holdOwner("1B")
	assert.True(t, ok)
	assert.Equal(t, "U2", owner)
}

// alwaysGrant accepts every SetIfAbsent.
type alwaysGrant struct {
	*cache.LockStore
}

func (alwaysGrant) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}
