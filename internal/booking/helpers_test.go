package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/flight-seat-reservation/internal/cache"
	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

const testTTL = 120 * time.Second

// clock is a settable time source shared by every store in a fixture.
// Moving it forward also fast-forwards the embedded Redis so key TTLs run
// on the same time line.
type clock struct {
	mu  sync.Mutex
	now time.Time
	mr  *miniredis.Miniredis
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	delta := t.Sub(c.now)
	c.now = t
	c.mu.Unlock()
	if c.mr != nil && delta > 0 {
		c.mr.FastForward(delta)
	}
}

type fixture struct {
	clock     *clock
	ledger    *ledger.Memory
	redis     *miniredis.Miniredis
	locks     *cache.LockStore
	waitlist  *Waitlist
	notifier  *recordingNotifier
	coord     *Coordinator
	finalizer *Finalizer
	reaper    *Reaper
	flight    model.Flight
	logs      *logtest.Hook
}

func newFixture(t *testing.T, opts ...ledger.MemoryOption) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), mr: mr}
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	l := ledger.NewMemory(append([]ledger.MemoryOption{ledger.WithClock(clk.Now)}, opts...)...)
	f := l.AddFlight(model.Flight{FlightNumber: "SH-101"})
	for _, n := range []string{"1A", "1B", "10A", "20A"} {
		l.PutSeat(model.Seat{FlightID: f.ID, SeatNumber: n, Class: model.SeatClassEconomy})
	}

	locks := cache.NewLockStore(rdb)
	notifier := &recordingNotifier{}
	wl := NewWaitlist(cache.NewWaitlistStore(rdb), notifier, log, nil)
	wl.now = clk.Now

	fin := NewFinalizer(locks, l, notifier, log, nil)
	fin.now = clk.Now
	reaper := NewReaper(ReaperConfig{Period: time.Minute, HoldTTL: testTTL, Buffer: 5 * time.Second}, locks, l, wl, log, nil)
	reaper.now = clk.Now

	return &fixture{
		clock:     clk,
		redis:     mr,
		ledger:    l,
		locks:     locks,
		waitlist:  wl,
		notifier:  notifier,
		coord:     NewCoordinator(locks, l, wl, testTTL, log, nil),
		finalizer: fin,
		reaper:    reaper,
		flight:    f,
		logs:      hook,
	}
}

func (fx *fixture) seat(t *testing.T, number string) model.Seat {
	t.Helper()
	s, ok := fx.ledger.Seat(fx.flight.ID, number)
	if !ok {
		t.Fatalf("seat %s missing", number)
	}
	return s
}

func (fx *fixture) holdKeyExists(number string) bool {
	_, ok := fx.holdOwner(number)
	return ok
}

func (fx *fixture) holdOwner(number string) (string, bool) {
	owner, ok, _ := fx.locks.Get(context.Background(), HoldKey(fx.flight.ID, number))
	return owner, ok
}

// refSequence returns the given references in order, repeating the last.
func refSequence(refs ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		ref := refs[0]
		if len(refs) > 1 {
			refs = refs[1:]
		}
		return ref
	}
}

type seatEvent struct {
	FlightID   uint64
	SeatNumber string
	UserID     string
}

type recordingNotifier struct {
	mu        sync.Mutex
	bookings  []model.Booking
	available []seatEvent
	failNext  bool
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, b model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, b)
	return nil
}

func (n *recordingNotifier) SeatAvailable(_ context.Context, flightID uint64, seatNumber, userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext {
		n.failNext = false
		return errors.New("broker unreachable")
	}
	n.available = append(n.available, seatEvent{flightID, seatNumber, userID})
	return nil
}

func (n *recordingNotifier) availableEvents() []seatEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]seatEvent(nil), n.available...)
}

// stickyLocks never forgets a key once set, so every Get after the first
// successful SetIfAbsent reports the original owner.  It stands in for a
// fast store that failed to observe a delete.
type stickyLocks struct {
	*cache.LockStore
}

func (stickyLocks) DeleteIfValue(context.Context, string, string) (bool, error) { return false, nil }

// expiresUnderneath lets the first key it sees or sets expire right after
// the call returns and hands it to next, as if the caller stalled past the
// TTL and another claimant took the seat in between.
type expiresUnderneath struct {
	*cache.LockStore
	fx   *fixture
	next string
	once sync.Once
}

func (s *expiresUnderneath) takeOver(ctx context.Context, key string) {
	s.once.Do(func() {
		s.fx.clock.Set(s.fx.clock.Now().Add(testTTL + time.Second))
		_, _ = s.LockStore.SetIfAbsent(ctx, key, s.next, testTTL)
	})
}

func (s *expiresUnderneath) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.LockStore.SetIfAbsent(ctx, key, value, ttl)
	if err == nil && ok {
		s.takeOver(ctx, key)
	}
	return ok, err
}

func (s *expiresUnderneath) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.LockStore.Get(ctx, key)
	if err == nil && ok {
		s.takeOver(ctx, key)
	}
	return v, ok, err
}

// brokenLocks fails every call.
type brokenLocks struct{}

var errStoreDown = errors.New("connection refused")

func (brokenLocks) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (brokenLocks) Get(context.Context, string) (string, bool, error) { return "", false, errStoreDown }
func (brokenLocks) DeleteIfValue(context.Context, string, string) (bool, error) {
	return false, errStoreDown
}

// flakyLedger fails LockSeat for one seat number.
type flakyLedger struct {
	*ledger.Memory
	failSeat string
}

func (f *flakyLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return f.Memory.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, failSeat: f.failSeat})
	})
}

type flakyTx struct {
	ledger.Tx
	failSeat string
}

func (t *flakyTx) LockSeat(ctx context.Context, flightID uint64, seatNumber string) (model.Seat, error) {
	if seatNumber == t.failSeat {
		return model.Seat{}, errors.New("deadlock found when trying to get lock")
	}
	return t.Tx.LockSeat(ctx, flightID, seatNumber)
}

// failingScan fails the reaper's initial scan.
type failingScan struct {
	*ledger.Memory
}

func (failingScan) FindStaleHeld(context.Context, time.Time) ([]model.Seat, error) {
	return nil, errors.New("too many connections")
}
