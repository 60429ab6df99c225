package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for UpdatedAt and CreatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithLockWait bounds how long LockSeat waits for another transaction to
// release a seat.  Zero waits until the caller's context is done.
func WithLockWait(d time.Duration) MemoryOption {
	return func(m *Memory) { m.lockWait = d }
}

// WithCommitHook installs fn to run at the start of every commit, while the
// transaction's seat locks are still held.  A non-nil error aborts the
// commit and the transaction is rolled back.
func WithCommitHook(fn func() error) MemoryOption {
	return func(m *Memory) { m.commitHook = fn }
}

// Memory is a single-process Ledger.  Seat row locks are per-seat mutexes;
// writes are staged on the transaction and applied atomically on commit.
type Memory struct {
	mu         sync.Mutex
	nextID     uint64
	flights    map[uint64]model.Flight
	seats      map[uint64]model.Seat
	seatIDs    map[string]uint64
	passengers map[string]model.Passenger
	bookings   map[string]model.Booking
	confirmed  map[uint64]string

	locks      *keyedLock
	lockWait   time.Duration
	now        func() time.Time
	commitHook func() error
}

// NewMemory returns an empty ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		flights:    make(map[uint64]model.Flight),
		seats:      make(map[uint64]model.Seat),
		seatIDs:    make(map[string]uint64),
		passengers: make(map[string]model.Passenger),
		bookings:   make(map[string]model.Booking),
		confirmed:  make(map[uint64]string),
		locks:      newKeyedLock(),
		lockWait:   5 * time.Second,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func seatKey(flightID uint64, seatNumber string) string {
	return strconv.FormatUint(flightID, 10) + ":" + seatNumber
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddFlight stores f, assigning an ID when f.ID is zero.
func (m *Memory) AddFlight(f model.Flight) model.Flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == 0 {
		m.nextID++
		f.ID = m.nextID
	}
	m.flights[f.ID] = f
	return f
}

// PutSeat writes s outside of any transaction.  It is meant for seeding and
// tests.  A zero Status becomes AVAILABLE and a zero UpdatedAt becomes now.
func (m *Memory) PutSeat(s model.Seat) model.Seat {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := seatKey(s.FlightID, s.SeatNumber)
	if s.ID == 0 {
		if id, ok := m.seatIDs[key]; ok {
			s.ID = id
		} else {
			m.nextID++
			s.ID = m.nextID
		}
	}
	if s.Status == "" {
		s.Status = model.SeatAvailable
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now()
	}
	m.seats[s.ID] = s
	m.seatIDs[key] = s.ID
	return s
}

// Seat returns the committed state of a seat.
func (m *Memory) Seat(flightID uint64, seatNumber string) (model.Seat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.seatIDs[seatKey(flightID, seatNumber)]
	if !ok {
		return model.Seat{}, false
	}
	return m.seats[id], true
}

// Bookings returns every committed booking ordered by ID.
func (m *Memory) Bookings() []model.Booking {
	m.mu.Lock()
	out := make([]model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, m.enrich(b))
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InTx implements Ledger.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		m:          m,
		held:       make(map[uint64]func()),
		seats:      make(map[uint64]model.Seat),
		passengers: make(map[string]model.Passenger),
	}
	defer tx.unlock()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := m.commit(tx); err != nil {
		return err
	}
	tx.unlock()
	tx.hooks.Run()
	return nil
}

func (m *Memory) commit(tx *memoryTx) error {
	if m.commitHook != nil {
		if err := m.commitHook(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range tx.bookings {
		if b.Status != model.BookingConfirmed {
			continue
		}
		if _, taken := m.confirmed[b.SeatID]; taken {
			return ErrDuplicateBooking
		}
	}
	// A concurrent transaction may have created the same passenger first.
	remap := make(map[uint64]uint64)
	for email, p := range tx.passengers {
		if existing, ok := m.passengers[email]; ok {
			remap[p.ID] = existing.ID
			continue
		}
		m.passengers[email] = p
	}
	for id, s := range tx.seats {
		m.seats[id] = s
	}
	for _, b := range tx.bookings {
		if id, ok := remap[b.PassengerID]; ok {
			b.PassengerID = id
		}
		m.bookings[b.Reference] = b
		if b.Status == model.BookingConfirmed {
			m.confirmed[b.SeatID] = b.Reference
		}
	}
	return nil
}

// FindStaleHeld implements Ledger.
func (m *Memory) FindStaleHeld(_ context.Context, cutoff time.Time) ([]model.Seat, error) {
	m.mu.Lock()
	var out []model.Seat
	for _, s := range m.seats {
		if s.Status == model.SeatHeld && s.UpdatedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListFlights implements Reader.
func (m *Memory) ListFlights(_ context.Context) ([]model.Flight, error) {
	m.mu.Lock()
	out := make([]model.Flight, 0, len(m.flights))
	for _, f := range m.flights {
		out = append(out, f)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSeats implements Reader.
func (m *Memory) ListSeats(_ context.Context, flightID uint64) ([]model.Seat, error) {
	m.mu.Lock()
	if _, ok := m.flights[flightID]; !ok {
		m.mu.Unlock()
		return nil, ErrFlightNotFound
	}
	var out []model.Seat
	for _, s := range m.seats {
		if s.FlightID == flightID {
			out = append(out, s)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindBooking implements Reader.
func (m *Memory) FindBooking(_ context.Context, reference string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[reference]
	if !ok {
		return model.Booking{}, ErrBookingNotFound
	}
	return m.enrich(b), nil
}

// enrich fills the denormalised booking fields.  Caller holds m.mu.
func (m *Memory) enrich(b model.Booking) model.Booking {
	if s, ok := m.seats[b.SeatID]; ok {
		b.SeatNumber = s.SeatNumber
	}
	for _, p := range m.passengers {
		if p.ID == b.PassengerID {
			b.PassengerEmail = p.Email
			break
		}
	}
	return b
}

type memoryTx struct {
	m          *Memory
	held       map[uint64]func()
	seats      map[uint64]model.Seat
	passengers map[string]model.Passenger
	bookings   []model.Booking
	hooks      Hooks
}

func (tx *memoryTx) unlock() {
	for id, release := range tx.held {
		release()
		delete(tx.held, id)
	}
}

func (tx *memoryTx) current(id uint64) model.Seat {
	if s, ok := tx.seats[id]; ok {
		return s
	}
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	return tx.m.seats[id]
}

func (tx *memoryTx) LockSeat(ctx context.Context, flightID uint64, seatNumber string) (model.Seat, error) {
	m := tx.m
	m.mu.Lock()
	id, ok := m.seatIDs[seatKey(flightID, seatNumber)]
	m.mu.Unlock()
	if !ok {
		return model.Seat{}, ErrSeatNotFound
	}
	if _, mine := tx.held[id]; !mine {
		wctx, cancel := ctx, context.CancelFunc(func() {})
		if m.lockWait > 0 {
			wctx, cancel = context.WithTimeout(ctx, m.lockWait)
		}
		release, err := m.locks.acquire(wctx, strconv.FormatUint(id, 10))
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				return model.Seat{}, ErrLockTimeout
			}
			return model.Seat{}, err
		}
		tx.held[id] = release
	}
	return tx.current(id), nil
}

func (tx *memoryTx) SaveSeat(_ context.Context, seat *model.Seat) error {
	if _, mine := tx.held[seat.ID]; !mine {
		return ErrSeatNotLocked
	}
	if tx.current(seat.ID).Version != seat.Version {
		return ErrVersionConflict
	}
	seat.Version++
	seat.UpdatedAt = tx.m.now()
	tx.seats[seat.ID] = *seat
	return nil
}

func (tx *memoryTx) FindOrCreatePassenger(_ context.Context, email string) (model.Passenger, error) {
	email = normalizeEmail(email)
	if p, ok := tx.passengers[email]; ok {
		return p, nil
	}
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.passengers[email]; ok {
		return p, nil
	}
	m.nextID++
	p := model.Passenger{
		ID:        m.nextID,
		Email:     email,
		FirstName: model.GuestFirstName,
		LastName:  model.GuestLastName,
		CreatedAt: m.now(),
	}
	tx.passengers[email] = p
	return p, nil
}

func (tx *memoryTx) CreateBooking(_ context.Context, b *model.Booking) error {
	m := tx.m
	for _, staged := range tx.bookings {
		if staged.Reference == b.Reference {
			return ErrReferenceTaken
		}
		if b.Status == model.BookingConfirmed && staged.SeatID == b.SeatID && staged.Status == model.BookingConfirmed {
			return ErrDuplicateBooking
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status == model.BookingConfirmed {
		if _, taken := m.confirmed[b.SeatID]; taken {
			return ErrDuplicateBooking
		}
	}
	if _, exists := m.bookings[b.Reference]; exists {
		return ErrReferenceTaken
	}
	m.nextID++
	b.ID = m.nextID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = m.now()
	}
	tx.bookings = append(tx.bookings, *b)
	return nil
}

func (tx *memoryTx) AfterCommit(fn func()) { tx.hooks.Add(fn) }
