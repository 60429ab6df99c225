package booking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/metrics"
)

// Entry is a waitlisted user together with the score they joined with.
type Entry struct {
	UserID string
	Score  float64
}

// JoinedAt converts the millisecond score back to a time.
func (e Entry) JoinedAt() time.Time {
	return time.UnixMilli(int64(e.Score)).UTC()
}

// JoinResult reports the outcome of Join.  Position is zero-based.
type JoinResult struct {
	Added    bool
	Position int64
}

// Waitlist is the FIFO of users waiting for a seat on a flight, ordered by
// join time.
type Waitlist struct {
	store    WaitlistStore
	notifier Notifier
	now      func() time.Time
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewWaitlist builds a Waitlist.  notifier may be nil, in which case
// hand-offs are only logged.
func NewWaitlist(store WaitlistStore, notifier Notifier, log logrus.FieldLogger, m *metrics.Metrics) *Waitlist {
	if store == nil {
		panic("booking: nil waitlist store")
	}
	return &Waitlist{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		log:      log.WithField("component", "waitlist"),
		metrics:  m,
	}
}

// Join adds userID to the flight's waitlist unless already present and
// reports the resulting position.  An existing member gets the unchanged
// position together with ErrWaitlistDuplicate.
func (w *Waitlist) Join(ctx context.Context, flightID uint64, userID string) (JoinResult, error) {
	added, err := w.JoinIfAbsent(ctx, flightID, userID)
	if err != nil {
		return JoinResult{}, err
	}
	pos, ok, err := w.Position(ctx, flightID, userID)
	if err != nil {
		return JoinResult{Added: added}, err
	}
	if !ok {
		// Popped between the two calls: they were at the head.
		pos = 0
	}
	res := JoinResult{Added: added, Position: pos}
	if !added {
		return res, ErrWaitlistDuplicate
	}
	return res, nil
}

// JoinIfAbsent atomically adds userID with the current time as score.  It
// returns false when the user was already listed; their score is untouched.
func (w *Waitlist) JoinIfAbsent(ctx context.Context, flightID uint64, userID string) (bool, error) {
	added, err := w.store.AddIfAbsent(ctx, WaitlistKey(flightID), userID, float64(w.now().UnixMilli()))
	if err != nil {
		w.metrics.WaitlistJoin("error")
		return false, unavailable("join waitlist", err)
	}
	if added {
		w.metrics.WaitlistJoin("added")
	} else {
		w.metrics.WaitlistJoin("duplicate")
	}
	return added, nil
}

// Position returns the zero-based rank of userID, ok=false when absent.
func (w *Waitlist) Position(ctx context.Context, flightID uint64, userID string) (int64, bool, error) {
	rank, ok, err := w.store.Rank(ctx, WaitlistKey(flightID), userID)
	if err != nil {
		return 0, false, unavailable("waitlist position", err)
	}
	return rank, ok, nil
}

// PopNext removes and returns the earliest entry, ok=false when empty.
func (w *Waitlist) PopNext(ctx context.Context, flightID uint64) (Entry, bool, error) {
	member, score, ok, err := w.store.PopMin(ctx, WaitlistKey(flightID))
	if err != nil {
		return Entry{}, false, unavailable("pop waitlist", err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{UserID: member, Score: score}, true, nil
}

// join writes an entry unconditionally.  It is only used to put back an
// entry that was popped but could not be handed off, so it keeps its place.
func (w *Waitlist) join(ctx context.Context, flightID uint64, userID string, score float64) error {
	if err := w.store.Add(ctx, WaitlistKey(flightID), userID, score); err != nil {
		return unavailable("restore waitlist entry", err)
	}
	return nil
}

// handOff pops the head of the flight's waitlist once seatNumber has been
// freed and emits the seat-available trigger for them.
func (w *Waitlist) handOff(ctx context.Context, flightID uint64, seatNumber string) (Entry, bool) {
	log := w.log.WithFields(logrus.Fields{"flight_id": flightID, "seat": seatNumber})
	entry, ok, err := w.PopNext(ctx, flightID)
	if err != nil {
		log.WithError(err).Error("waitlist pop failed")
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	w.metrics.WaitlistPop()
	log = log.WithField("user_id", entry.UserID)
	if w.notifier == nil {
		log.Info("seat available for waitlisted user")
		return entry, true
	}
	if err := w.notifier.SeatAvailable(ctx, flightID, seatNumber, entry.UserID); err != nil {
		log.WithError(err).Warn("seat-available trigger failed, restoring waitlist entry")
		if err := w.join(ctx, flightID, entry.UserID, entry.Score); err != nil {
			log.WithError(err).Error("waitlist entry lost")
		}
		return Entry{}, false
	}
	log.Info("seat-available trigger emitted")
	return entry, true
}
