package booking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/metrics"
	"github.com/iliyamo/flight-seat-reservation/internal/model"
)

// ReaperJobName is the cluster-wide lease name of the reaper.
const ReaperJobName = "CleanupZombieHolds"

// ReaperConfig sets the reaper's cadence.  A seat is considered abandoned
// once it has been HELD for longer than HoldTTL + Buffer.
type ReaperConfig struct {
	Period  time.Duration
	HoldTTL time.Duration
	Buffer  time.Duration
}

// ReclaimBound is the longest a HELD seat with no live hold key can stay
// HELD: it becomes eligible after ttl+buffer and the next tick is at most
// one period away.
func ReclaimBound(period, ttl, buffer time.Duration) time.Duration {
	return period + ttl + buffer
}

// ReapResult summarises one tick.
type ReapResult struct {
	Scanned   int
	Reclaimed int
	Skipped   int
	Failed    int
	Notified  int
}

// Reaper returns abandoned holds to AVAILABLE and feeds the waitlist.
// Every seat is handled in its own transaction so one failure never rolls
// back the others.
type Reaper struct {
	cfg      ReaperConfig
	locks    FastLockStore
	ledger   ledger.Ledger
	waitlist *Waitlist
	now      func() time.Time
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

func NewReaper(cfg ReaperConfig, locks FastLockStore, l ledger.Ledger, waitlist *Waitlist, log logrus.FieldLogger, m *metrics.Metrics) *Reaper {
	if locks == nil || l == nil {
		panic("booking: nil store passed to NewReaper")
	}
	return &Reaper{
		cfg:      cfg,
		locks:    locks,
		ledger:   l,
		waitlist: waitlist,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.WithField("component", "reaper"),
		metrics:  m,
	}
}

// Name implements scheduler.Job.
func (r *Reaper) Name() string { return ReaperJobName }

// Schedule implements scheduler.Job.
func (r *Reaper) Schedule() string { return "@every " + r.cfg.Period.String() }

// Run implements scheduler.Job.
func (r *Reaper) Run(ctx context.Context) error {
	_, err := r.Reap(ctx)
	return err
}

// Cutoff is the update time before which a HELD seat counts as abandoned.
func (r *Reaper) Cutoff() time.Time {
	return r.now().Add(-(r.cfg.HoldTTL + r.cfg.Buffer))
}

// Reap runs one pass.  Only the initial scan can fail the pass; per-seat
// failures are logged, counted and retried on the next tick.
func (r *Reaper) Reap(ctx context.Context) (ReapResult, error) {
	start := time.Now()
	var res ReapResult
	cutoff := r.Cutoff()
	seats, err := r.ledger.FindStaleHeld(ctx, cutoff)
	if err != nil {
		return res, unavailable("scan held seats", err)
	}
	res.Scanned = len(seats)

	for _, seat := range seats {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := r.log.WithFields(logrus.Fields{"flight_id": seat.FlightID, "seat": seat.SeatNumber})
		reclaimed, err := r.reclaim(ctx, seat, cutoff)
		if err != nil {
			res.Failed++
			log.WithError(err).Error("failed to reclaim held seat")
			continue
		}
		if !reclaimed {
			res.Skipped++
			continue
		}
		res.Reclaimed++
		log.Info("reclaimed abandoned hold")
		if r.waitlist != nil {
			if _, ok := r.waitlist.handOff(ctx, seat.FlightID, seat.SeatNumber); ok {
				res.Notified++
			}
		}
	}

	r.metrics.ReapTick(res.Reclaimed, res.Failed, time.Since(start))
	entry := r.log.WithFields(logrus.Fields{
		"scanned":   res.Scanned,
		"reclaimed": res.Reclaimed,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
	})
	if res.Scanned > 0 {
		entry.Info("reaper pass finished")
	} else {
		entry.Debug("reaper pass finished")
	}
	return res, nil
}

// reclaim flips one seat back to AVAILABLE.  It reports false when there is
// nothing to do: the claimant's key is still alive, or another transaction
// already moved the seat out of HELD or refreshed it since the scan.
func (r *Reaper) reclaim(ctx context.Context, stale model.Seat, cutoff time.Time) (bool, error) {
	_, live, err := r.locks.Get(ctx, HoldKey(stale.FlightID, stale.SeatNumber))
	if err != nil {
		return false, err
	}
	if live {
		return false, nil
	}

	reclaimed := false
	err = r.ledger.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		seat, err := tx.LockSeat(ctx, stale.FlightID, stale.SeatNumber)
		if err != nil {
			return err
		}
		if seat.Status != model.SeatHeld || !seat.UpdatedAt.Before(cutoff) {
			return nil
		}
		seat.Status = model.SeatAvailable
		if err := tx.SaveSeat(ctx, &seat); err != nil {
			return err
		}
		reclaimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return reclaimed, nil
}
