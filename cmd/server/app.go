package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/flight-seat-reservation/internal/booking"
	"github.com/iliyamo/flight-seat-reservation/internal/cache"
	"github.com/iliyamo/flight-seat-reservation/internal/config"
	"github.com/iliyamo/flight-seat-reservation/internal/database"
	"github.com/iliyamo/flight-seat-reservation/internal/handler"
	"github.com/iliyamo/flight-seat-reservation/internal/ledger"
	"github.com/iliyamo/flight-seat-reservation/internal/metrics"
	"github.com/iliyamo/flight-seat-reservation/internal/queue"
	"github.com/iliyamo/flight-seat-reservation/internal/repository"
	"github.com/iliyamo/flight-seat-reservation/internal/scheduler"
)

// embeddedTick is how often the embedded redis ages its keys.
const embeddedTick = 100 * time.Millisecond

// app is the wired service.  Every store is created here and passed down
// explicitly.
type app struct {
	store     ledger.Store
	rdb       *redis.Client
	registry  *prometheus.Registry
	waitlist  *booking.Waitlist
	coord     *booking.Coordinator
	finalizer *booking.Finalizer
	reaper    *booking.Reaper
	scheduler *scheduler.Scheduler
	pingers   map[string]handler.Pinger
	closers   []func() error
}

func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("connect mysql %s:%s: %w", cfg.DBHost, cfg.DBPort, err)
	}
	return db, nil
}

func newApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*app, error) {
	a := &app{pingers: map[string]handler.Pinger{}}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	if err := a.openLedger(ctx, cfg, log); err != nil {
		a.close()
		return nil, err
	}

	var (
		locks     booking.FastLockStore
		waitStore booking.WaitlistStore
		leases    scheduler.Leaser
	)
	rdb, err := config.NewRedisClient(cfg.Redis)
	switch {
	case err == nil:
		a.closers = append(a.closers, rdb.Close)
	case cfg.LedgerDriver == config.DriverMemory:
		// Single-process dev mode: run the fast stores on an embedded server.
		log.WithError(err).Warn("redis unavailable, using embedded redis for fast lock and waitlist")
		emb, embErr := cache.NewEmbedded(embeddedTick)
		if embErr != nil {
			a.close()
			return nil, embErr
		}
		a.closers = append(a.closers, emb.Close)
		rdb = emb.Client()
	default:
		a.close()
		return nil, err
	}
	a.rdb = rdb
	a.pingers["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	locks = cache.NewLockStore(rdb)
	waitStore = cache.NewWaitlistStore(rdb)
	leases = cache.NewLeases(rdb, cfg.LeaseAtLeast, cfg.LeaseAtMost)

	var notifier booking.Notifier = queue.LogNotifier{Log: log.WithField("component", "events")}
	if cfg.AMQPURL != "" {
		notifier = queue.NewPublisher(cfg.AMQPURL, log)
	}

	a.waitlist = booking.NewWaitlist(waitStore, notifier, log, m)
	a.coord = booking.NewCoordinator(locks, a.store, a.waitlist, cfg.HoldTTL, log, m)
	a.finalizer = booking.NewFinalizer(locks, a.store, notifier, log, m)
	a.reaper = booking.NewReaper(booking.ReaperConfig{
		Period:  cfg.ReaperPeriod,
		HoldTTL: cfg.HoldTTL,
		Buffer:  cfg.ReaperBuffer,
	}, locks, a.store, a.waitlist, log, m)
	log.WithField("reclaim_bound", booking.ReclaimBound(cfg.ReaperPeriod, cfg.HoldTTL, cfg.ReaperBuffer)).
		Info("abandoned holds are reclaimed within the bound")

	a.scheduler = scheduler.New(leases, log)
	if err := a.scheduler.Register(a.reaper); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openLedger(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	if cfg.LedgerDriver == config.DriverMemory {
		mem := ledger.NewMemory(ledger.WithLockWait(cfg.RowLockWait))
		f, seats := database.DemoFlight(time.Now())
		f = mem.AddFlight(f)
		for _, s := range seats {
			s.FlightID = f.ID
			mem.PutSeat(s)
		}
		log.WithField("flight", f.FlightNumber).Info("in-memory ledger seeded")
		a.store = mem
		return nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	a.pingers["mysql"] = handler.PingFunc(db.PingContext)
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	if cfg.SeedOnStartup {
		if _, err := database.Seed(ctx, db, log); err != nil {
			return err
		}
	}
	a.store = repository.NewLedger(db, cfg.RowLockWait)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
