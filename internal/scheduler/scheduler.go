// Package scheduler runs periodic jobs at most once per tick across the
// cluster.  Each tick first takes a local TryLock so overlapping ticks on one
// node are skipped, then a named cluster lease so only one node runs it.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of periodic work.  Schedule is a five-field cron expression
// or a descriptor such as "@every 1m".
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Leaser hands out cluster-wide named leases.  The returned release func
// must be called once the job is done.
type Leaser interface {
	TryAcquire(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error)
}

// Scheduler manages periodic job execution using cron expressions.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]Job
	order  []string
	locks  map[string]*sync.Mutex
	leases Leaser
	log    logrus.FieldLogger
	cancel context.CancelFunc
}

// New creates a scheduler.  A nil leaser runs jobs on every node.
func New(leases Leaser, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]Job),
		locks:  make(map[string]*sync.Mutex),
		leases: leases,
		log:    log.WithField("component", "scheduler"),
	}
}

// Register adds a job.  Must be called before Start.
func (s *Scheduler) Register(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: duplicate job name %q", name)
	}
	s.jobs[name] = j
	s.order = append(s.order, name)
	s.locks[name] = &sync.Mutex{}
	return nil
}

// Start begins executing registered jobs.  Jobs receive a context derived
// from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	for _, name := range s.order {
		name := name
		if _, err := c.AddFunc(s.jobs[name].Schedule(), func() { _, _ = s.RunOnce(ctx, name) }); err != nil {
			cancel()
			return fmt.Errorf("scheduler: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron = c
	s.cancel = cancel
	c.Start()
	s.log.WithField("jobs", len(s.order)).Info("scheduler started")
	return nil
}

// RunOnce executes the named job now if neither a local run nor another
// node's lease is in progress.  It reports whether the job ran.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	lock := s.locks[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("scheduler: unknown job %q", name)
	}
	log := s.log.WithField("job", name)

	if !lock.TryLock() {
		log.Warn("job still running, skipping tick")
		return false, nil
	}
	defer lock.Unlock()

	if s.leases != nil {
		release, acquired, err := s.leases.TryAcquire(ctx, name)
		if err != nil {
			log.WithError(err).Error("lease acquire failed, skipping tick")
			return false, err
		}
		if !acquired {
			log.Debug("lease held elsewhere, skipping tick")
			return false, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("lease release failed")
			}
		}()
	}

	log.Debug("job started")
	if err := job.Run(ctx); err != nil {
		log.WithError(err).Error("job failed")
		return true, err
	}
	log.Debug("job completed")
	return true, nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.log.Info("scheduler stopped")
	}
}
