// Package scheduler runs gather-style jobs on cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kellyq/internal/gather"
)

// Scheduler manages background jobs. Each job run gets a context that is
// cancelled when the scheduler stops.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a scheduler using standard five-field cron specs plus the
// "@daily"/"@every 1h" descriptors. A positive timeout bounds each run.
func New(timeout time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		log:     log.With("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers job on schedule.
func (s *Scheduler) AddJob(schedule string, job gather.Gatherer) error {
	_, err := s.cron.AddFunc(schedule, func() { s.run(job) })
	if err != nil {
		return err
	}
	s.log.Info("job registered", "schedule", schedule, "job", job.Name())
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job gather.Gatherer) {
	s.log.Info("running job immediately", "job", job.Name())
	s.run(job)
}

// begin registers a run with the wait group unless Stop has been called.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run(job gather.Gatherer) {
	if !s.begin() {
		s.log.Warn("scheduler stopped, job skipped", "job", job.Name())
		return
	}
	defer s.wg.Done()

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.log.Debug("running job", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		s.log.Error("job failed", "job", job.Name(), "error", err)
		return
	}
	s.log.Info("job completed", "job", job.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop cancels running jobs and waits for them to return. Runs requested
// after Stop are skipped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}
