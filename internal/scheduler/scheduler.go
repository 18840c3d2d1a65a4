package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// Task is a long-running supervised job, such as an ingestor's Run.
type Task interface {
	Run(ctx context.Context) error
}

// Supervisor keeps a Task alive: every interval it starts a fresh run
// unless one is already in progress. A run that returns an error (for an
// ingestor, an exhausted retry budget) is replaced on the next tick.
type Supervisor struct {
	scheduler *gocron.Scheduler
	task      Task
	interval  time.Duration
	logger    *slog.Logger

	running atomic.Bool

	// mu orders wg.Add in the job against wg.Wait in Stop.
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New creates a new Supervisor.
func New(task Task, interval time.Duration, logger *slog.Logger) *Supervisor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		scheduler: gocron.NewScheduler(time.UTC),
		task:      task,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the task and starts the underlying scheduler. The first
// run starts immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return errors.New("scheduler: already started or stopped")
	}

	runCtx, cancel := context.WithCancel(ctx)

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.mu.Lock()
		if s.stopped || runCtx.Err() != nil {
			s.mu.Unlock()
			return
		}
		// Ticks that fire while a run is in progress are skipped, not queued.
		if !s.running.CompareAndSwap(false, true) {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.running.Store(false)
		defer s.wg.Done()

		s.logger.Info("starting ingestion task")
		if err := s.task.Run(runCtx); err != nil {
			s.logger.Error("ingestion task failed; will restart on next tick", "error", err, "interval", s.interval)
			return
		}
		s.logger.Info("ingestion task stopped")
	})
	if err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels the running task, waits for it to return and stops the
// scheduler so no further runs are started.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.wg.Wait()
}
