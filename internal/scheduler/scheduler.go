package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/pkg/util"
)

// Runner is the work executed on each tick.
type Runner func(ctx context.Context) error

// Scheduler triggers a runner at a configurable interval. Enabled state and
// interval can change at runtime via Configure; disabling stops future
// ticks but never cancels a pass already in flight. Tick failures are
// logged and the loop keeps going.
type Scheduler struct {
	runner Runner
	logger *zap.Logger

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	reload   chan struct{}

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New constructs a scheduler. The interval applies from the next tick.
func New(runner Runner, enabled bool, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		enabled:  enabled,
		interval: interval,
		reload:   make(chan struct{}, 1),
	}
}

// Start launches the tick loop. It returns immediately; ticks run on a
// background goroutine until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	go s.loop(loopCtx)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
}

// Configure updates the enabled state and interval. Takes effect on the
// next tick; a pass already running is left alone.
func (s *Scheduler) Configure(enabled bool, intervalMinutes int) {
	s.mu.Lock()
	s.enabled = enabled
	s.interval = time.Duration(intervalMinutes) * time.Minute
	s.mu.Unlock()

	select {
	case s.reload <- struct{}{}:
	default:
	}
	s.logger.Info("scheduler configured",
		zap.Bool("enabled", enabled),
		zap.Int("interval_minutes", intervalMinutes))
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		enabled, interval := s.snapshot()

		if !enabled {
			// Parked until re-enabled or shut down.
			select {
			case <-ctx.Done():
				return
			case <-s.reload:
				continue
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.reload:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	err := s.runner(ctx)
	switch {
	case err == nil:
	case util.HasCode(err, util.CodeIngestBusy):
		// A manual trigger holds the mailbox; this tick is skipped.
		s.logger.Info("scheduled pass skipped, ingestion already running")
	default:
		s.logger.Error("scheduled pass failed", zap.Error(err))
	}
}

func (s *Scheduler) snapshot() (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, s.interval
}
