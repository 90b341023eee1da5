// Package refresh drives the periodic background re-fetch of market data.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func is the fetch-and-reconcile pipeline invoked on each tick. The ticks
// run in "silent" mode: the implementation should not raise loading chrome,
// only error or success indication.
type Func func(ctx context.Context) error

// Scheduler runs a single repeating timer. Starting while already running
// stops the previous timer first, so two timers never overlap. A tick that
// arrives while the previous refresh is still in flight is skipped rather
// than queued.
type Scheduler struct {
	fn     Func
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	busy    bool
}

// New creates a scheduler around the given refresh function.
func New(fn Func, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{fn: fn, logger: logger}
}

// Start begins ticking at the given interval. Any previously started timer
// is stopped first.
func (s *Scheduler) Start(interval time.Duration) {
	s.Stop()

	s.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, interval)

	s.logger.Info("auto-refresh started", "interval", interval)
}

// Stop halts future ticks. An in-flight refresh is not cancelled; Stop waits
// for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("auto-refresh stopped")
}

// Running reports whether the scheduler is currently ticking.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The loop ctx only halts the ticker. A tick in flight when
			// Stop is called runs to completion on its own context.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.tick(context.Background())
			}()
		}
	}
}

// tick invokes the refresh function unless the previous one is still running.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.logger.Debug("refresh tick skipped, previous refresh still running")
		return
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := s.fn(ctx); err != nil {
		s.logger.Warn("background refresh failed", "err", err)
	}
}
