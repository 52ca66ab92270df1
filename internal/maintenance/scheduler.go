// Package maintenance runs the hybrid index cleaner on a fixed interval.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner is one maintenance pass. hybrid.Cleaner implements it.
type Runner interface {
	Run(ctx context.Context) (bool, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Interval between cleaner runs.
	Interval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
	}
}

// Scheduler calls a Runner periodically until stopped.
type Scheduler struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	triggerCh chan struct{}

	runs     int
	failures int
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		runner:    runner,
		logger:    logger.With("component", "maintenance"),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start starts the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(runCtx)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop stops the scheduler and waits for a run in progress to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an immediate run.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
		// Already triggered
	}
}

// Counts returns the number of completed runs and of failed runs.
func (s *Scheduler) Counts() (runs, failures int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs, s.failures
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	changed, err := s.runner.Run(ctx)

	s.mu.Lock()
	s.runs++
	if err != nil {
		s.failures++
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("cleanup run failed", "changed", changed, "error", err)
		return
	}
	if changed {
		s.logger.Debug("cleanup run changed indexes")
	}
}
