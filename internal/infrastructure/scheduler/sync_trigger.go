package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/catalogsync/internal/application/catalogsync"
	domain "github.com/erp/catalogsync/internal/domain/catalogsync"
	"go.uber.org/zap"
)

// ErrInvalidTriggerConfig is returned for a non-positive interval or a negative delay
var ErrInvalidTriggerConfig = errors.New("scheduler: invalid sync trigger configuration")

// SyncRunner runs one catalog sync under the tenant's run lock
type SyncRunner interface {
	Run(ctx context.Context, trigger string) (catalogsync.SyncResult, error)
}

// SyncTriggerConfig holds configuration for the periodic sync trigger
type SyncTriggerConfig struct {
	// Interval is the time between two triggered runs
	Interval time.Duration
	// InitialDelay is the wait before the first run
	InitialDelay time.Duration
}

// DefaultSyncTriggerConfig returns default configuration
func DefaultSyncTriggerConfig() SyncTriggerConfig {
	return SyncTriggerConfig{
		Interval:     time.Hour,
		InitialDelay: time.Minute,
	}
}

// Validate validates the configuration
func (c *SyncTriggerConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidTriggerConfig
	}
	if c.InitialDelay < 0 {
		return ErrInvalidTriggerConfig
	}
	return nil
}

// SyncTrigger periodically triggers a catalog sync. A tick that finds a
// run in progress is skipped, never queued.
type SyncTrigger struct {
	config SyncTriggerConfig
	runner SyncRunner
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   *catalogsync.SyncResult
}

// NewSyncTrigger creates a new sync trigger
func NewSyncTrigger(config SyncTriggerConfig, runner SyncRunner, logger *zap.Logger) (*SyncTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SyncTrigger{
		config: config,
		runner: runner,
		logger: logger,
	}, nil
}

// Start starts the trigger loop
func (s *SyncTrigger) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Catalog sync trigger started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("initial_delay", s.config.InitialDelay),
	)
	return nil
}

// Stop stops the loop and waits for a run in flight, bounded by ctx
func (s *SyncTrigger) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Catalog sync trigger stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Catalog sync trigger stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is started
func (s *SyncTrigger) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastResult returns the result of the last completed triggered run
func (s *SyncTrigger) LastResult() (catalogsync.SyncResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return catalogsync.SyncResult{}, false
	}
	return *s.lastRun, true
}

func (s *SyncTrigger) runLoop(ctx context.Context) {
	defer s.wg.Done()

	delay := time.NewTimer(s.config.InitialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// trigger runs one sync and logs its outcome
func (s *SyncTrigger) trigger(ctx context.Context) {
	result, err := s.runner.Run(ctx, catalogsync.TriggerScheduler)
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		s.logger.Info("Scheduled catalog sync skipped, a run is in progress")
		return
	case err != nil:
		s.logger.Error("Scheduled catalog sync could not start", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastRun = &result
	s.mu.Unlock()

	p := result.Stats.Product()
	s.logger.Info("Scheduled catalog sync finished",
		zap.String("run_id", result.RunID.String()),
		zap.String("status", string(result.Status)),
		zap.Int("adds", p.Adds),
		zap.Int("updates", p.Updates),
		zap.Int("deletes", p.Deletes),
		zap.Int("errors", result.Stats.TotalErrors()),
	)
}
