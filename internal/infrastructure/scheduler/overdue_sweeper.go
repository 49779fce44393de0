package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSchedulerNotRunning = errors.New("overdue sweeper is not running")
	ErrInvalidConfig       = errors.New("invalid overdue sweeper configuration")
)

// SystemActor is recorded as the actor of scheduler-driven transitions
const SystemActor = "system:overdue-sweeper"

// OverdueMarker persists OVERDUE on open invoices past their due date
type OverdueMarker interface {
	SweepOverdue(ctx context.Context, actor string) (int, error)
}

// OverdueSweeperConfig holds configuration for the overdue sweeper
type OverdueSweeperConfig struct {
	Enabled bool

	// Interval between sweeps
	Interval time.Duration

	// RunTimeout bounds a single sweep
	RunTimeout time.Duration
}

// DefaultOverdueSweeperConfig returns default configuration
func DefaultOverdueSweeperConfig() OverdueSweeperConfig {
	return OverdueSweeperConfig{
		Enabled:    true,
		Interval:   time.Hour,
		RunTimeout: 5 * time.Minute,
	}
}

// OverdueSweeper periodically moves stored invoice status to OVERDUE.
// Reads derive OVERDUE on their own, so a stopped sweeper only delays
// the stored status and the overdue statistics.
type OverdueSweeper struct {
	marker    OverdueMarker
	logger    *zap.Logger
	config    OverdueSweeperConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   time.Time
}

// NewOverdueSweeper creates a sweeper; Start launches it
func NewOverdueSweeper(marker OverdueMarker, logger *zap.Logger, config OverdueSweeperConfig) (*OverdueSweeper, error) {
	if config.Enabled && config.Interval <= 0 {
		return nil, fmt.Errorf("%w: sweep interval must be positive", ErrInvalidConfig)
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultOverdueSweeperConfig().RunTimeout
	}
	return &OverdueSweeper{
		marker: marker,
		logger: logger.Named("overdue-sweeper"),
		config: config,
	}, nil
}

// Start runs one sweep immediately and then every Interval
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Overdue sweeper is disabled")
		return nil
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(ctx)

	s.logger.Info("Overdue sweeper started", zap.Duration("interval", s.config.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep, bounded by ctx
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Overdue sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Overdue sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *OverdueSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *OverdueSweeper) execute(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	changed, err := s.marker.SweepOverdue(runCtx, SystemActor)
	duration := time.Since(start)

	s.mu.Lock()
	s.lastRun = start
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Overdue sweep failed", zap.Duration("duration", duration), zap.Error(err))
		return
	}
	s.logger.Debug("Overdue sweep completed",
		zap.Duration("duration", duration),
		zap.Int("changed", changed),
	)
}

// TriggerNow runs a sweep outside the schedule
func (s *OverdueSweeper) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(ctx)
	}()
	return nil
}

// IsRunning returns whether the sweeper is running
func (s *OverdueSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastRun returns when the last sweep started; zero before the first one
func (s *OverdueSweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
