/*
scheduler.go - Automated reservation expiry

PURPOSE:
  Periodically expires kiosk reservations whose daily cutoff has passed
  without being marked used, freeing the slot for walk-ins.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls kiosk.Scheduler.RunExpirySweep, which is idempotent:
    overlapping sweeps (this loop, POST /api/admin/sweep, `clubd sweep`)
    each move a given row at most once
  - Remembers the last result for the admin screen

CONFIGURATION:
  - Interval: How often to sweep (config scheduler.interval, default 1m)
  - Enabled:  Whether the loop runs at all (config scheduler.enabled)

USAGE:
  scheduler := NewExpiryScheduler(kiosks, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - kiosk/scheduler.go: RunExpirySweep
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/club-engine/kiosk"
)

const sweepTimeout = 30 * time.Second

// ExpiryScheduler runs the reservation expiry sweep on a ticker.
type ExpiryScheduler struct {
	Kiosks   *kiosk.Scheduler
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *kiosk.SweepResult
}

// NewExpiryScheduler creates an enabled scheduler with a one-minute interval.
func NewExpiryScheduler(kiosks *kiosk.Scheduler, logger *zap.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryScheduler{
		Kiosks:   kiosks,
		Interval: time.Minute,
		Enabled:  true,
		logger:   logger.Named("expiry"),
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (s *ExpiryScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("expiry scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger.Info("expiry scheduler started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("expiry scheduler stopped")
}

func (s *ExpiryScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-stop:
			return
		}
	}
}

func (s *ExpiryScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *ExpiryScheduler) RunNow(ctx context.Context) (kiosk.SweepResult, error) {
	res, err := s.Kiosks.RunExpirySweep(ctx)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	if res.Expired > 0 {
		s.logger.Info("expired reservations", zap.Int("count", res.Expired), zap.Time("at", res.At))
	} else {
		s.logger.Debug("expiry sweep found nothing", zap.Time("at", res.At))
	}
	return res, nil
}

// LastRun returns the most recent successful sweep, if any.
func (s *ExpiryScheduler) LastRun() (kiosk.SweepResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return kiosk.SweepResult{}, false
	}
	return *s.last, true
}

// NextRunTime returns when the next scheduled sweep will occur.
func (s *ExpiryScheduler) NextRunTime() time.Time {
	return time.Now().Add(s.Interval)
}
