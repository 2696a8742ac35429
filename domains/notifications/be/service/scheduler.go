package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/platform/go/lock"
	"github.com/zenGate-Global/nuzum-saas/platform/go/metrics"
)

const scanLockKey = "notifications:expiry-scan"

// Scanner is the work the scheduler repeats.
type Scanner interface {
	ScanAndNotify(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the scanner on an interval. Every run first takes a lease from the locker so
// that only one replica scans at a time.
type Scheduler struct {
	scanner  Scanner
	locker   lock.Locker
	interval time.Duration
	leaseTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler builds a Scheduler; interval defaults to one hour.
func NewScheduler(scanner Scanner, locker lock.Locker, interval time.Duration, now func() time.Time, logger *zap.Logger) *Scheduler {
	if scanner == nil || locker == nil || logger == nil {
		panic("scheduler: scanner, locker and logger are required")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		scanner:  scanner,
		locker:   locker,
		interval: interval,
		leaseTTL: interval / 2,
		now:      now,
		logger:   logger.With(zap.String("component", "notification-scheduler")),
	}
}

// Start scans once immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("expiry scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single guarded scan. ran is false when another holder owns the lease.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool, err error) {
	release, ok, err := s.locker.TryLock(ctx, scanLockKey, s.leaseTTL)
	if err != nil {
		metrics.ObserveNotificationScan("lock_error")
		return false, err
	}
	if !ok {
		metrics.ObserveNotificationScan("skipped")
		s.logger.Debug("scan skipped, lease held elsewhere")
		return false, nil
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			s.logger.Warn("release scan lease", zap.Error(relErr))
		}
	}()

	created, err := s.scanner.ScanAndNotify(ctx, s.now())
	if err != nil {
		metrics.ObserveNotificationScan("error")
		return true, err
	}
	metrics.ObserveNotificationScan("ok")
	s.logger.Info("scan complete", zap.Int("created", created))
	return true, nil
}
