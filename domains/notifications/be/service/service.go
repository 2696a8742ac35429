package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zenGate-Global/nuzum-saas/domains/notifications/be/transport"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/metrics"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// TypeExpiryWarning marks notifications about a subscription ending soon.
const TypeExpiryWarning = "expiry_warning"

// DedupWindow is the minimum gap between two notifications of one type for one company.
const DedupWindow = 24 * time.Hour

// scanConcurrency bounds how many companies are processed at once.
const scanConcurrency = 8

var ErrNotFound = errors.New("notification not found")

// Notification is one stored, tenant-visible message.
type Notification struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Type      string
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// Repository stores notifications. AppendIfNoneSince must be atomic per company: two concurrent
// calls for the same company and type write at most one row.
type Repository interface {
	AppendIfNoneSince(ctx context.Context, n Notification, since time.Time) (Notification, bool, error)
	List(ctx context.Context, scope tenant.Scope, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Notification, error)
}

// Subscriptions is the lifecycle manager surface the scanner reads.
type Subscriptions interface {
	ExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]subscriptions.Subscription, error)
}

type Service struct {
	repo      Repository
	subs      Subscriptions
	transport transport.Transport
	logger    *zap.Logger
}

func New(repo Repository, subs Subscriptions, tr transport.Transport, logger *zap.Logger) *Service {
	if repo == nil {
		panic("notifications repo is required")
	}
	if subs == nil {
		panic("subscriptions are required")
	}
	if tr == nil {
		panic("transport is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, subs: subs, transport: tr, logger: logger}
}

// ScanAndNotify writes one expiry warning for every active subscription ending within the
// warning window, skipping companies warned during the last DedupWindow. It returns how many
// notifications were created. Delivery failures are logged and do not fail the scan; a store
// failure for one company is reported after every other company has been processed.
func (s *Service) ScanAndNotify(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.subs.ExpiringWithin(ctx, now, subscriptions.ExpiryWarningWindow)
	if err != nil {
		return 0, fmt.Errorf("list expiring subscriptions: %w", err)
	}

	var (
		created atomic.Int64
		mu      sync.Mutex
		failed  []error
	)
	var g errgroup.Group
	g.SetLimit(scanConcurrency)
	for _, sub := range subs {
		g.Go(func() error {
			ok, err := s.notifyExpiring(ctx, sub, now)
			if err != nil {
				mu.Lock()
				failed = append(failed, fmt.Errorf("company %s: %w", sub.CompanyID, err))
				mu.Unlock()
				return nil
			}
			if ok {
				created.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	err = errors.Join(failed...)

	s.logger.Info("expiry scan finished",
		zap.Int("expiring", len(subs)),
		zap.Int64("created", created.Load()),
		zap.Error(err),
	)
	return int(created.Load()), err
}

func (s *Service) notifyExpiring(ctx context.Context, sub subscriptions.Subscription, now time.Time) (bool, error) {
	days, _ := sub.DaysRemaining(now)
	n := Notification{
		ID:        uuid.New(),
		CompanyID: sub.CompanyID,
		Type:      TypeExpiryWarning,
		Title:     "Subscription expiring",
		Message:   fmt.Sprintf("Your subscription ends in %d days. Renew to avoid an interruption of service.", days),
		CreatedAt: now,
	}

	stored, written, err := s.repo.AppendIfNoneSince(ctx, n, now.Add(-DedupWindow))
	if err != nil {
		return false, err
	}
	if !written {
		metrics.ObserveNotification("skipped")
		return false, nil
	}
	metrics.ObserveNotification("created")

	msg := transport.Message{
		NotificationID: stored.ID,
		CompanyID:      stored.CompanyID,
		Type:           stored.Type,
		Title:          stored.Title,
		Body:           stored.Message,
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		metrics.ObserveNotification("delivery_failed")
		s.logger.Warn("notification delivery failed",
			zap.String("company_id", stored.CompanyID.String()),
			zap.String("notification_id", stored.ID.String()),
			zap.Error(err),
		)
	}
	return true, nil
}

// List returns the notifications of the scope's company, newest first.
func (s *Service) List(ctx context.Context, scope tenant.Scope, unreadOnly bool, limit int) ([]Notification, error) {
	return s.repo.List(ctx, scope, unreadOnly, limit)
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Notification, error) {
	return s.repo.MarkRead(ctx, scope, id)
}
