package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/repo"
	"github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subsrepo "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/repo"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/retry"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	subs    *subscriptions.Service
	clock   *fixedClock
	counter *repo.MemoryCounter
	svc     *service.Service
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func newFixture(t *testing.T, rows service.Counter) fixture {
	t.Helper()
	clk := &fixedClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	subs := subscriptions.New(subsrepo.NewMemoryRepository(nil), plans.Default(), zaptest.NewLogger(t), subscriptions.WithClock(clk.Now))
	counter := repo.NewMemoryCounter(nil)
	if rows == nil {
		rows = counter
	}
	return fixture{
		subs:    subs,
		clock:   clk,
		counter: counter,
		svc:     service.New(subs, rows, zaptest.NewLogger(t), service.WithRetry(fastRetry())),
	}
}

func requireDenied(t *testing.T, err error, code string) *service.DeniedError {
	t.Helper()
	var denied *service.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, code, denied.Code)
	return denied
}

func TestReserveUpToPlanLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	company := uuid.New()
	_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		res, err := f.svc.CheckAndReserve(ctx, company, plans.ResourceUsers)
		require.NoError(t, err)
		require.Equal(t, i, res.Used)
		require.Equal(t, 5, res.Limit)
	}

	_, err = f.svc.CheckAndReserve(ctx, company, plans.ResourceUsers)
	denied := requireDenied(t, err, service.CodeLimitReached)
	require.Equal(t, "users limit reached (5)", denied.Reason)
	require.Equal(t, subscriptions.ActionUpgrade, denied.Action)
	require.False(t, denied.SubscriptionDenied())
}

func TestParallelReservationsNeverOvershoot(t *testing.T) {
	t.Parallel()

	company := uuid.New()
	clk := &fixedClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	subs := subscriptions.New(subsrepo.NewMemoryRepository(nil), plans.Default(), zaptest.NewLogger(t), subscriptions.WithClock(clk.Now))
	counter := repo.NewMemoryCounter(func(id uuid.UUID, resource string) int {
		if id == company && resource == plans.ResourceEmployees {
			return 49
		}
		return 0
	})
	svc := service.New(subs, counter, zaptest.NewLogger(t), service.WithRetry(fastRetry()))

	_, err := subs.CreateTrial(context.Background(), company, plans.Basic)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		denied  atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckAndReserve(context.Background(), company, plans.ResourceEmployees)
			var d *service.DeniedError
			switch {
			case err == nil:
				granted.Add(1)
			case errors.As(err, &d):
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, granted.Load())
	require.EqualValues(t, 9, denied.Load())

	usage, err := svc.Usage(context.Background(), company)
	require.NoError(t, err)
	require.Equal(t, service.Usage{Resource: plans.ResourceEmployees, Used: 50, Limit: 50, Remaining: 0}, usage[0])
}

func TestSubscriptionStateDenials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no subscription", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.CheckAndReserve(ctx, uuid.New(), plans.ResourceVehicles)
		denied := requireDenied(t, err, service.CodeNoSubscription)
		require.True(t, denied.SubscriptionDenied())
		require.Equal(t, subscriptions.ActionSubscribe, denied.Action)
	})

	t.Run("suspended", func(t *testing.T) {
		f := newFixture(t, nil)
		company := uuid.New()
		_, err := f.subs.CreateTrial(ctx, company, plans.Premium)
		require.NoError(t, err)
		_, err = f.subs.Suspend(ctx, company)
		require.NoError(t, err)

		_, err = f.svc.CheckAndReserve(ctx, company, plans.ResourceVehicles)
		requireDenied(t, err, service.CodeSuspended)
	})

	t.Run("trial expired", func(t *testing.T) {
		f := newFixture(t, nil)
		company := uuid.New()
		_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
		require.NoError(t, err)
		f.clock.Advance(31 * 24 * time.Hour)

		_, err = f.svc.CheckAndReserve(ctx, company, plans.ResourceEmployees)
		denied := requireDenied(t, err, service.CodeTrialExpired)
		require.Equal(t, subscriptions.ActionUpgrade, denied.Action)
	})

	t.Run("paid expired", func(t *testing.T) {
		f := newFixture(t, nil)
		company := uuid.New()
		_, err := f.subs.UpgradeToPaid(ctx, company, plans.Premium, 1)
		require.NoError(t, err)
		f.clock.Advance(31 * 24 * time.Hour)

		_, err = f.svc.CheckAndReserve(ctx, company, plans.ResourceEmployees)
		denied := requireDenied(t, err, service.CodeExpired)
		require.Equal(t, subscriptions.ActionRenew, denied.Action)
	})
}

type conflictingCounter struct {
	service.Counter
	failures atomic.Int32
	attempts atomic.Int32
}

func (c *conflictingCounter) Reserve(ctx context.Context, companyID uuid.UUID, resource string, limit int) (service.Hold, bool, error) {
	c.attempts.Add(1)
	if c.failures.Add(-1) >= 0 {
		return service.Hold{}, false, service.ErrConflict
	}
	return c.Counter.Reserve(ctx, companyID, resource, limit)
}

func TestConflictsAreRetried(t *testing.T) {
	t.Parallel()

	counter := &conflictingCounter{Counter: repo.NewMemoryCounter(nil)}
	counter.failures.Store(2)
	f := newFixture(t, counter)
	company := uuid.New()
	_, err := f.subs.CreateTrial(context.Background(), company, plans.Basic)
	require.NoError(t, err)

	res, err := f.svc.CheckAndReserve(context.Background(), company, plans.ResourceVehicles)
	require.NoError(t, err)
	require.Equal(t, 1, res.Used)
	require.EqualValues(t, 3, counter.attempts.Load())
}

func TestPersistentConflictsDeny(t *testing.T) {
	t.Parallel()

	counter := &conflictingCounter{Counter: repo.NewMemoryCounter(nil)}
	counter.failures.Store(100)
	f := newFixture(t, counter)
	company := uuid.New()
	_, err := f.subs.CreateTrial(context.Background(), company, plans.Basic)
	require.NoError(t, err)

	_, err = f.svc.CheckAndReserve(context.Background(), company, plans.ResourceVehicles)
	requireDenied(t, err, service.CodeConflict)
	require.EqualValues(t, 3, counter.attempts.Load())
}

func TestCancelledContextFailsClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	company := uuid.New()
	_, err := f.subs.CreateTrial(context.Background(), company, plans.Basic)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.CheckAndReserve(ctx, company, plans.ResourceVehicles)
	requireDenied(t, err, service.CodeTimeout)
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	company := uuid.New()
	_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	res, err := f.svc.CheckAndReserve(ctx, company, plans.ResourceVehicles)
	require.NoError(t, err)
	_, err = f.svc.CheckAndReserve(ctx, company, plans.ResourceVehicles)
	require.NoError(t, err)

	require.NoError(t, f.svc.Release(ctx, res))
	require.NoError(t, f.svc.Release(ctx, res))
	require.NoError(t, f.svc.Release(ctx, nil))

	used, err := f.counter.Usage(ctx, company)
	require.NoError(t, err)
	require.Equal(t, 1, used[plans.ResourceVehicles])
}

func TestReleaseAfterSettleKeepsSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	company := uuid.New()
	_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	res, err := f.svc.CheckAndReserve(ctx, company, plans.ResourceVehicles)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, res.HoldID)

	require.NoError(t, f.svc.Settle(ctx, res))
	require.NoError(t, f.svc.Release(ctx, res))
	require.NoError(t, f.counter.ReleaseHold(ctx, company, plans.ResourceVehicles, res.HoldID))

	used, err := f.counter.Usage(ctx, company)
	require.NoError(t, err)
	require.Equal(t, 1, used[plans.ResourceVehicles])
}

func TestReserveAndCreateReleasesOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	company := uuid.New()
	_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	boom := errors.New("insert failed")
	err = f.svc.ReserveAndCreate(ctx, company, plans.ResourceEmployees, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	require.NoError(t, f.svc.ReserveAndCreate(ctx, company, plans.ResourceEmployees, func(context.Context) error { return nil }))

	usage, err := f.svc.Usage(ctx, company)
	require.NoError(t, err)
	require.Equal(t, 1, usage[0].Used)
	require.Equal(t, 49, usage[0].Remaining)
}

func TestReconcileResetsDrift(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	company := uuid.New()
	_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	for range 3 {
		res, err := f.svc.CheckAndReserve(ctx, company, plans.ResourceUsers)
		require.NoError(t, err)
		require.NoError(t, f.svc.Settle(ctx, res))
	}

	usage, err := f.svc.Reconcile(ctx, company)
	require.NoError(t, err)
	for _, u := range usage {
		require.Zero(t, u.Used, u.Resource)
	}
	require.Equal(t, 5, usage[2].Remaining)
}

func TestUsageWithoutSubscriptionHasZeroLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	usage, err := f.svc.Usage(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, usage, 3)
	for _, u := range usage {
		require.Zero(t, u.Limit)
		require.Zero(t, u.Remaining)
	}
}

func TestReconcileKeepsPendingReservations(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	company := uuid.New()
	rows := 4
	subs := subscriptions.New(subsrepo.NewMemoryRepository(nil), plans.Default(), zaptest.NewLogger(t), subscriptions.WithClock(clk.Now))
	counter := repo.NewMemoryCounter(func(id uuid.UUID, resource string) int {
		if id == company && resource == plans.ResourceUsers {
			return rows
		}
		return 0
	}).WithClock(clk.Now)
	svc := service.New(subs, counter, zaptest.NewLogger(t), service.WithRetry(fastRetry()))

	ctx := context.Background()
	_, err := subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	pending, err := svc.CheckAndReserve(ctx, company, plans.ResourceUsers)
	require.NoError(t, err)

	usage, err := svc.Reconcile(ctx, company)
	require.NoError(t, err)
	require.Equal(t, 5, usage[2].Used)

	_, err = svc.CheckAndReserve(ctx, company, plans.ResourceUsers)
	requireDenied(t, err, service.CodeLimitReached)

	require.NoError(t, svc.Release(ctx, pending))
	next, err := svc.CheckAndReserve(ctx, company, plans.ResourceUsers)
	require.NoError(t, err)
	require.Equal(t, 5, next.Used)
}

func TestReconcileDropsExpiredReservations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.counter.WithClock(f.clock.Now)
	ctx := context.Background()
	company := uuid.New()
	_, err := f.subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	leaked, err := f.svc.CheckAndReserve(ctx, company, plans.ResourceVehicles)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	usage, err := f.svc.Reconcile(ctx, company)
	require.NoError(t, err)
	require.Zero(t, usage[1].Used)

	require.NoError(t, f.svc.Release(ctx, leaked))
	used, err := f.counter.Usage(ctx, company)
	require.NoError(t, err)
	require.Zero(t, used[plans.ResourceVehicles])
}
