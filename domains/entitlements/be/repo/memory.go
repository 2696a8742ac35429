package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
)

// RowCount returns the number of existing rows of resource owned by a company.
type RowCount func(companyID uuid.UUID, resource string) int

type counterKey struct {
	company  uuid.UUID
	resource string
}

type pendingHold struct {
	key     counterKey
	expires time.Time
}

// MemoryCounter is an in-process Counter with the same seeding and hold rules as the database one.
type MemoryCounter struct {
	mu    sync.Mutex
	used  map[counterKey]int
	holds map[uuid.UUID]pendingHold
	count RowCount
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryCounter returns a counter that seeds from count; a nil count seeds every kind at zero.
func NewMemoryCounter(count RowCount) *MemoryCounter {
	if count == nil {
		count = func(uuid.UUID, string) int { return 0 }
	}
	return &MemoryCounter{
		used:  make(map[counterKey]int),
		holds: make(map[uuid.UUID]pendingHold),
		count: count,
		ttl:   persistence.DefaultHoldTTL,
		now:   time.Now,
	}
}

// WithClock replaces the clock used to expire holds.
func (c *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	c.now = now
	return c
}

func known(resource string) bool {
	for _, r := range service.Resources() {
		if r == resource {
			return true
		}
	}
	return false
}

func (c *MemoryCounter) seed(key counterKey) int {
	used, ok := c.used[key]
	if !ok {
		used = c.count(key.company, key.resource)
		c.used[key] = used
	}
	return used
}

func (c *MemoryCounter) Reserve(ctx context.Context, companyID uuid.UUID, resource string, limit int) (service.Hold, bool, error) {
	if !known(resource) {
		return service.Hold{}, false, service.ErrUnknownResource
	}
	if err := ctx.Err(); err != nil {
		return service.Hold{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := counterKey{companyID, resource}
	used := c.seed(key)
	if used >= limit {
		return service.Hold{Used: used}, false, nil
	}
	c.used[key] = used + 1
	id := uuid.New()
	c.holds[id] = pendingHold{key: key, expires: c.now().Add(c.ttl)}
	return service.Hold{ID: id, Used: used + 1}, true, nil
}

func (c *MemoryCounter) Settle(ctx context.Context, holdID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.holds, holdID)
	return nil
}

func (c *MemoryCounter) ReleaseHold(ctx context.Context, companyID uuid.UUID, resource string, holdID uuid.UUID) error {
	if !known(resource) {
		return service.ErrUnknownResource
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := counterKey{companyID, resource}
	if h, ok := c.holds[holdID]; !ok || h.key != key {
		return nil
	}
	delete(c.holds, holdID)
	c.decrement(key)
	return nil
}

func (c *MemoryCounter) Release(ctx context.Context, companyID uuid.UUID, resource string) error {
	if !known(resource) {
		return service.ErrUnknownResource
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decrement(counterKey{companyID, resource})
	return nil
}

func (c *MemoryCounter) decrement(key counterKey) {
	if used, ok := c.used[key]; ok && used > 0 {
		c.used[key] = used - 1
	}
}

func (c *MemoryCounter) Usage(ctx context.Context, companyID uuid.UUID) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(service.Resources()))
	for _, resource := range service.Resources() {
		if used, ok := c.used[counterKey{companyID, resource}]; ok {
			out[resource] = used
			continue
		}
		out[resource] = c.count(companyID, resource)
	}
	return out, nil
}

func (c *MemoryCounter) Reconcile(ctx context.Context, companyID uuid.UUID) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	pending := make(map[string]int)
	for id, h := range c.holds {
		if h.key.company != companyID {
			continue
		}
		if !now.Before(h.expires) {
			delete(c.holds, id)
			continue
		}
		pending[h.key.resource]++
	}

	out := make(map[string]int, len(service.Resources()))
	for _, resource := range service.Resources() {
		n := c.count(companyID, resource) + pending[resource]
		c.used[counterKey{companyID, resource}] = n
		out[resource] = n
	}
	return out, nil
}

var _ service.Counter = (*MemoryCounter)(nil)
