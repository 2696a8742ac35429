package lock

import (
	"context"
	"sync"
	"time"
)

// ReleaseFunc gives the lock back. It is a no-op once the lease has expired and been taken by another holder.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out short leases on named keys. TryLock never blocks waiting for the holder.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error)
}

// Local is an in-process Locker for single-replica deployments and tests.
type Local struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token     uint64
	expiresAt time.Time
}

// NewLocal constructs an empty Local locker.
func NewLocal() *Local {
	return &Local{leases: make(map[string]lease), now: time.Now}
}

var localTokens struct {
	sync.Mutex
	next uint64
}

func nextLocalToken() uint64 {
	localTokens.Lock()
	defer localTokens.Unlock()
	localTokens.next++
	return localTokens.next
}

func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, held := l.leases[key]; held && now.Before(current.expiresAt) {
		return nil, false, nil
	}

	token := nextLocalToken()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, held := l.leases[key]; held && current.token == token {
			delete(l.leases, key)
		}
		return nil
	}
	return release, true, nil
}
