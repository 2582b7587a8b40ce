package mongodb

import (
	"context"
	"sync"
	"time"
)

const defaultPingTTL = 30 * time.Second

// liveness remembers when the server last answered a ping. Failures are never cached.
type liveness struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time // mockable
	aliveAt time.Time
}

func newLiveness(ttl time.Duration) *liveness {
	if ttl <= 0 {
		ttl = defaultPingTTL
	}
	return &liveness{ttl: ttl, now: time.Now}
}

func (l *liveness) check(ctx context.Context, ping func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.aliveAt.IsZero() && now.Sub(l.aliveAt) < l.ttl {
		return nil
	}
	if err := ping(ctx); err != nil {
		l.aliveAt = time.Time{}
		return err
	}
	l.aliveAt = now
	return nil
}
