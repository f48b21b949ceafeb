package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RateLimiter is a sliding-window limiter keyed by arbitrary strings.
type RateLimiter struct {
	clock  clockwork.Clock
	limit  int
	window time.Duration

	mu     sync.Mutex
	events map[string][]time.Time
}

func NewRateLimiter(clock clockwork.Clock, limit int, window time.Duration) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		clock:  clock,
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

func (l *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, nil
	}
	l.events[key] = append(kept, now)
	l.sweep(key, cutoff)
	return true, nil
}

// sweep drops one other key whose events all fell out of the window, so keys
// that stop sending do not accumulate.
func (l *RateLimiter) sweep(skip string, cutoff time.Time) {
	for key, events := range l.events {
		if key == skip {
			continue
		}
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(l.events, key)
		}
		return
	}
}
