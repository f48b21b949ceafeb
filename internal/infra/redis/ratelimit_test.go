package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRateLimiterWindow(t *testing.T) {
	_, client := newServer(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(client, clock, 3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "join:10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := limiter.Allow(ctx, "join:10.0.0.1"); ok {
		t.Fatalf("expected fourth attempt to be limited")
	}
	if ok, _ := limiter.Allow(ctx, "join:10.0.0.2"); !ok {
		t.Fatalf("other addresses are independent")
	}

	clock.Advance(61 * time.Second)
	if ok, _ := limiter.Allow(ctx, "join:10.0.0.1"); !ok {
		t.Fatalf("expected window to slide")
	}
}
