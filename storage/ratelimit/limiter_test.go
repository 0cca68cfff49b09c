package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/core/hiring"
)

// exerciseLimiter runs the same window scenario against any Limiter.
func exerciseLimiter(t *testing.T, l Limiter, clk *clock.FakeClock) {
	t.Helper()
	ctx := context.Background()
	q := hiring.Quota{Limit: 2, Window: time.Minute}

	first, err := l.Allow(ctx, "agent:job_offer", q)
	if err != nil || !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first = %+v err=%v", first, err)
	}
	clk.Advance(10 * time.Second)
	second, _ := l.Allow(ctx, "agent:job_offer", q)
	if !second.Allowed || second.Remaining != 0 {
		t.Fatalf("second = %+v", second)
	}
	third, _ := l.Allow(ctx, "agent:job_offer", q)
	if third.Allowed {
		t.Fatalf("third call allowed past limit")
	}
	if want := first.ResetAt; !third.ResetAt.Equal(want) {
		t.Fatalf("reset_at = %s, want %s", third.ResetAt, want)
	}

	other, _ := l.Allow(ctx, "agent:message", q)
	if !other.Allowed {
		t.Fatalf("keys should be independent")
	}

	if err := l.Refund(ctx, "agent:job_offer", second); err != nil {
		t.Fatalf("refund: %v", err)
	}
	peek, _ := l.Peek(ctx, "agent:job_offer", q)
	if !peek.Allowed || peek.Remaining != 1 {
		t.Fatalf("after refund peek = %+v", peek)
	}
	again, _ := l.Peek(ctx, "agent:job_offer", q)
	if again.Remaining != 1 {
		t.Fatalf("peek consumed a slot")
	}

	clk.Advance(time.Minute)
	later, _ := l.Allow(ctx, "agent:job_offer", q)
	if !later.Allowed || later.Remaining != 1 {
		t.Fatalf("window did not slide: %+v", later)
	}
}

func TestMemoryLimiter(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	exerciseLimiter(t, NewMemory(clk), clk)
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	exerciseLimiter(t, NewRedis(client, clk), clk)
}

func TestRefundDeniedIsNoop(t *testing.T) {
	l := NewMemory(nil)
	if err := l.Refund(context.Background(), "k", Decision{}); err != nil {
		t.Fatalf("refund: %v", err)
	}
}
