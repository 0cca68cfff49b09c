package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/human-pages-ai/humanpages/clock"
)

func TestMemoryKeyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKeyStore()

	key, err := store.Issue(ctx, Principal{Kind: KindAgent, ID: "agent-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(key, "hp_") {
		t.Fatalf("unexpected key format %q", key)
	}
	p, err := store.Resolve(ctx, key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Kind != KindAgent || p.ID != "agent-1" {
		t.Fatalf("resolved %+v", p)
	}

	bad := []string{"", "garbage", key + "x", "hp_unknown_secret"}
	for _, k := range bad {
		if _, err := store.Resolve(ctx, k); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Resolve(%q) = %v, want ErrInvalidKey", k, err)
		}
	}
}

func TestKeyHashNotPlaintext(t *testing.T) {
	key, rec, err := newKey(Principal{Kind: KindHuman, ID: "h1"}, time.Now())
	if err != nil {
		t.Fatalf("newKey: %v", err)
	}
	_, secret, err := splitKey(key)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if strings.Contains(rec.KeyHash, secret) {
		t.Fatalf("stored hash contains the secret")
	}
	if !rec.matches(secret) || rec.matches(secret+"0") {
		t.Fatalf("hash comparison wrong")
	}
}

func TestMemoryCodeStore(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryCodeStore(time.Hour, clk)

	first, err := store.Issue(ctx, "a1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(first.Code) != len("HP-")+codeLength || !strings.HasPrefix(first.Code, "HP-") {
		t.Fatalf("bad code %q", first.Code)
	}

	t.Run("reissue replaces", func(t *testing.T) {
		second, err := store.Issue(ctx, "a1")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		cur, err := store.Current(ctx, "a1")
		if err != nil || cur.Code != second.Code {
			t.Fatalf("current = %+v, %v", cur, err)
		}
		if second.Code != first.Code {
			if err := store.Consume(ctx, "a1", first.Code); !errors.Is(err, ErrNoCode) {
				t.Fatalf("stale code consumed: %v", err)
			}
		}
		if err := store.Consume(ctx, "a1", second.Code); err != nil {
			t.Fatalf("consume: %v", err)
		}
		if err := store.Consume(ctx, "a1", second.Code); !errors.Is(err, ErrNoCode) {
			t.Fatalf("code consumed twice: %v", err)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		if _, err := store.Issue(ctx, "a2"); err != nil {
			t.Fatalf("issue: %v", err)
		}
		clk.Advance(time.Hour)
		if _, err := store.Current(ctx, "a2"); !errors.Is(err, ErrNoCode) {
			t.Fatalf("expected expired code, got %v", err)
		}
	})
}

func TestRedisCodeStore(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisCodeStore(client, time.Minute)

	ac, err := store.Issue(ctx, "a1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	cur, err := store.Current(ctx, "a1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Code != ac.Code || cur.AgentID != "a1" {
		t.Fatalf("current = %+v, want %+v", cur, ac)
	}
	if err := store.Consume(ctx, "a1", "HP-WRONG1"); !errors.Is(err, ErrNoCode) {
		t.Fatalf("wrong code consumed: %v", err)
	}
	if err := store.Consume(ctx, "a1", ac.Code); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := store.Current(ctx, "a1"); !errors.Is(err, ErrNoCode) {
		t.Fatalf("code survived consume: %v", err)
	}

	if _, err := store.Issue(ctx, "a2"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Current(ctx, "a2"); !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected TTL expiry, got %v", err)
	}
}
