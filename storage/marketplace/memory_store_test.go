package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

func TestMemoryStoreRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.PutAgent(ctx, hiring.NewAgent("a1", "scout", now)); err != nil {
			return err
		}
		if _, err := tx.GetAgent(ctx, "a1"); err != nil {
			t.Fatalf("staged write not visible inside tx: %v", err)
		}
		if ok, _ := tx.MarkProofUsed(ctx, "base", "0xabc"); !ok {
			t.Fatalf("fresh proof rejected")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx returned %v", err)
	}

	_ = s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetAgent(ctx, "a1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("rolled back agent visible: %v", err)
		}
		if ok, _ := tx.MarkProofUsed(ctx, "base", "0xabc"); !ok {
			t.Fatalf("rolled back proof still recorded")
		}
		return nil
	})
}

func TestMemoryStoreProofs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.InTx(ctx, func(tx Tx) error {
		_, _ = tx.MarkProofUsed(ctx, "base", "0xAbC")
		return nil
	})
	_ = s.InTx(ctx, func(tx Tx) error {
		if ok, _ := tx.MarkProofUsed(ctx, "BASE", "0xabc"); ok {
			t.Fatalf("proof replay accepted with different case")
		}
		return tx.ReleaseProof(ctx, "base", "0xabc")
	})
	_ = s.InTx(ctx, func(tx Tx) error {
		if ok, _ := tx.MarkProofUsed(ctx, "base", "0xabc"); !ok {
			t.Fatalf("released proof not reusable")
		}
		return nil
	})
}

func TestMemoryStoreCounter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, func(tx Tx) error {
				_, ok, err := tx.IncrementCounter(ctx, "promo", 5)
				if ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
				return err
			})
		}()
	}
	wg.Wait()
	if granted != 5 {
		t.Fatalf("granted %d increments, want 5", granted)
	}
	_ = s.InTx(ctx, func(tx Tx) error {
		if v, _ := tx.Counter(ctx, "promo"); v != 5 {
			t.Fatalf("counter = %d", v)
		}
		return nil
	})
}

func TestMemoryStoreJobsIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	job := hiring.NewJob("j1", now)
	job.AgentID = "a1"
	job.HumanID = "h1"
	job.SetTerms(hiring.Streaming(hiring.StreamTerms{
		Method:   hiring.MethodMicroTransfer,
		Interval: hiring.IntervalDaily,
		Rate:     1000,
	}))
	if err := s.InTx(ctx, func(tx Tx) error { return tx.PutJob(ctx, job) }); err != nil {
		t.Fatalf("put: %v", err)
	}
	// mutating the caller's copy must not leak into the store
	job.Stream.TickCount = 99

	_ = s.InTx(ctx, func(tx Tx) error {
		got, err := tx.GetJob(ctx, "j1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Stream.TickCount != 0 {
			t.Fatalf("store aliased caller's stream state")
		}
		jobs, _ := tx.ListJobs(ctx, JobFilter{AgentID: "a1", Status: hiring.JobPending})
		if len(jobs) != 1 {
			t.Fatalf("ListJobs = %d jobs", len(jobs))
		}
		jobs, _ = tx.ListJobs(ctx, JobFilter{AgentID: "other"})
		if len(jobs) != 0 {
			t.Fatalf("filter ignored agent id")
		}
		return nil
	})
}

func TestMemoryStoreMessagesAndSeed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := Seed(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_ = s.InTx(ctx, func(tx Tx) error {
		_ = tx.AppendMessage(ctx, hiring.Message{ID: "m2", JobID: "j1", Body: "second", CreatedAt: now.Add(time.Second)})
		return tx.AppendMessage(ctx, hiring.Message{ID: "m1", JobID: "j1", Body: "first", CreatedAt: now})
	})
	_ = s.InTx(ctx, func(tx Tx) error {
		msgs, _ := tx.ListMessages(ctx, "j1")
		if len(msgs) != 2 || msgs[0].ID != "m1" {
			t.Fatalf("messages out of order: %+v", msgs)
		}
		humans, _ := tx.ListHumans(ctx)
		if len(humans) != len(SeedHumans()) {
			t.Fatalf("seeded %d humans", len(humans))
		}
		return nil
	})
}
