package state

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
)

func TestTakeIsSingleUse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New(clk)

	store.Put("token-1", FlowState{TenantID: "tenant-a"})

	first, ok := store.Take("token-1")
	if !ok {
		t.Fatal("expected first take to succeed")
	}
	if first.TenantID != "tenant-a" {
		t.Fatalf("unexpected state: %+v", first)
	}
	if _, ok := store.Take("token-1"); ok {
		t.Fatal("expected second take to miss")
	}
}

func TestTakeUnknownToken(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New(clk)

	if _, ok := store.Take("never-stored"); ok {
		t.Fatal("expected unknown token to miss")
	}
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New(clk)

	store.Put("token-1", FlowState{TenantID: "tenant-a"})
	clk.Advance(TTL + time.Second)

	if _, ok := store.Take("token-1"); ok {
		t.Fatal("expected expired token to miss")
	}
}

func TestPutSweepsExpiredEntries(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New(clk)

	store.Put("stale-1", FlowState{})
	store.Put("stale-2", FlowState{})
	clk.Advance(TTL + time.Second)

	store.Put("fresh", FlowState{})
	if got := store.Len(); got != 1 {
		t.Fatalf("expected sweep to drop stale entries, have %d", got)
	}
}

func TestCreatedAtStampedOnPut(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	store := New(clk)

	store.Put("token-1", FlowState{TenantID: "tenant-a"})
	state, ok := store.Take("token-1")
	if !ok {
		t.Fatal("expected take to succeed")
	}
	if !state.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %s, got %s", now, state.CreatedAt)
	}
}

func TestTakeForPreservesForeignFlow(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New(clk)

	store.Put("token-1", FlowState{TenantID: "tenant-a"})

	if _, ok := store.TakeFor("token-1", "tenant-b"); ok {
		t.Fatal("expected foreign tenant to miss")
	}
	if got := store.Len(); got != 1 {
		t.Fatalf("expected owner's flow to survive, have %d entries", got)
	}

	state, ok := store.TakeFor("token-1", "tenant-a")
	if !ok {
		t.Fatal("expected owner take to succeed")
	}
	if state.TenantID != "tenant-a" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if _, ok := store.TakeFor("token-1", "tenant-a"); ok {
		t.Fatal("expected second take to miss")
	}
}

func TestConcurrentTakeHasOneWinner(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New(clk)

	const goroutines = 32
	for round := 0; round < 50; round++ {
		token := fmt.Sprintf("token-%d", round)
		store.Put(token, FlowState{TenantID: "tenant-a"})

		var wins int64
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for g := 0; g < goroutines; g++ {
			go func() {
				defer wg.Done()
				if _, ok := store.Take(token); ok {
					atomic.AddInt64(&wins, 1)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("round %d: expected exactly one winner, got %d", round, wins)
		}
	}
}
