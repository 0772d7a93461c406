package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*CounterStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counters.db")
	store, err := NewCounterStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestCounterStoreAllocatesDays(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	today := time.Date(2024, 7, 4, 18, 30, 0, 0, time.UTC)

	first, err := store.AllocateDay(ctx, today)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	again, err := store.AllocateDay(ctx, today)
	if err != nil {
		t.Fatalf("allocate again: %v", err)
	}
	next, err := store.AllocateDay(ctx, today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("allocate next: %v", err)
	}
	if first != 1 || again != 1 || next != 2 {
		t.Fatalf("expected 1,1,2 got %d,%d,%d", first, again, next)
	}
}

func TestCounterStoreIncrementsAndPersists(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.AllocateTopicCounter(ctx, "History")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if got, err := store.AllocateGlobalCounter(ctx); err != nil || got != 1 {
		t.Fatalf("expected global 1, got %d (%v)", got, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewCounterStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got, err := reopened.AllocateTopicCounter(ctx, "History"); err != nil || got != 4 {
		t.Fatalf("expected counter to survive restart, got %d (%v)", got, err)
	}
}

func TestCounterStoreConcurrentAllocation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	today := time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]bool)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.AllocateGlobalCounter(ctx)
			if err != nil {
				t.Errorf("allocate global: %v", err)
				return
			}
			day, err := store.AllocateDay(ctx, today)
			if err != nil || day != 1 {
				t.Errorf("expected day 1, got %d (%v)", day, err)
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != workers {
		t.Fatalf("expected %d unique global numbers, got %d", workers, len(seen))
	}
}
