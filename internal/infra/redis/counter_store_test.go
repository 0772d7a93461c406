package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCounterStoreAllocatesDays(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewCounterStore(client, "")
	ctx := context.Background()
	today := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)

	first, err := store.AllocateDay(ctx, today)
	if err != nil {
		t.Fatalf("allocate day: %v", err)
	}
	same, err := store.AllocateDay(ctx, today.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("allocate same day: %v", err)
	}
	next, err := store.AllocateDay(ctx, today.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("allocate next day: %v", err)
	}
	if first != 1 || same != 1 || next != 2 {
		t.Fatalf("expected 1,1,2 got %d,%d,%d", first, same, next)
	}
	if got := mr.HGet("quiz:days", "2024-02-13"); got != "2" {
		t.Fatalf("expected stored day 2, got %q", got)
	}
}

func TestCounterStoreContinuesFromExistingDays(t *testing.T) {
	mr, client := newTestClient(t)
	mr.HSet("quiz:days", "2024-01-01", "41")
	if err := mr.Set("quiz:days:last", "41"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewCounterStore(client, "")

	day, err := store.AllocateDay(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if day != 42 {
		t.Fatalf("expected 42, got %d", day)
	}
}

func TestCounterStoreConcurrentDayAllocationAgrees(t *testing.T) {
	_, client := newTestClient(t)
	store := NewCounterStore(client, "")
	today := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	results := make([]int, 10)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			day, err := store.AllocateDay(context.Background(), today)
			if err != nil {
				t.Errorf("allocate: %v", err)
			}
			results[i] = day
		}(i)
	}
	wg.Wait()
	for _, day := range results {
		if day != 1 {
			t.Fatalf("expected every caller to see day 1, got %v", results)
		}
	}
}

func TestCounterStoreIncrements(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewCounterStore(client, "pub")
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.AllocateTopicCounter(ctx, "History")
		if err != nil {
			t.Fatalf("allocate topic: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if got, _ := store.AllocateTopicCounter(ctx, "Science"); got != 1 {
		t.Fatalf("expected independent topic counter, got %d", got)
	}
	if got, _ := store.AllocateGlobalCounter(ctx); got != 1 {
		t.Fatalf("expected global 1, got %d", got)
	}
	if got := mr.HGet("pub:overall", GlobalCounterName); got != "1" {
		t.Fatalf("expected global counter stored, got %q", got)
	}
}

func TestCounterStoreReportsErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewCounterStore(client, "")
	mr.Close()

	if _, err := store.AllocateTopicCounter(context.Background(), "History"); err == nil {
		t.Fatalf("expected error with redis down")
	}
}
