package services

import (
	"context"
	"sync"
	"testing"
)

func TestStreamGuardSingleFlight(t *testing.T) {
	guard := NewStreamGuard(nil)
	ctx := context.Background()

	if !guard.Acquire(ctx, "session-a") {
		t.Fatal("first acquire must succeed")
	}
	if guard.Acquire(ctx, "session-a") {
		t.Fatal("second acquire on the same session must fail")
	}
	if !guard.Acquire(ctx, "session-b") {
		t.Fatal("a different session must not be blocked")
	}

	guard.Release(ctx, "session-a")
	if !guard.Acquire(ctx, "session-a") {
		t.Fatal("acquire after release must succeed")
	}
}

func TestStreamGuardConcurrentAcquire(t *testing.T) {
	guard := NewStreamGuard(nil)
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.Acquire(ctx, "session-x") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one concurrent acquire must win, got %d", count)
	}
}
