package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWaitForSlot_FirstSlotImmediate(t *testing.T) {
	l := New(Config{MinDelay: 200 * time.Millisecond, Name: "test"})
	ctx := context.Background()

	start := time.Now()
	if err := l.WaitForSlot(ctx); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("First slot took %v, want immediate", elapsed)
	}
}

func TestWaitForSlot_MinDelaySpacing(t *testing.T) {
	l := New(Config{MinDelay: 200 * time.Millisecond, Name: "test"})
	ctx := context.Background()

	// Three slots requested at t=0 should resolve at ~t=0, ~t=200ms, ~t=400ms.
	start := time.Now()
	var mu sync.Mutex
	var grants []time.Duration

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.WaitForSlot(ctx); err != nil {
				t.Errorf("WaitForSlot() error = %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, time.Since(start))
			mu.Unlock()
		}()
		// Stagger submissions slightly so enqueue order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	if len(grants) != 3 {
		t.Fatalf("got %d grants, want 3", len(grants))
	}

	for i := 1; i < len(grants); i++ {
		gap := grants[i] - grants[i-1]
		if gap < 190*time.Millisecond {
			t.Errorf("gap between dispatch %d and %d = %v, want >= 200ms", i-1, i, gap)
		}
	}

	if grants[2] > 600*time.Millisecond {
		t.Errorf("third grant at %v, want ~400ms", grants[2])
	}
}

func TestWaitForSlot_FIFOOrder(t *testing.T) {
	l := New(Config{MinDelay: 50 * time.Millisecond, Name: "test"})
	ctx := context.Background()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := l.WaitForSlot(ctx); err != nil {
				t.Errorf("WaitForSlot() error = %v", err)
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}(i)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	for i, id := range order {
		if id != i {
			t.Errorf("dispatch order = %v, want enqueue order [0 1 2 3 4]", order)
			break
		}
	}
}

func TestWaitForSlot_QueueFull(t *testing.T) {
	l := New(Config{MinDelay: time.Second, MaxQueueSize: 2, Name: "test"})
	ctx := context.Background()

	// First request dispatches immediately; the next two fill the queue while
	// it waits out MinDelay.
	if err := l.WaitForSlot(ctx); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		go func() { _ = l.WaitForSlot(ctx) }()
	}
	time.Sleep(50 * time.Millisecond)

	err := l.WaitForSlot(ctx)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("WaitForSlot() error = %v, want ErrQueueFull", err)
	}

	l.Clear()
}

func TestClear_RejectsPendingWaiters(t *testing.T) {
	l := New(Config{MinDelay: time.Second, Name: "test"})
	ctx := context.Background()

	if err := l.WaitForSlot(ctx); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- l.WaitForSlot(ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)

	l.Clear()

	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrCleared) {
				t.Errorf("waiter %d error = %v, want ErrCleared", i, err)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter not rejected after Clear")
		}
	}

	// Clearing must not reset the dispatch counter.
	if stats := l.Stats(); stats.TotalDispatched != 1 {
		t.Errorf("TotalDispatched = %d, want 1", stats.TotalDispatched)
	}
}

func TestReset_ClearsTimingAndCounters(t *testing.T) {
	l := New(Config{MinDelay: 200 * time.Millisecond, Name: "test"})
	ctx := context.Background()

	if err := l.WaitForSlot(ctx); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}

	l.Reset()

	stats := l.Stats()
	if stats.TotalDispatched != 0 {
		t.Errorf("TotalDispatched after Reset = %d, want 0", stats.TotalDispatched)
	}
	if stats.QueueLength != 0 {
		t.Errorf("QueueLength after Reset = %d, want 0", stats.QueueLength)
	}

	// Timing was reset, so the next slot must not wait out MinDelay.
	start := time.Now()
	if err := l.WaitForSlot(ctx); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Slot after Reset took %v, want immediate", elapsed)
	}
}

func TestWaitForSlot_ContextCancelled(t *testing.T) {
	l := New(Config{MinDelay: time.Second, Name: "test"})

	if err := l.WaitForSlot(context.Background()); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.WaitForSlot(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForSlot() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForSlot did not return after context cancellation")
	}
}

func TestStats(t *testing.T) {
	l := New(Config{MinDelay: 100 * time.Millisecond, Name: "test"})
	ctx := context.Background()

	stats := l.Stats()
	if stats.QueueLength != 0 || stats.TotalDispatched != 0 || stats.Draining {
		t.Errorf("fresh limiter stats = %+v, want zero values", stats)
	}
	if stats.SinceLastDispatch != 0 {
		t.Errorf("SinceLastDispatch = %v, want 0 before first dispatch", stats.SinceLastDispatch)
	}

	if err := l.WaitForSlot(ctx); err != nil {
		t.Fatalf("WaitForSlot() error = %v", err)
	}

	stats = l.Stats()
	if stats.TotalDispatched != 1 {
		t.Errorf("TotalDispatched = %d, want 1", stats.TotalDispatched)
	}
	if stats.SinceLastDispatch <= 0 {
		t.Errorf("SinceLastDispatch = %v, want > 0", stats.SinceLastDispatch)
	}
}

func TestDrain_SingleLoop(t *testing.T) {
	l := New(Config{MinDelay: 50 * time.Millisecond, Name: "test"})
	ctx := context.Background()

	// Hammer the limiter concurrently; dispatch spacing must hold even when
	// many slot requests race to start the drain loop.
	const n = 8
	var mu sync.Mutex
	var grants []time.Time

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.WaitForSlot(ctx); err != nil {
				t.Errorf("WaitForSlot() error = %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(grants) != n {
		t.Fatalf("got %d grants, want %d", len(grants), n)
	}

	for i := 1; i < len(grants); i++ {
		if gap := grants[i].Sub(grants[i-1]); gap < 40*time.Millisecond {
			t.Errorf("gap %d = %v, want >= 50ms", i, gap)
		}
	}

	if stats := l.Stats(); stats.TotalDispatched != n {
		t.Errorf("TotalDispatched = %d, want %d", stats.TotalDispatched, n)
	}
}
