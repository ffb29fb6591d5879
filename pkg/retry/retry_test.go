package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// statusErr is a test error carrying an HTTP status code.
type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return fmt.Sprintf("upstream status %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

func fastOptions() Options {
	return Options{
		MaxRetries:   3,
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		JitterFactor: 0.25,
		IsRetryable:  func(error) bool { return true },
	}
}

func TestBackoff_MonotoneAndCapped(t *testing.T) {
	opts := Options{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
	}

	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := opts.Backoff(attempt)
		if d < prev {
			t.Errorf("Backoff(%d) = %v < Backoff(%d) = %v, want non-decreasing", attempt, d, attempt-1, prev)
		}
		if d > opts.MaxDelay {
			t.Errorf("Backoff(%d) = %v, want <= %v", attempt, d, opts.MaxDelay)
		}
		prev = d
	}

	if got := opts.Backoff(0); got != 1*time.Second {
		t.Errorf("Backoff(0) = %v, want 1s", got)
	}
	if got := opts.Backoff(1); got != 2*time.Second {
		t.Errorf("Backoff(1) = %v, want 2s", got)
	}
	if got := opts.Backoff(2); got != 4*time.Second {
		t.Errorf("Backoff(2) = %v, want 4s", got)
	}
	if got := opts.Backoff(20); got != 30*time.Second {
		t.Errorf("Backoff(20) = %v, want capped at 30s", got)
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, fastOptions())

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_SuccessAfterKFailures(t *testing.T) {
	const k = 2
	calls := 0
	var retries []int

	opts := fastOptions()
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		retries = append(retries, attempt)
		if err == nil {
			t.Error("OnRetry called with nil error")
		}
	}

	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= k {
			return errors.New("transient")
		}
		return nil
	}, opts)

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != k+1 {
		t.Errorf("calls = %d, want %d", calls, k+1)
	}
	if len(retries) != k {
		t.Errorf("OnRetry fired %d times, want exactly %d", len(retries), k)
	}
}

func TestDo_ExhaustedReturnsOriginalError(t *testing.T) {
	calls := 0
	original := errors.New("persistent failure")

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return original
	}, fastOptions())

	if calls != 4 {
		t.Errorf("calls = %d, want MaxRetries+1 = 4", calls)
	}

	// The original error must come back unchanged, not wrapped.
	if err != original {
		t.Errorf("Do() error = %v, want the original error unchanged", err)
	}
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	original := &statusErr{code: 404}

	opts := fastOptions()
	opts.IsRetryable = DefaultIsRetryable

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return original
	}, opts)

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-retryable error)", calls)
	}
	if !errors.Is(err, original) {
		t.Errorf("Do() error = %v, want original error", err)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := fastOptions()
	opts.BaseDelay = 5 * time.Second
	opts.MaxDelay = 5 * time.Second

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, func(context.Context) error {
			calls++
			return errors.New("transient")
		}, opts)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_BackoffDelaysGrow(t *testing.T) {
	opts := fastOptions()
	opts.BaseDelay = 20 * time.Millisecond
	opts.JitterFactor = 0.01

	var delays []time.Duration
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		delays = append(delays, delay)
	}

	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("transient")
	}, opts)

	if len(delays) != 3 {
		t.Fatalf("got %d delays, want 3", len(delays))
	}

	// With near-zero jitter the delays track base*2^n.
	if delays[1] < delays[0] {
		t.Errorf("second delay %v < first delay %v, want doubling", delays[1], delays[0])
	}
	if delays[2] < delays[1] {
		t.Errorf("third delay %v < second delay %v, want doubling", delays[2], delays[1])
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429 too many requests", &statusErr{code: 429}, true},
		{"408 request timeout", &statusErr{code: 408}, true},
		{"500 server error", &statusErr{code: 500}, true},
		{"503 unavailable", &statusErr{code: 503}, true},
		{"404 not found", &statusErr{code: 404}, false},
		{"400 bad request", &statusErr{code: 400}, false},
		{"401 unauthorized", &statusErr{code: 401}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultIsRetryable(tt.err); got != tt.want {
				t.Errorf("DefaultIsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestJitter_NonNegative(t *testing.T) {
	opts := Options{
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		JitterFactor: 1.0,
	}.withDefaults()

	for i := 0; i < 100; i++ {
		if d := opts.jitter(10 * time.Millisecond); d < 0 {
			t.Fatalf("jitter produced negative delay %v", d)
		}
	}
}
