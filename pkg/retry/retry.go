// Package retry executes operations with classification-aware retries and
// exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Default option values.
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultJitterFactor = 0.25
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
// The default classifier uses it to decide whether an error is transient.
type StatusCoder interface {
	StatusCode() int
}

// Options configures a retry run. The zero value is usable; unset fields fall
// back to the package defaults.
type Options struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff, before jitter.
	MaxDelay time.Duration

	// JitterFactor randomizes each delay by delay * factor * U(-1,1).
	JitterFactor float64

	// IsRetryable decides whether an error is worth retrying.
	// Defaults to DefaultIsRetryable.
	IsRetryable func(error) bool

	// OnRetry is invoked before each backoff wait with the 1-based retry
	// number, the jittered delay, and the error that triggered the retry.
	// Observability only; it cannot alter control flow.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.JitterFactor == 0 {
		o.JitterFactor = DefaultJitterFactor
	}
	if o.IsRetryable == nil {
		o.IsRetryable = DefaultIsRetryable
	}
	return o
}

// Backoff computes the pre-jitter delay for a 0-based attempt index:
// min(BaseDelay * 2^attempt, MaxDelay). Monotonically non-decreasing.
func (o Options) Backoff(attempt int) time.Duration {
	o = o.withDefaults()

	d := time.Duration(float64(o.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > o.MaxDelay || d <= 0 {
		return o.MaxDelay
	}
	return d
}

// jitter randomizes a delay by +/- JitterFactor, clamped to be non-negative.
func (o Options) jitter(d time.Duration) time.Duration {
	j := time.Duration(float64(d) * o.JitterFactor * (rand.Float64()*2 - 1))
	d += j
	if d < 0 {
		return 0
	}
	return d
}

// Do runs op until it succeeds, fails with a non-retryable error, or exhausts
// MaxRetries. The original error is returned unchanged so callers can inspect
// the cause; nothing is wrapped around it.
func Do(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info().Int("attempt", attempt+1).Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !opts.IsRetryable(err) {
			return lastErr
		}

		if attempt >= opts.MaxRetries {
			break
		}

		delay := opts.jitter(opts.Backoff(attempt))
		retriesTotal.Inc()
		backoffSeconds.Observe(delay.Seconds())

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}

		log.Debug().
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	exhaustedTotal.Inc()
	log.Warn().
		Int("max_retries", opts.MaxRetries).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return lastErr
}

// DefaultIsRetryable classifies errors for the HTTP-bound use case:
// network-level failures are retryable; errors carrying a status code are
// retryable for 429, 408 and 5xx only.
func DefaultIsRetryable(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Transport-level failures without a response are retryable.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
