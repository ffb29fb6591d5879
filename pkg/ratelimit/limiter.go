// Package ratelimit implements FIFO request spacing for the upstream catalog
// API. Callers acquire a slot before each outbound request; slots are granted
// in arrival order with a guaranteed minimum delay between consecutive grants.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Common errors returned by the limiter.
var (
	// ErrQueueFull is returned immediately when the pending queue is at capacity.
	// The request is never enqueued.
	ErrQueueFull = errors.New("rate limiter queue full")

	// ErrCleared is returned to pending waiters rejected by Clear or Reset.
	ErrCleared = errors.New("rate limiter cleared")
)

// Config holds the limiter configuration.
type Config struct {
	// MinDelay is the minimum time between two consecutive slot grants.
	MinDelay time.Duration

	// MaxQueueSize bounds the number of pending waiters. 0 means unbounded.
	MaxQueueSize int

	// Name identifies the limiter in logs and metrics.
	Name string
}

// Stats is a read-only snapshot of limiter state.
type Stats struct {
	QueueLength       int
	SinceLastDispatch time.Duration
	Draining          bool
	TotalDispatched   uint64
}

// waiter is one queued caller. done is set under the limiter mutex when the
// caller abandoned the wait; the drain loop skips such entries without
// consuming a slot.
type waiter struct {
	ch   chan error
	done bool
}

// Limiter grants slots in FIFO order, at most one per MinDelay.
//
// A single drain goroutine processes the queue. It is started lazily on the
// first WaitForSlot and exits when the queue empties; the draining flag
// guarantees at most one loop is ever active.
type Limiter struct {
	cfg    Config
	logger zerolog.Logger

	mu              sync.Mutex
	queue           []*waiter
	lastDispatch    time.Time
	draining        bool
	totalDispatched uint64
}

// New creates a limiter with the given configuration.
func New(cfg Config) *Limiter {
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &Limiter{
		cfg:    cfg,
		logger: log.With().Str("component", "ratelimit").Str("limiter", cfg.Name).Logger(),
	}
}

// WaitForSlot blocks until the caller may dispatch the next outbound request.
// Returns ErrQueueFull without queueing when the pending queue is at capacity,
// ErrCleared when the limiter is cleared while waiting, or the context error
// when ctx is cancelled first.
func (l *Limiter) WaitForSlot(ctx context.Context) error {
	l.mu.Lock()

	if l.cfg.MaxQueueSize > 0 && l.pendingLocked() >= l.cfg.MaxQueueSize {
		l.mu.Unlock()
		queueFullTotal.WithLabelValues(l.cfg.Name).Inc()
		l.logger.Warn().
			Int("max_queue_size", l.cfg.MaxQueueSize).
			Msg("Slot request rejected - queue full")
		return ErrQueueFull
	}

	w := &waiter{ch: make(chan error, 1)}
	l.queue = append(l.queue, w)
	queueDepth.WithLabelValues(l.cfg.Name).Set(float64(l.pendingLocked()))

	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	start := time.Now()
	select {
	case err := <-w.ch:
		if err == nil {
			waitSeconds.WithLabelValues(l.cfg.Name).Observe(time.Since(start).Seconds())
		}
		return err
	case <-ctx.Done():
		l.mu.Lock()
		w.done = true
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Clear rejects all pending waiters with ErrCleared without dispatching them.
// Timing state and counters are preserved.
func (l *Limiter) Clear() {
	l.mu.Lock()
	cleared := l.clearLocked()
	l.mu.Unlock()

	if cleared > 0 {
		l.logger.Info().Int("cleared", cleared).Msg("Pending waiters cleared")
	}
}

// Reset clears the queue and resets timing state and counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	cleared := l.clearLocked()
	l.lastDispatch = time.Time{}
	l.totalDispatched = 0
	l.mu.Unlock()

	l.logger.Info().Int("cleared", cleared).Msg("Limiter reset")
}

// Stats returns a snapshot of the limiter state. Observability only.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var since time.Duration
	if !l.lastDispatch.IsZero() {
		since = time.Since(l.lastDispatch)
	}

	return Stats{
		QueueLength:       l.pendingLocked(),
		SinceLastDispatch: since,
		Draining:          l.draining,
		TotalDispatched:   l.totalDispatched,
	}
}

// pendingLocked counts queued waiters that have not abandoned the wait.
func (l *Limiter) pendingLocked() int {
	n := 0
	for _, w := range l.queue {
		if !w.done {
			n++
		}
	}
	return n
}

// clearLocked rejects all pending waiters. Caller holds l.mu.
func (l *Limiter) clearLocked() int {
	cleared := 0
	for _, w := range l.queue {
		if !w.done {
			w.ch <- ErrCleared
			cleared++
		}
	}
	l.queue = nil
	queueDepth.WithLabelValues(l.cfg.Name).Set(0)
	if cleared > 0 {
		clearedTotal.WithLabelValues(l.cfg.Name).Add(float64(cleared))
	}
	return cleared
}

// drain is the single consumer of the waiter queue. It enforces the minimum
// gap between consecutive dispatches and exits once the queue is empty.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		l.dropAbandonedLocked()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		var wait time.Duration
		if !l.lastDispatch.IsZero() {
			if since := time.Since(l.lastDispatch); since < l.cfg.MinDelay {
				wait = l.cfg.MinDelay - since
			}
		}
		l.mu.Unlock()

		if wait > 0 {
			time.Sleep(wait)
		}

		l.mu.Lock()
		l.dropAbandonedLocked()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		w := l.queue[0]
		l.queue = l.queue[1:]
		l.lastDispatch = time.Now()
		l.totalDispatched++
		dispatchedTotal.WithLabelValues(l.cfg.Name).Inc()
		queueDepth.WithLabelValues(l.cfg.Name).Set(float64(l.pendingLocked()))
		l.mu.Unlock()

		w.ch <- nil

		l.logger.Debug().Msg("Slot dispatched")
	}
}

// dropAbandonedLocked removes waiters whose callers gave up, so they do not
// consume slots or spacing. Caller holds l.mu.
func (l *Limiter) dropAbandonedLocked() {
	for len(l.queue) > 0 && l.queue[0].done {
		l.queue = l.queue[1:]
	}
}
