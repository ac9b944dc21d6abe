package client

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the next wait time.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff returns the strategy used for observation delivery.
// Base: 100ms, Max: 5s, Factor: 2.0, Jitter: 0.2
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next calculates the wait duration for the given attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.Factor
		if delay > float64(b.Max) {
			break
		}
	}
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	// Symmetric jitter keeps retries from a fleet of collectors apart.
	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// retryable reports whether an attempt failed in a way worth repeating.
type retryable interface {
	error
	Temporary() bool
}

// withRetry runs op up to attempts times, sleeping per strategy between
// failures that are temporary. The last error is returned.
func withRetry(ctx context.Context, strategy BackoffStrategy, attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		var t retryable
		if !errors.As(err, &t) || !t.Temporary() {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(strategy.Next(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
