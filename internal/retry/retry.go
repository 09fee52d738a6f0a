package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second // caps base*2^attempt
	DefaultMaxAttempts = 3
)

// Decision is the outcome of a failure: retry after Delay, or give up
type Decision struct {
	Retry bool
	Delay time.Duration
}

// GiveUp is the decision that ends the current retry chain
var GiveUp = Decision{}

// RetryAfter builds a retry decision
func RetryAfter(delay time.Duration) Decision {
	return Decision{Retry: true, Delay: delay}
}

// State is the retry bookkeeping of one polling session
type State struct {
	Attempt     int
	MaxAttempts int
	Exhausted   bool
}

// RetryPolicy handles retry logic with exponential backoff.
// It is not safe for concurrent use; the scheduler owns one per session.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	attempt     int
	exhausted   bool
}

// NewRetryPolicy creates a new retry policy
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// Default returns the 3 attempt, 1s base, 30s cap policy
func Default() *RetryPolicy {
	return NewRetryPolicy(DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay)
}

// OnFailure records a failed fetch and decides what to do next.
// Failure n (1-based) retries after base*2^n while n <= maxAttempts.
func (r *RetryPolicy) OnFailure() Decision {
	if r.exhausted {
		return GiveUp
	}
	r.attempt++
	if r.attempt > r.maxAttempts {
		r.exhausted = true
		return GiveUp
	}
	return RetryAfter(r.Backoff(r.attempt))
}

// OnSuccess resets the chain; a reachable server counts as success
func (r *RetryPolicy) OnSuccess() {
	r.attempt = 0
	r.exhausted = false
}

// BeginChain starts a fresh chain if the previous one gave up.
// A chain that is still retrying is left alone.
func (r *RetryPolicy) BeginChain() {
	if r.exhausted {
		r.attempt = 0
		r.exhausted = false
	}
}

// State returns a copy of the bookkeeping
func (r *RetryPolicy) State() State {
	return State{Attempt: r.attempt, MaxAttempts: r.maxAttempts, Exhausted: r.exhausted}
}

// Backoff returns the delay for the given attempt: base*2^attempt, capped
func (r *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := r.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= r.maxDelay {
			return r.maxDelay
		}
	}
	return delay
}

// Execute runs fn until it succeeds or the attempt budget is spent, sleeping
// between attempts on the same schedule OnFailure uses
func (r *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't sleep after last attempt
		if attempt == r.maxAttempts {
			break
		}

		timer := time.NewTimer(r.Backoff(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", r.maxAttempts+1, lastErr)
}
