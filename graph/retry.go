package graph

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy defines automatic retry configuration for transient node
// failures. The interpreter itself never retries; wrap a node with
// WithRetry to make retries a node-level concern.
//
// Delays follow exponential backoff with jitter:
// min(BaseDelay * 2^attempt, MaxDelay) + jitter(0, BaseDelay).
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Must be >= 1; a value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base for exponential backoff between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means no error is retryable.
	Retryable func(error) bool
}

// Validate checks the policy's constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff calculates the delay before the next attempt.
// attempt is zero-based: 0 for the first retry.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	var jitter time.Duration
	if base > 0 {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter, not security
	}
	return delay + jitter
}

// WithRetry wraps a node so transient failures are retried per the policy.
// The wrapped node keeps its identity; only Process changes. Fail commands
// are retried like returned errors when their cause is retryable;
// everything else passes through on the first attempt.
func WithRetry[S any](node Node[S], policy RetryPolicy) Node[S] {
	return &retryNode[S]{inner: node, policy: policy}
}

type retryNode[S any] struct {
	inner  Node[S]
	policy RetryPolicy
}

func (n *retryNode[S]) Process(ctx context.Context, state State[S]) (Command[S], error) {
	var lastErr error
	for attempt := 0; attempt < n.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, n.policy.BaseDelay, n.policy.MaxDelay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		cmd, err := n.inner.Process(ctx, state)
		failure := err
		if f, ok := cmd.(Fail[S]); ok && err == nil && f.Err != nil {
			failure = f.Err
		}
		if failure == nil {
			return cmd, nil
		}
		lastErr = failure
		if n.policy.Retryable == nil || !n.policy.Retryable(failure) {
			if err == nil {
				return cmd, nil
			}
			return nil, err
		}
	}
	return nil, lastErr
}

func (n *retryNode[S]) ID() NodeID            { return n.inner.ID() }
func (n *retryNode[S]) Name() string          { return n.inner.Name() }
func (n *retryNode[S]) Type() NodeType        { return n.inner.Type() }
func (n *retryNode[S]) CanBeEntryPoint() bool { return n.inner.CanBeEntryPoint() }
func (n *retryNode[S]) CanSuspend() bool      { return n.inner.CanSuspend() }

func (n *retryNode[S]) Validate() error {
	if err := n.policy.Validate(); err != nil {
		return err
	}
	return n.inner.Validate()
}
