package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryClass categorizes an error so callers can decide whether a retry is
// worthwhile. Per spec §4.4, only transport-level failures are retryable;
// timeouts, malformed responses, and 4xx client errors are not, since
// retrying them burns budget without a plausible change of outcome.
type RetryClass int

const (
	NotRetryable RetryClass = iota
	Retryable
)

// RetryPolicy is exponential backoff with jitter, grounded on the teacher's
// pkg/adapters/resilience/retry.go, which wraps cenkalti/backoff/v4's
// ExponentialBackOff the same way: a bounded-retries wrapper around the
// library's backoff.Retry, with a RetryIfFn-style classifier deciding which
// errors are worth a retry via backoff.Permanent.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// DefaultRetryPolicy returns the policy used for provider calls: two
// attempts total (one retry), short backoff, since the rerank path is
// budget-constrained and cannot afford a long retry ladder.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  2,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		JitterFactor: 0.2,
	}
}

// Execute runs fn, retrying while classify reports Retryable and attempts
// remain, or until ctx is cancelled or its deadline is exhausted. It does
// not itself clamp to a request budget; callers combine it with the
// budget-aware timeout computed in BudgetedTimeout.
func (p RetryPolicy) Execute(ctx context.Context, classify func(error) RetryClass, fn func(ctx context.Context) error) error {
	maxRetries := p.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = p.JitterFactor
	b.MaxElapsedTime = 0 // bounded by MaxRetries and ctx, not elapsed wall time

	var retryPolicy backoff.BackOff = backoff.WithMaxRetries(b, uint64(maxRetries))
	retryPolicy = backoff.WithContext(retryPolicy, ctx)

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if classify(err) != Retryable {
			return backoff.Permanent(err)
		}
		return err
	}, retryPolicy)
}

// BudgetedTimeout clamps a provider's configured timeout to the remaining
// request budget per spec §4.4: effective = clamp(remainingBudget, 100ms,
// configuredTimeout). A remaining budget at or below 50ms means there is no
// point attempting the call at all; callers should check ShouldAbort first.
func BudgetedTimeout(remainingBudget, configuredTimeout time.Duration) time.Duration {
	const floor = 100 * time.Millisecond
	if remainingBudget < floor {
		return floor
	}
	if remainingBudget > configuredTimeout {
		return configuredTimeout
	}
	return remainingBudget
}

// ShouldAbort reports whether the remaining budget is too small to attempt
// a call at all (spec §4.4: abort if remainingBudgetMs <= 50).
func ShouldAbort(remainingBudget time.Duration) bool {
	return remainingBudget <= 50*time.Millisecond
}

// SuppressRetries reports whether the remaining budget is too tight to
// afford a retry attempt, even though the initial call is still worth
// making (spec §4.4: retries suppressed when remainingBudgetMs <
// configuredTimeoutMs).
func SuppressRetries(remainingBudget, configuredTimeout time.Duration) bool {
	return remainingBudget < configuredTimeout
}
