package github

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/clock"
	"github.com/sakif/commit-streak/internal/metrics"
)

// Quota tracks the upstream request budget of one credential.
//
// Every response reports how many requests are left in the current window
// and when the window resets; Update records that. Acquire reserves one
// request before it is sent, so N concurrent workers sharing a credential
// cannot overspend a budget of fewer than N requests between two responses.
//
// All fields are guarded by mu. One Quota is shared by every worker that
// uses the same credential.
type Quota struct {
	mu        sync.Mutex
	clock     clock.Clock
	metrics   *metrics.Metrics
	known     bool // false until the first response, and again after a reset passes
	limit     int
	remaining int
	resetAt   time.Time
}

// QuotaSnapshot is a point-in-time copy of a Quota.
type QuotaSnapshot struct {
	Known     bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func NewQuota(c clock.Clock, m *metrics.Metrics) *Quota {
	if c == nil {
		c = clock.Real{}
	}
	return &Quota{clock: c, metrics: m}
}

// Update records the rate headers of a response.
func (q *Quota) Update(limit, remaining int, resetAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Responses can arrive out of order; within one window the smaller
	// remaining count is the more recent one.
	if q.known && q.resetAt.Equal(resetAt) && q.remaining < remaining {
		remaining = q.remaining
	}
	q.known = true
	q.limit = limit
	q.remaining = remaining
	q.resetAt = resetAt
	q.metrics.QuotaRemaining(remaining)
}

// Exhaust marks the budget as spent until resetAt. Used when the upstream
// rejects a request for rate limiting.
func (q *Quota) Exhaust(resetAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.known = true
	q.remaining = 0
	if resetAt.After(q.resetAt) || !q.resetAt.After(q.clock.Now()) {
		q.resetAt = resetAt
	}
	q.metrics.QuotaRemaining(0)
}

func (q *Quota) Snapshot() QuotaSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QuotaSnapshot{Known: q.known, Limit: q.limit, Remaining: q.remaining, ResetAt: q.resetAt}
}

// Acquire reserves one request. When the budget is spent it waits until the
// window resets. If ctx carries a deadline that expires before the reset it
// returns RateLimitExceeded immediately instead of waiting in vain.
func (q *Quota) Acquire(ctx context.Context) error {
	for {
		q.mu.Lock()
		wait := q.reserveLocked(q.clock.Now())
		resetAt := q.resetAt
		q.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return apperror.RateLimited(resetAt, nil)
		}

		q.metrics.QuotaWait(wait)
		if err := q.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserveLocked takes one request from the budget, or returns how long to
// wait for the reset. Callers must hold mu.
func (q *Quota) reserveLocked(now time.Time) time.Duration {
	if !q.known {
		return 0
	}
	if q.remaining > 0 {
		q.remaining--
		return 0
	}
	if !now.Before(q.resetAt) {
		// New window. Let requests through until a response re-seeds the budget.
		q.known = false
		return 0
	}
	return q.resetAt.Sub(now)
}
