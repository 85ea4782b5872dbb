// Package ratelimit holds the process-wide cooldown state shared by every
// flow that talks to the search service. A violation observed by one caller
// gates all of them: uncoordinated retries into the same throttle window
// would only escalate the penalty.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"patscan/internal/clock"
)

type Coordinator struct {
	mu          sync.Mutex
	clock       clock.Clock
	basePenalty time.Duration

	cooldownUntil time.Time
	violations    int
}

func NewCoordinator(clk clock.Clock, basePenalty time.Duration) *Coordinator {
	return &Coordinator{clock: clk, basePenalty: basePenalty}
}

// AwaitClear blocks until the cooldown window has passed. The wait is a single
// sleep computed from the remaining delta, re-checked in case another caller
// recorded a violation while we slept. Shutdown is honored at the boundary,
// not mid-sleep.
func (c *Coordinator) AwaitClear(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.mu.Lock()
		remaining := c.cooldownUntil.Sub(c.clock.Now())
		c.mu.Unlock()

		if remaining <= 0 {
			return nil
		}

		slog.Info("rate limit cooldown active, waiting", "remaining", remaining.String())
		c.clock.Sleep(remaining)
	}
}

// RecordViolation extends the shared cooldown after a throttling response.
// The penalty escalates with every consecutive violation and is never shorter
// than the service's Retry-After hint. Returns the applied wait.
func (c *Coordinator) RecordViolation(retryAfter time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.violations++
	penalty := c.basePenalty * time.Duration(c.violations)
	if retryAfter > penalty {
		penalty = retryAfter
	}
	c.cooldownUntil = c.clock.Now().Add(penalty)
	return penalty
}

// RecordSuccess resets the escalation counter. The next violation starts from
// the base penalty again.
func (c *Coordinator) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = 0
}

// Snapshot reports the current cooldown end and violation count.
func (c *Coordinator) Snapshot() (time.Time, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownUntil, c.violations
}
