package gate

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between allowed submissions.
const DefaultCooldown = 3 * time.Minute

// ErrRateLimited is wrapped by every BlockedError.
var ErrRateLimited = errors.New("submission rate limited")

// BlockedError tells the caller how long to wait before submitting again.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *BlockedError) Unwrap() error { return ErrRateLimited }

// Decision is the outcome of TryAcquire.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Err returns nil for an allowed decision and a BlockedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &BlockedError{RetryAfter: d.RetryAfter}
}

// SubmissionGate licenses at most one submission per cooldown window. It does
// not talk to the endpoint; callers that get Blocked must skip the call.
type SubmissionGate struct {
	cooldown time.Duration

	mu            sync.Mutex
	nextAllowedAt time.Time
}

// New returns a gate with the given cooldown; non-positive means DefaultCooldown.
func New(cooldown time.Duration) *SubmissionGate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &SubmissionGate{cooldown: cooldown}
}

// TryAcquire checks and advances the gate in one step. A blocked attempt
// leaves the gate untouched.
func (g *SubmissionGate) TryAcquire(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nextAllowedAt.IsZero() && now.Before(g.nextAllowedAt) {
		return Decision{RetryAfter: g.nextAllowedAt.Sub(now)}
	}
	g.nextAllowedAt = now.Add(g.cooldown)
	return Decision{Allowed: true}
}

// NextAllowedAt returns the earliest instant the next acquisition succeeds;
// zero means any time.
func (g *SubmissionGate) NextAllowedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextAllowedAt
}

// Cooldown returns the configured spacing.
func (g *SubmissionGate) Cooldown() time.Duration {
	return g.cooldown
}
