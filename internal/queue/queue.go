// Package queue provides the durable, at-least-once notification job store.
//
// The queue is the single point of mutual exclusion for envelope ownership:
// Dequeue leases an envelope to exactly one worker for the invisibility
// window, and every state transition (Enqueue, Acknowledge, Fail, Cancel,
// Replay) is atomic in the backing store.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/codezest-academy/codezest-notifications/internal/model"
)

var (
	// ErrEmpty is returned by Dequeue when no envelope is currently visible.
	ErrEmpty = errors.New("queue: no envelope available")

	// ErrNotFound is returned when the referenced envelope does not exist.
	ErrNotFound = errors.New("queue: envelope not found")

	// ErrUnavailable wraps backing-store failures. Callers on the critical
	// path surface it; internal callers log and drop per policy.
	ErrUnavailable = errors.New("queue: backing store unavailable")

	// ErrNotCancelable is returned by Cancel when the envelope has already
	// left the pending sequence.
	ErrNotCancelable = errors.New("queue: envelope is not pending")
)

// Config holds the retry and lease policy shared by all implementations.
type Config struct {
	// MaxAttempts 投递尝试上限，超过后进入死信区
	MaxAttempts int
	// BackoffBase 退避基准：下一次可见时间 = base × 2^attempts，封顶 BackoffCap
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Lease 不可见窗口：出队后其他 worker 在此期间看不到该任务
	Lease time.Duration
}

// DefaultConfig matches the documented defaults: 3 attempts, 5s backoff
// base capped at 5m, 150s lease (5x the 30s delivery timeout).
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: 5 * time.Second,
		BackoffCap:  5 * time.Minute,
		Lease:       150 * time.Second,
	}
}

// Backoff computes the delay before an envelope that has made n attempts
// becomes visible again.
func (c Config) Backoff(attempts int) time.Duration {
	d := c.BackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if d > c.BackoffCap {
		d = c.BackoffCap
	}
	return d
}

// Queue is the durable job store contract.
//
// Ordering: URGENT before HIGH before MEDIUM before LOW; FIFO within a
// tier. Sustained high-priority load can starve lower tiers; that is an
// accepted limitation, not a bug.
type Queue interface {
	// Enqueue appends the envelope to the tail of its priority tier.
	Enqueue(ctx context.Context, env *model.Envelope) error

	// Dequeue claims the next visible envelope, marks it IN_FLIGHT for the
	// lease duration and increments its attempt count. Returns ErrEmpty
	// when nothing is visible. Envelopes whose lease expired without an
	// Acknowledge or Fail become claimable again.
	Dequeue(ctx context.Context) (*model.Envelope, error)

	// Acknowledge marks the envelope DELIVERED and removes it from the
	// active queue. Acknowledging an already-delivered envelope is a no-op.
	Acknowledge(ctx context.Context, id uuid.UUID) error

	// Fail records a delivery failure. Retryable failures below the attempt
	// limit are rescheduled with exponential backoff; everything else is
	// dead-lettered as FAILED_TERMINAL and kept queryable.
	Fail(ctx context.Context, id uuid.UUID, retryable bool, reason string) error

	// Cancel removes a still-pending envelope. Best effort: it races with a
	// concurrent Dequeue and returns ErrNotCancelable once the envelope is
	// in flight or terminal.
	Cancel(ctx context.Context, id uuid.UUID) error

	// DeadLetters returns dead-lettered envelopes, newest first, for
	// operator inspection.
	DeadLetters(ctx context.Context, limit int) ([]*model.Envelope, error)

	// Replay moves a dead-lettered envelope back to PENDING with a reset
	// attempt count.
	Replay(ctx context.Context, id uuid.UUID) error
}
