package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codezest-academy/codezest-notifications/internal/model"
)

func newTestQueue(t *testing.T) (*Memory, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q := NewMemory(DefaultConfig())
	q.now = func() time.Time { return now }
	return q, &now
}

func enqueue(t *testing.T, q *Memory, priority model.Priority) *model.Envelope {
	t.Helper()
	env := model.NewEnvelope("user-1", model.ChannelEmail, "hello", "body", priority)
	require.NoError(t, q.Enqueue(context.Background(), env))
	return env
}

func TestDequeuePriorityOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	low := enqueue(t, q, model.PriorityLow)
	urgent := enqueue(t, q, model.PriorityUrgent)
	medium := enqueue(t, q, model.PriorityMedium)

	got := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		env, err := q.Dequeue(ctx)
		require.NoError(t, err)
		got = append(got, env.ID)
	}

	assert.Equal(t, []uuid.UUID{urgent.ID, medium.ID, low.ID}, got)

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestDequeueFIFOWithinPriority(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := enqueue(t, q, model.PriorityMedium)
	second := enqueue(t, q, model.PriorityMedium)
	third := enqueue(t, q, model.PriorityMedium)

	for _, want := range []uuid.UUID{first.ID, second.ID, third.ID} {
		env, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, env.ID)
	}
}

func TestDequeueMarksInFlightAndCountsAttempt(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)

	env, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInFlight, env.Status)
	assert.Equal(t, 1, env.AttemptCount)
	require.NotNil(t, env.LastAttemptAt)

	// The lease makes the envelope invisible to other workers.
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)
	env, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Acknowledge(ctx, env.ID))
	require.NoError(t, q.Acknowledge(ctx, env.ID))

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAcknowledgeUnknownID(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Acknowledge(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailRetryableSchedulesBackoff(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)
	env, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, env.ID, true, "smtp timeout"))

	// Invisible until base*2^1 = 10s after the first attempt.
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	*now = now.Add(10 * time.Second)
	env2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.ID, env2.ID)
	assert.Equal(t, 2, env2.AttemptCount)
	assert.Equal(t, "smtp timeout", env2.FailureReason)
}

func TestFailTerminalDeadLettersImmediately(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)
	env, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, env.ID, false, "recipient rejected"))

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, env.ID, dead[0].ID)
	assert.Equal(t, model.StatusFailedTerminal, dead[0].Status)
	assert.Equal(t, "recipient rejected", dead[0].FailureReason)
	assert.Equal(t, 1, dead[0].AttemptCount)
}

func TestFailExhaustsAttemptsAndDeadLetters(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)

	// Three retryable failures with MaxAttempts=3. The third failure must
	// dead-letter even though the error itself was retryable.
	for attempt := 1; attempt <= 3; attempt++ {
		env, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, attempt, env.AttemptCount)

		require.NoError(t, q.Fail(ctx, env.ID, true, "gateway 503"))
		*now = now.Add(time.Hour)
	}

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].AttemptCount)
	assert.Equal(t, model.StatusFailedTerminal, dead[0].Status)
}

func TestFailAfterDeadLetterIsNoop(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)
	env, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, env.ID, false, "bounced"))
	assert.NoError(t, q.Fail(ctx, env.ID, false, "bounced again"))
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)
	env, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, env.AttemptCount)

	// Worker crashes: no ack, no fail. After the lease the envelope is
	// claimable again and counts a fresh attempt.
	*now = now.Add(DefaultConfig().Lease)
	env2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.ID, env2.ID)
	assert.Equal(t, 2, env2.AttemptCount)
}

func TestCancelPendingOnly(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	env := enqueue(t, q, model.PriorityMedium)
	require.NoError(t, q.Cancel(ctx, env.ID))
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	inflight := enqueue(t, q, model.PriorityMedium)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Cancel(ctx, inflight.ID), ErrNotCancelable)

	assert.ErrorIs(t, q.Cancel(ctx, uuid.New()), ErrNotFound)
}

func TestDeadLettersNewestFirstWithLimit(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		env := enqueue(t, q, model.PriorityMedium)
		ids = append(ids, env.ID)

		_, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Fail(ctx, env.ID, false, "hard bounce"))
		*now = now.Add(time.Minute)
	}

	dead, err := q.DeadLetters(ctx, 2)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, ids[2], dead[0].ID)
	assert.Equal(t, ids[1], dead[1].ID)
}

func TestReplayResetsAttempts(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	env := enqueue(t, q, model.PriorityMedium)
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, env.ID, false, "hard bounce"))

	require.NoError(t, q.Replay(ctx, env.ID))
	assert.ErrorIs(t, q.Replay(ctx, env.ID), ErrNotFound)

	*now = now.Add(time.Second)
	env2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.ID, env2.ID)
	assert.Equal(t, 1, env2.AttemptCount)
	assert.Empty(t, env2.FailureReason)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestConcurrentDequeueMutualExclusion(t *testing.T) {
	// Real clock here: concurrency over the shared fake would race.
	q := NewMemory(DefaultConfig())
	ctx := context.Background()

	const jobs = 50
	for i := 0; i < jobs; i++ {
		env := model.NewEnvelope("user-1", model.ChannelSMS, "t", "b", model.PriorityMedium)
		require.NoError(t, q.Enqueue(ctx, env))
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				env, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[env.ID]++
				mu.Unlock()
				assert.NoError(t, q.Acknowledge(ctx, env.ID))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equalf(t, 1, n, "envelope %s claimed %d times", id, n)
	}
}

func TestBackoffDoublingAndCap(t *testing.T) {
	cfg := Config{
		MaxAttempts: 10,
		BackoffBase: 5 * time.Second,
		BackoffCap:  5 * time.Minute,
		Lease:       time.Minute,
	}

	assert.Equal(t, 10*time.Second, cfg.Backoff(1))
	assert.Equal(t, 20*time.Second, cfg.Backoff(2))
	assert.Equal(t, 40*time.Second, cfg.Backoff(3))
	assert.Equal(t, 5*time.Minute, cfg.Backoff(20))
}

func TestDequeueReturnsCopy(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueue(t, q, model.PriorityMedium)
	env, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Mutating the returned envelope must not leak into queue state.
	env.Status = model.StatusDelivered
	require.NoError(t, q.Fail(ctx, env.ID, false, "x"))
	dead, err := q.DeadLetters(ctx, 1)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, model.StatusFailedTerminal, dead[0].Status)
}
