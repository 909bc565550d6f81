package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/internal/provider"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
	"github.com/codezest-academy/codezest-notifications/pkg/circuitbreaker"
)

// fakeProvider answers for one channel with a scripted sequence of errors.
type fakeProvider struct {
	channel model.Channel

	mu        sync.Mutex
	responses []error
	delivered []*model.Envelope
}

func (f *fakeProvider) Channel() model.Channel { return f.channel }

func (f *fakeProvider) Deliver(ctx context.Context, env *model.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) > 0 {
		err := f.responses[0]
		f.responses = f.responses[1:]
		if err != nil {
			return err
		}
	}
	cp := *env
	f.delivered = append(f.delivered, &cp)
	return nil
}

func (f *fakeProvider) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]bool)}
}

func (d *memoryDeduper) AlreadyDelivered(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id]
}

func (d *memoryDeduper) MarkDelivered(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = true
}

func fullRegistry(t *testing.T, email *fakeProvider) *provider.Registry {
	t.Helper()
	registry := provider.NewRegistry()
	for _, ch := range model.Channels() {
		p := &fakeProvider{channel: ch}
		if ch == model.ChannelEmail && email != nil {
			require.NoError(t, registry.Register(email))
			continue
		}
		require.NoError(t, registry.Register(p))
	}
	return registry
}

func testConfig() Config {
	return Config{
		PoolSize:        2,
		PollInterval:    5 * time.Millisecond,
		DeliveryTimeout: 200 * time.Millisecond,
		MaxAttempts:     3,
	}
}

func testQueueConfig() queue.Config {
	return queue.Config{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
		Lease:       time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestPoolDeliversAndAcknowledges(t *testing.T) {
	q := queue.NewMemory(testQueueConfig())
	email := &fakeProvider{channel: model.ChannelEmail}
	pool := NewPool(q, fullRegistry(t, email), newMemoryDeduper(), nil, testConfig(), zap.NewNop())

	env := model.NewEnvelope("user-1", model.ChannelEmail, "hi", "body", model.PriorityMedium)
	require.NoError(t, q.Enqueue(context.Background(), env))

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitFor(t, time.Second, func() bool { return email.deliveredCount() == 1 })

	// Acknowledged: the queue must not hand it out again.
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmpty)
	assert.Equal(t, 1, email.delivered[0].AttemptCount)
}

func TestPoolRetriesThenDeadLetters(t *testing.T) {
	q := queue.NewMemory(testQueueConfig())
	email := &fakeProvider{channel: model.ChannelEmail}
	email.responses = []error{
		provider.Retryable("gateway 503"),
		provider.Retryable("gateway 503"),
		provider.Retryable("gateway 503"),
	}
	pool := NewPool(q, fullRegistry(t, email), nil, nil, testConfig(), zap.NewNop())

	env := model.NewEnvelope("user-1", model.ChannelEmail, "hi", "body", model.PriorityMedium)
	require.NoError(t, q.Enqueue(context.Background(), env))

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	var dead []*model.Envelope
	waitFor(t, 2*time.Second, func() bool {
		var err error
		dead, err = q.DeadLetters(context.Background(), 10)
		require.NoError(t, err)
		return len(dead) == 1
	})

	assert.Equal(t, env.ID, dead[0].ID)
	assert.Equal(t, model.StatusFailedTerminal, dead[0].Status)
	assert.Equal(t, 3, dead[0].AttemptCount)
	assert.Equal(t, "gateway 503", dead[0].FailureReason)
	assert.Equal(t, 0, email.deliveredCount())
}

func TestPoolTerminalFailureSkipsRetries(t *testing.T) {
	q := queue.NewMemory(testQueueConfig())
	email := &fakeProvider{channel: model.ChannelEmail}
	email.responses = []error{provider.Terminal("recipient rejected")}
	pool := NewPool(q, fullRegistry(t, email), nil, nil, testConfig(), zap.NewNop())

	env := model.NewEnvelope("user-1", model.ChannelEmail, "hi", "body", model.PriorityMedium)
	require.NoError(t, q.Enqueue(context.Background(), env))

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	var dead []*model.Envelope
	waitFor(t, time.Second, func() bool {
		dead, _ = q.DeadLetters(context.Background(), 10)
		return len(dead) == 1
	})

	assert.Equal(t, 1, dead[0].AttemptCount)
	assert.Equal(t, "recipient rejected", dead[0].FailureReason)
}

func TestPoolRecoversAfterTransientFailure(t *testing.T) {
	q := queue.NewMemory(testQueueConfig())
	email := &fakeProvider{channel: model.ChannelEmail}
	email.responses = []error{provider.Retryable("connection reset")}
	pool := NewPool(q, fullRegistry(t, email), nil, nil, testConfig(), zap.NewNop())

	env := model.NewEnvelope("user-1", model.ChannelEmail, "hi", "body", model.PriorityMedium)
	require.NoError(t, q.Enqueue(context.Background(), env))

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitFor(t, time.Second, func() bool { return email.deliveredCount() == 1 })
	assert.Equal(t, 2, email.delivered[0].AttemptCount)
}

// ackRecordingQueue counts Acknowledge calls so a test can observe the
// dedupe path without racing the pool for the envelope.
type ackRecordingQueue struct {
	queue.Queue

	mu   sync.Mutex
	acks int
}

func (a *ackRecordingQueue) Acknowledge(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	return a.Queue.Acknowledge(ctx, id)
}

func (a *ackRecordingQueue) ackCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks
}

func TestPoolDeduperSuppressesRedelivery(t *testing.T) {
	q := &ackRecordingQueue{Queue: queue.NewMemory(testQueueConfig())}
	email := &fakeProvider{channel: model.ChannelEmail}
	deduper := newMemoryDeduper()

	env := model.NewEnvelope("user-1", model.ChannelEmail, "hi", "body", model.PriorityMedium)
	require.NoError(t, q.Enqueue(context.Background(), env))

	// Simulate a previous worker that delivered but crashed before acking.
	deduper.MarkDelivered(context.Background(), env.ID.String())

	pool := NewPool(q, fullRegistry(t, email), deduper, nil, testConfig(), zap.NewNop())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitFor(t, time.Second, func() bool { return q.ackCount() == 1 })
	assert.Equal(t, 0, email.deliveredCount())
}

func TestStartRequiresCompleteRegistry(t *testing.T) {
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(&fakeProvider{channel: model.ChannelEmail}))

	pool := NewPool(queue.NewMemory(testQueueConfig()), registry, nil, nil, testConfig(), zap.NewNop())
	err := pool.Start(context.Background())
	require.Error(t, err)
}

func TestClassifyBreakerOpenIsRetryable(t *testing.T) {
	retryable, reason := classify(circuitbreaker.ErrOpen)
	assert.True(t, retryable)
	assert.Equal(t, "circuit breaker open", reason)

	retryable, reason = classify(provider.Terminal("nope"))
	assert.False(t, retryable)
	assert.Equal(t, "nope", reason)

	retryable, _ = classify(provider.Retryable("later"))
	assert.True(t, retryable)
}
