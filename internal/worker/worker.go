// Package worker drains the durable queue and delivers envelopes through
// the provider registry, applying the retry and dead-letter policy.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	contracts "github.com/codezest-academy/codezest-notifications/contracts/mq"
	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/internal/provider"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
	"github.com/codezest-academy/codezest-notifications/pkg/circuitbreaker"
	"github.com/codezest-academy/codezest-notifications/pkg/metrics"
)

// DeliveryDeduper suppresses duplicate sends after lease-expiry
// redelivery. Satisfied by util.Deduper; may be nil.
type DeliveryDeduper interface {
	AlreadyDelivered(ctx context.Context, envelopeID string) bool
	MarkDelivered(ctx context.Context, envelopeID string)
}

// EventPublisher publishes delivery lifecycle events. May be nil.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Config controls the pool.
type Config struct {
	// PoolSize worker 协程数
	PoolSize int
	// PollInterval 队列为空时的轮询间隔
	PollInterval time.Duration
	// DeliveryTimeout 单次投递超时；超时按可重试失败处理
	DeliveryTimeout time.Duration
	// MaxAttempts mirrors the queue policy, used to report dead-letters.
	MaxAttempts int
}

// Pool runs PoolSize independent worker loops against a shared queue.
// Workers never coordinate with each other: the queue's lease is the only
// mutual exclusion for envelope ownership.
type Pool struct {
	queue     queue.Queue
	registry  *provider.Registry
	deduper   DeliveryDeduper
	publisher EventPublisher
	cfg       Config
	logger    *zap.Logger

	breakerMu sync.Mutex
	breakers  map[model.Channel]*circuitbreaker.Breaker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(
	q queue.Queue,
	registry *provider.Registry,
	deduper DeliveryDeduper,
	publisher EventPublisher,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = queue.DefaultConfig().MaxAttempts
	}
	return &Pool{
		queue:     q,
		registry:  registry,
		deduper:   deduper,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		breakers:  make(map[model.Channel]*circuitbreaker.Breaker),
	}
}

// Start launches the worker loops. The registry must be complete: a
// channel without a provider is a wiring bug we refuse to start with.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.registry.Complete(); err != nil {
		return err
	}

	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.PoolSize; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}

	p.logger.Info("Worker pool started",
		zap.Int("pool_size", p.cfg.PoolSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Duration("delivery_timeout", p.cfg.DeliveryTimeout),
	)
	return nil
}

// Stop stops accepting new work and drains in-flight deliveries.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// runWorker is one worker loop: dequeue, deliver, apply failure policy.
// Polling the empty queue is the only intentional blocking point.
func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && !errors.Is(err, context.Canceled) {
				log.Error("Dequeue failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.process(env, log)
	}
}

// process runs one delivery attempt. The attempt context is detached from
// the pool context so graceful shutdown lets the attempt finish.
func (p *Pool) process(env *model.Envelope, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DeliveryTimeout)
	defer cancel()

	log = log.With(
		zap.String("envelope_id", env.ID.String()),
		zap.String("channel", string(env.Channel)),
		zap.Int("attempt", env.AttemptCount),
	)

	prov, err := p.registry.Resolve(env.Channel)
	if err != nil {
		// 没有注册该渠道的 provider：按不可重试失败处理
		log.Error("No provider for channel", zap.Error(err))
		p.fail(ctx, env, false, err.Error(), log)
		return
	}

	// 租约过期后的重复投递：已经投出去的直接确认
	if p.deduper != nil && p.deduper.AlreadyDelivered(ctx, env.ID.String()) {
		p.acknowledge(ctx, env, log)
		return
	}

	start := time.Now()
	err = p.breakerFor(env.Channel).Execute(func() error {
		return prov.Deliver(ctx, env)
	})
	duration := time.Since(start)

	if err == nil {
		metrics.RecordDelivered(string(env.Channel), duration)
		if p.deduper != nil {
			p.deduper.MarkDelivered(ctx, env.ID.String())
		}
		p.acknowledge(ctx, env, log)
		log.Info("Notification delivered", zap.Duration("took", duration))
		return
	}

	retryable, reason := classify(err)
	kind := "terminal"
	if retryable {
		kind = "retryable"
	}
	metrics.RecordDeliveryFailure(string(env.Channel), kind, duration)

	log.Error("Delivery attempt failed",
		zap.Bool("retryable", retryable),
		zap.String("reason", reason),
		zap.Duration("took", duration),
	)

	p.fail(ctx, env, retryable, reason, log)
}

// classify maps an attempt error to the retry decision. An open circuit
// breaker counts as transient: the channel may recover.
func classify(err error) (bool, string) {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true, "circuit breaker open"
	}
	return provider.Classify(err)
}

func (p *Pool) acknowledge(ctx context.Context, env *model.Envelope, log *zap.Logger) {
	if err := p.queue.Acknowledge(ctx, env.ID); err != nil {
		log.Error("Failed to acknowledge envelope", zap.Error(err))
		return
	}
	p.publish(ctx, contracts.RoutingKeyDelivered, contracts.NotificationDeliveredPayload{
		EnvelopeID:   env.ID.String(),
		UserID:       env.UserID,
		Channel:      string(env.Channel),
		AttemptCount: env.AttemptCount,
		DeliveredAt:  time.Now().UTC(),
	}, log)
}

func (p *Pool) fail(ctx context.Context, env *model.Envelope, retryable bool, reason string, log *zap.Logger) {
	if err := p.queue.Fail(ctx, env.ID, retryable, reason); err != nil {
		log.Error("Failed to record delivery failure", zap.Error(err))
		return
	}

	p.publish(ctx, contracts.RoutingKeyFailed, contracts.NotificationFailedPayload{
		EnvelopeID:   env.ID.String(),
		UserID:       env.UserID,
		Channel:      string(env.Channel),
		Error:        reason,
		Retryable:    retryable,
		AttemptCount: env.AttemptCount,
	}, log)

	if !retryable || env.AttemptCount >= p.cfg.MaxAttempts {
		metrics.RecordDeadLettered(string(env.Channel))
		p.publish(ctx, contracts.RoutingKeyDeadLettered, contracts.NotificationDeadLetteredPayload{
			EnvelopeID:   env.ID.String(),
			UserID:       env.UserID,
			Channel:      string(env.Channel),
			Error:        reason,
			AttemptCount: env.AttemptCount,
			FailedAt:     time.Now().UTC(),
		}, log)
		log.Warn("Envelope dead-lettered", zap.String("reason", reason))
	}
}

// publish sends a lifecycle event to the observability sink. Failures are
// logged and dropped; delivery state is already durable in the queue.
func (p *Pool) publish(ctx context.Context, routingKey string, payload any, log *zap.Logger) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishWithContext(ctx, routingKey, payload); err != nil {
		log.Warn("Failed to publish lifecycle event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

func (p *Pool) breakerFor(ch model.Channel) *circuitbreaker.Breaker {
	p.breakerMu.Lock()
	defer p.breakerMu.Unlock()

	b, ok := p.breakers[ch]
	if !ok {
		b = circuitbreaker.New(circuitbreaker.DefaultConfig())
		p.breakers[ch] = b
	}
	return b
}
