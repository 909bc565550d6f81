// Package dispatch accepts notification requests, validates them and hands
// the resulting envelope to the durable queue. Delivery is asynchronous:
// Send returns as soon as the envelope is durably enqueued.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/contracts/mq"
	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
	"github.com/codezest-academy/codezest-notifications/pkg/logger"
	"github.com/codezest-academy/codezest-notifications/pkg/metrics"
)

// Request is the inbound notification request from an already
// authenticated caller.
type Request struct {
	UserID   string `json:"userId"`
	Channel  string `json:"channel"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

// ValidationError reports a malformed request field. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// EventPublisher publishes lifecycle events to the observability sink.
// Satisfied by mq.Publisher; may be nil when no broker is wired.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

type Service struct {
	queue     queue.Queue
	publisher EventPublisher
	logger    *zap.Logger
}

func NewService(q queue.Queue, publisher EventPublisher, log *zap.Logger) *Service {
	return &Service{
		queue:     q,
		publisher: publisher,
		logger:    log,
	}
}

// Send validates the request, builds a PENDING envelope with a fresh id
// and enqueues it. The envelope is returned synchronously; the caller
// never waits for delivery. Enqueue failures surface queue.ErrUnavailable.
func (s *Service) Send(ctx context.Context, req Request) (*model.Envelope, error) {
	env, err := buildEnvelope(req)
	if err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, env); err != nil {
		s.logger.Error("Failed to enqueue notification",
			zap.String("user_id", req.UserID),
			zap.String("channel", req.Channel),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.RecordEnqueued(string(env.Channel), env.Priority.String())

	log := logger.WithTrace(ctx, s.logger)
	log.Info("Notification enqueued",
		zap.String("envelope_id", env.ID.String()),
		zap.String("user_id", env.UserID),
		zap.String("channel", string(env.Channel)),
		zap.String("priority", env.Priority.String()),
	)

	// 生命周期事件是旁路：发布失败只记日志，不影响调用方
	if s.publisher != nil {
		payload := mq.NotificationEnqueuedPayload{
			EnvelopeID: env.ID.String(),
			UserID:     env.UserID,
			Channel:    string(env.Channel),
			Priority:   env.Priority.String(),
			CreatedAt:  env.CreatedAt,
		}
		if err := s.publisher.PublishWithContext(ctx, mq.RoutingKeyEnqueued, payload); err != nil {
			log.Warn("Failed to publish enqueued event", zap.Error(err))
		}
	}

	return env, nil
}

// Cancel removes a still-pending envelope. Best effort: once a worker has
// claimed it the cancellation is refused.
func (s *Service) Cancel(ctx context.Context, id string) error {
	envID, err := parseEnvelopeID(id)
	if err != nil {
		return err
	}
	return s.queue.Cancel(ctx, envID)
}

func parseEnvelopeID(id string) (uuid.UUID, error) {
	envID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "id", Reason: "is not a valid envelope id"}
	}
	return envID, nil
}

func buildEnvelope(req Request) (*model.Envelope, error) {
	if req.UserID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "is required"}
	}
	if req.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if req.Message == "" {
		return nil, &ValidationError{Field: "message", Reason: "is required"}
	}

	channel, err := model.ParseChannel(req.Channel)
	if err != nil {
		return nil, &ValidationError{Field: "channel", Reason: err.Error()}
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		return nil, &ValidationError{Field: "priority", Reason: err.Error()}
	}

	return model.NewEnvelope(req.UserID, channel, req.Title, req.Message, priority), nil
}
