package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	contracts "github.com/codezest-academy/codezest-notifications/contracts/mq"
	"github.com/codezest-academy/codezest-notifications/internal/dispatch"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
)

// NotificationRequestedHandler feeds MQ-originated notification requests
// into the dispatch service. This is the non-critical enqueue path:
// publishers fire and forget.
type NotificationRequestedHandler struct {
	dispatcher *dispatch.Service
	logger     *zap.Logger
}

func NewNotificationRequestedHandler(dispatcher *dispatch.Service, logger *zap.Logger) *NotificationRequestedHandler {
	return &NotificationRequestedHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *NotificationRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contracts.NotificationRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试，ack 掉
		h.logger.Error("Failed to unmarshal notification.requested payload (non-retryable)",
			zap.Error(err),
		)
		return nil
	}

	env, err := h.dispatcher.Send(ctx, dispatch.Request{
		UserID:   p.UserID,
		Channel:  p.Channel,
		Title:    p.Title,
		Message:  p.Message,
		Priority: p.Priority,
	})
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			// 请求本身有问题，重试没有意义，ack 掉
			h.logger.Error("Dropping malformed notification request",
				zap.String("user_id", p.UserID),
				zap.String("channel", p.Channel),
				zap.Error(err),
			)
			return nil
		}
		if errors.Is(err, queue.ErrUnavailable) {
			// 存储暂时不可用 → nack，让 MQ 稍后重投
			h.logger.Error("Queue unavailable, requeueing notification request",
				zap.String("user_id", p.UserID),
				zap.Error(err),
			)
			return err
		}
		h.logger.Error("Failed to dispatch notification request", zap.Error(err))
		return err
	}

	h.logger.Info("Notification request dispatched",
		zap.String("envelope_id", env.ID.String()),
		zap.String("user_id", env.UserID),
		zap.String("channel", string(env.Channel)),
	)
	return nil
}
