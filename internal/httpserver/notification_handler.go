package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codezest-academy/codezest-notifications/internal/dispatch"
	"github.com/codezest-academy/codezest-notifications/internal/queue"
)

const deadLetterQueryLimit = 100

type NotificationHandler struct {
	dispatcher *dispatch.Service
	queue      queue.Queue
	logger     *zap.Logger
}

func NewNotificationHandler(dispatcher *dispatch.Service, q queue.Queue, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		queue:      q,
		logger:     logger,
	}
}

// Send handles POST /api/notifications: validates, enqueues and returns
// the envelope without waiting for delivery.
func (h *NotificationHandler) Send(c *gin.Context) {
	var req dispatch.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	env, err := h.dispatcher.Send(c.Request.Context(), req)
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		if errors.Is(err, queue.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store unavailable"})
			return
		}
		h.logger.Error("Dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusAccepted, env)
}

// Cancel handles POST /api/notifications/:id/cancel. Best effort: a
// conflict means a worker already claimed the envelope.
func (h *NotificationHandler) Cancel(c *gin.Context) {
	err := h.dispatcher.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "envelope not found"})
	case errors.Is(err, queue.ErrNotCancelable):
		c.JSON(http.StatusConflict, gin.H{"error": "envelope is no longer pending"})
	default:
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		h.logger.Error("Cancel failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// DeadLetters handles GET /api/admin/dead-letters for operator inspection.
func (h *NotificationHandler) DeadLetters(c *gin.Context) {
	envelopes, err := h.queue.DeadLetters(c.Request.Context(), deadLetterQueryLimit)
	if err != nil {
		h.logger.Error("Dead-letter query failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deadLetters": envelopes, "count": len(envelopes)})
}

// Replay handles POST /api/admin/dead-letters/:id/replay: an operator
// pushes a dead-lettered envelope back into the pending sequence.
func (h *NotificationHandler) Replay(c *gin.Context) {
	id := c.Param("id")
	envID, err := parseID(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope id"})
		return
	}

	err = h.queue.Replay(c.Request.Context(), envID)
	switch {
	case err == nil:
		h.logger.Info("Dead-lettered envelope replayed", zap.String("envelope_id", id))
		c.JSON(http.StatusOK, gin.H{"status": "replayed"})
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no dead-lettered envelope with that id"})
	default:
		h.logger.Error("Replay failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store unavailable"})
	}
}
