package mq

import "time"

// Routing keys on the events exchange.
const (
	RoutingKeyRequested    = "notification.requested"
	RoutingKeyEnqueued     = "notification.enqueued"
	RoutingKeyDelivered    = "notification.delivered"
	RoutingKeyFailed       = "notification.failed"
	RoutingKeyDeadLettered = "notification.deadlettered"
)

// NotificationRequestedPayload is published by internal services that want
// a notification sent without going through the HTTP API.
type NotificationRequestedPayload struct {
	UserID   string `json:"user_id"`
	Channel  string `json:"channel"` // EMAIL / SMS / PUSH / IN_APP
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"` // URGENT / HIGH / MEDIUM / LOW
}

// NotificationEnqueuedPayload announces a new envelope in the durable queue.
type NotificationEnqueuedPayload struct {
	EnvelopeID string    `json:"envelope_id"`
	UserID     string    `json:"user_id"`
	Channel    string    `json:"channel"`
	Priority   string    `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationDeliveredPayload announces a successful delivery.
type NotificationDeliveredPayload struct {
	EnvelopeID   string    `json:"envelope_id"`
	UserID       string    `json:"user_id"`
	Channel      string    `json:"channel"`
	AttemptCount int       `json:"attempt_count"`
	DeliveredAt  time.Time `json:"delivered_at"`
}

// NotificationFailedPayload announces a failed delivery attempt.
type NotificationFailedPayload struct {
	EnvelopeID   string `json:"envelope_id"`
	UserID       string `json:"user_id"`
	Channel      string `json:"channel"`
	Error        string `json:"error"`
	Retryable    bool   `json:"retryable"`
	AttemptCount int    `json:"attempt_count"`
}

// NotificationDeadLetteredPayload announces an envelope that will never be
// retried automatically.
type NotificationDeadLetteredPayload struct {
	EnvelopeID   string    `json:"envelope_id"`
	UserID       string    `json:"user_id"`
	Channel      string    `json:"channel"`
	Error        string    `json:"error"`
	AttemptCount int       `json:"attempt_count"`
	FailedAt     time.Time `json:"failed_at"`
}
