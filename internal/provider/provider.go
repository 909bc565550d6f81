// Package provider defines the delivery contract the worker depends on
// and the channel-specific implementations behind it.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/codezest-academy/codezest-notifications/internal/model"
	"github.com/codezest-academy/codezest-notifications/pkg/util"
)

// Provider encapsulates one channel's transport. Implementations must not
// mutate the envelope and are responsible for all external I/O, including
// any provider-side timeout shorter than the worker's per-attempt timeout.
type Provider interface {
	// Channel returns the channel this provider handles.
	Channel() model.Channel

	// Deliver sends the notification. A nil return means delivered.
	// Failures should be built with Retryable or Terminal so the worker
	// can classify them; untyped errors go through the transport error
	// classifier.
	Deliver(ctx context.Context, env *model.Envelope) error
}

// DeliveryError carries the retryable/terminal classification a provider
// assigns to a failure.
type DeliveryError struct {
	Reason    string
	Retryable bool
}

func (e *DeliveryError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("delivery failed (%s): %s", kind, e.Reason)
}

// Retryable marks a transient failure: network, rate limit, upstream 5xx.
func Retryable(format string, args ...any) error {
	return &DeliveryError{Reason: fmt.Sprintf(format, args...), Retryable: true}
}

// Terminal marks a permanent failure: invalid recipient, malformed content.
func Terminal(format string, args ...any) error {
	return &DeliveryError{Reason: fmt.Sprintf(format, args...), Retryable: false}
}

// Classify maps a delivery error to (retryable, reason). Typed provider
// errors win; anything else falls back to the transport classifier, and a
// deadline exceeded on the attempt context counts as retryable.
func Classify(err error) (bool, string) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable, de.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "delivery timeout"
	}
	retryable, kind := util.IsRetryableError(err)
	return retryable, fmt.Sprintf("%s: %v", kind, err)
}

// ContactResolver resolves an opaque user id to channel-specific contact
// details. The queue core never performs this lookup itself.
type ContactResolver interface {
	ResolveEmail(ctx context.Context, userID string) (string, error)
	ResolvePhone(ctx context.Context, userID string) (string, error)
}

// ErrUnknownRecipient is returned by resolvers when no contact details
// exist for the user; providers treat it as a terminal failure.
var ErrUnknownRecipient = errors.New("provider: unknown recipient")
