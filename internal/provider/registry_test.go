package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codezest-academy/codezest-notifications/internal/model"
)

type stubProvider struct {
	channel model.Channel
}

func (s *stubProvider) Channel() model.Channel { return s.channel }

func (s *stubProvider) Deliver(ctx context.Context, env *model.Envelope) error { return nil }

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	email := &stubProvider{channel: model.ChannelEmail}
	require.NoError(t, r.Register(email))

	got, err := r.Resolve(model.ChannelEmail)
	require.NoError(t, err)
	assert.Same(t, email, got)
}

func TestRegisterRejectsDuplicateAndUnknownChannel(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubProvider{channel: model.ChannelSMS}))

	err := r.Register(&stubProvider{channel: model.ChannelSMS})
	assert.Error(t, err)

	err = r.Register(&stubProvider{channel: model.Channel("FAX")})
	assert.Error(t, err)
}

func TestResolveMissingChannel(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(model.ChannelPush)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestCompleteRequiresEveryChannel(t *testing.T) {
	r := NewRegistry()
	for _, ch := range model.Channels() {
		assert.Error(t, r.Complete())
		require.NoError(t, r.Register(&stubProvider{channel: ch}))
	}
	assert.NoError(t, r.Complete())
}

func TestClassifyDeliveryErrors(t *testing.T) {
	retryable, reason := Classify(Retryable("gateway %d", 503))
	assert.True(t, retryable)
	assert.Equal(t, "gateway 503", reason)

	retryable, reason = Classify(Terminal("recipient rejected"))
	assert.False(t, retryable)
	assert.Equal(t, "recipient rejected", reason)
}

func TestClassifyDeadlineIsRetryable(t *testing.T) {
	retryable, _ := Classify(context.DeadlineExceeded)
	assert.True(t, retryable)
}

func TestClassifyUnknownErrorIsTerminal(t *testing.T) {
	retryable, _ := Classify(errors.New("something odd"))
	assert.False(t, retryable)
}
