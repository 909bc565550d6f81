package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testBreaker() *Breaker {
	return New(Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		OpenTimeout:         20 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	})
}

func fail(b *Breaker) error    { return b.Execute(func() error { return errBoom }) }
func succeed(b *Breaker) error { return b.Execute(func() error { return nil }) }

func TestOpensAfterFailureThreshold(t *testing.T) {
	b := testBreaker()

	for i := 0; i < 3; i++ {
		assert.Equal(t, StateClosed, b.State())
		require.ErrorIs(t, fail(b), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	// Open breaker rejects without invoking fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := testBreaker()

	require.ErrorIs(t, fail(b), errBoom)
	require.ErrorIs(t, fail(b), errBoom)
	require.NoError(t, succeed(b))
	require.ErrorIs(t, fail(b), errBoom)
	require.ErrorIs(t, fail(b), errBoom)

	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenClosesAfterProbeSuccesses(t *testing.T) {
	b := testBreaker()

	for i := 0; i < 3; i++ {
		fail(b)
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(25 * time.Millisecond)

	require.NoError(t, succeed(b))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := testBreaker()

	for i := 0; i < 3; i++ {
		fail(b)
	}
	time.Sleep(25 * time.Millisecond)

	require.ErrorIs(t, fail(b), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestReset(t *testing.T) {
	b := testBreaker()
	for i := 0; i < 3; i++ {
		fail(b)
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, succeed(b))
}
