package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Settings{FailureThreshold: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(fail), errBoom)
	}
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Do(succeed), ErrOpen)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New(Settings{FailureThreshold: 2, Cooldown: time.Hour})

	require.NoError(t, b.Do(succeed))
	assert.ErrorIs(t, b.Do(fail), errBoom)
	require.NoError(t, b.Do(succeed)) // resets the consecutive count
	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	b := New(Settings{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Do(succeed))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := New(Settings{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	assert.ErrorIs(t, b.Do(fail), errBoom)
	time.Sleep(15 * time.Millisecond)

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, Open, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []State
	b := New(Settings{
		FailureThreshold: 1,
		Cooldown:         time.Hour,
		OnStateChange:    func(_, to State) { transitions = append(transitions, to) },
	})

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, []State{Open}, transitions)
}
