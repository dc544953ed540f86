package retry

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestPerformEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Perform(context.Background(), fastConfig(), "flaky query", func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	require.Nil(t, err)
	assert.Equal(t, 3, calls)
}

func TestPerformExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Perform(context.Background(), fastConfig(), "doomed query", func() error {
		calls++
		return errors.New("still down")
	})
	require.NotNil(t, err)
	assert.Equal(t, 5, calls)
	assert.Contains(t, err.Error(), "doomed query failed after 5 attempts")
}

func TestPerformHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastConfig()
	cfg.BaseDelay = time.Second

	calls := 0
	err := Perform(ctx, cfg, "cancelled query", func() error {
		calls++
		return errors.New("down")
	})
	require.NotNil(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "interrupted")
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	br := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	})

	boom := func() error { return errors.New("failure") }

	require.NotNil(t, br.Do(boom))
	assert.Equal(t, StateClosed, br.State())

	require.NotNil(t, br.Do(boom))
	assert.Equal(t, StateOpen, br.State())

	// open circuit fails fast without invoking the operation
	calls := 0
	err := br.Do(func() error { calls++; return nil })
	assert.Equal(t, ErrBreakerOpen, errors.Cause(err))
	assert.Equal(t, 0, calls)
}

func TestBreakerRecovers(t *testing.T) {
	br := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  20 * time.Millisecond,
		SuccessThreshold: 1,
	})

	boom := func() error { return errors.New("failure") }
	require.NotNil(t, br.Do(boom))
	require.NotNil(t, br.Do(boom))
	require.Equal(t, StateOpen, br.State())

	time.Sleep(30 * time.Millisecond)

	// first probe after the recovery timeout closes the circuit
	require.Nil(t, br.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, br.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	br := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	require.NotNil(t, br.Do(func() error { return errors.New("failure") }))
	require.Equal(t, StateOpen, br.State())

	time.Sleep(20 * time.Millisecond)

	require.NotNil(t, br.Do(func() error { return errors.New("probe failed") }))
	assert.Equal(t, StateOpen, br.State())
}

func TestPerformWithBreaker(t *testing.T) {
	br := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	})

	calls := 0
	err := PerformWithBreaker(context.Background(), fastConfig(), br, "guarded query", func() error {
		calls++
		return errors.New("down")
	})
	require.NotNil(t, err)
	// the circuit opened after two calls, the remaining attempts failed fast
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateOpen, br.State())
	assert.Equal(t, ErrBreakerOpen, errors.Cause(err))
}
