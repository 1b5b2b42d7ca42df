package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(retries int) *Config {
	return &Config{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var waits []int

	res := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	}, func(attempt int, err error, next time.Duration) {
		waits = append(waits, attempt)
	})

	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []int{1, 2}, waits)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	boom := errors.New("broker unavailable")
	res := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error { return boom }, nil)

	assert.ErrorIs(t, res.Err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, res.LastError, boom)
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_PermanentStops(t *testing.T) {
	bad := errors.New("invalid phone")
	calls := 0
	res := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(bad)
	}, nil)

	assert.ErrorIs(t, res.Err, bad)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(fastConfig(5)).Do(ctx, func(ctx context.Context) error { return nil }, nil)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestInterval_Capped(t *testing.T) {
	r := New(&Config{MaxRetries: 10, InitialInterval: time.Second, MaxInterval: 3 * time.Second, Multiplier: 2})
	assert.Equal(t, time.Second, r.interval(0))
	assert.Equal(t, 2*time.Second, r.interval(1))
	assert.Equal(t, 3*time.Second, r.interval(5))
}

func TestNew_Defaults(t *testing.T) {
	r := New(&Config{MaxRetries: 1, JitterFactor: 4})
	assert.Equal(t, 200*time.Millisecond, r.config.InitialInterval)
	assert.Equal(t, 1.0, r.config.JitterFactor)
}
