package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	calls := 0
	fail := func() error { calls++; return errDown }

	require.ErrorIs(t, b.Execute(fail), errDown)
	require.Equal(t, Closed, b.State())
	require.ErrorIs(t, b.Execute(fail), errDown)
	require.Equal(t, Open, b.State())

	require.ErrorIs(t, b.Execute(fail), ErrOpen)
	require.Equal(t, 2, calls)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker("ledger", BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	require.Error(t, b.Execute(func() error { return errDown }))
	require.NoError(t, b.Execute(func() error { return nil }))
	require.Error(t, b.Execute(func() error { return errDown }))
	require.Equal(t, Closed, b.State())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	b := NewBreaker("redis", BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	require.Error(t, b.Execute(func() error { return errDown }))
	require.Equal(t, Open, b.State())

	now = now.Add(2 * time.Second)
	require.ErrorIs(t, b.Execute(func() error { return errDown }), errDown)
	require.Equal(t, Open, b.State(), "failed probe re-opens")
	require.ErrorIs(t, b.Execute(func() error { return nil }), ErrOpen)

	now = now.Add(2 * time.Second)
	require.NoError(t, b.Execute(func() error { return nil }))
	require.Equal(t, Closed, b.State())
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "publish", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "publish")

	require.NoError(t, WithTimeout(context.Background(), time.Second, "publish", func(context.Context) error { return nil }))
	require.ErrorIs(t, WithTimeout(context.Background(), 0, "publish", func(context.Context) error { return errDown }), errDown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(ctx, time.Second, "publish", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
