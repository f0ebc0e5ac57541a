package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	require.Equal(t, 100*time.Millisecond, Backoff(base, max, 0))
	require.Equal(t, 100*time.Millisecond, Backoff(base, max, 1))
	require.Equal(t, 200*time.Millisecond, Backoff(base, max, 2))
	require.Equal(t, 800*time.Millisecond, Backoff(base, max, 4))
	require.Equal(t, time.Second, Backoff(base, max, 5))
	require.Equal(t, time.Second, Backoff(base, max, 200))
	require.Zero(t, Backoff(0, max, 3))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, Sleep(ctx, time.Hour))
	require.False(t, Sleep(ctx, 0))
	require.True(t, Sleep(context.Background(), time.Millisecond))
}

func TestDo(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = Do(context.Background(), 3, time.Millisecond, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.EqualError(t, err, "still down")
	require.Equal(t, 3, calls)
}
