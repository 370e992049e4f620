package polling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerStopsWhenDone(t *testing.T) {
	poller := New(time.Millisecond)

	calls := 0
	err := poller.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollerFirstCallIsImmediate(t *testing.T) {
	poller := New(time.Hour)

	start := time.Now()
	err := poller.Run(context.Background(), func(ctx context.Context) (bool, error) {
		return true, nil
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollerStopsOnError(t *testing.T) {
	poller := New(time.Millisecond)

	calls := 0
	err := poller.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		if calls == 2 {
			return false, assert.AnError
		}
		return false, nil
	})

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}

func TestPollerStopsOnCancellation(t *testing.T) {
	poller := New(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx, func(ctx context.Context) (bool, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return false, nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestPollerDefaultsInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(0).interval)
	assert.Equal(t, DefaultInterval, New(-time.Second).interval)
	assert.Equal(t, 5*time.Second, New(5*time.Second).interval)
}
