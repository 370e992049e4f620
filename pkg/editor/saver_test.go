package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaverSucceedsFirstAttempt(t *testing.T) {
	saver := NewSaverWithDelays(time.Millisecond, time.Millisecond, time.Millisecond)

	calls := 0
	err := <-saver.Enqueue(context.Background(), "ver-1", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSaverRetriesThenSucceeds(t *testing.T) {
	saver := NewSaverWithDelays(time.Millisecond, time.Millisecond, time.Millisecond)

	calls := 0
	err := <-saver.Enqueue(context.Background(), "ver-1", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "success on attempt three stops further attempts")
}

func TestSaverTerminalAfterAllRetries(t *testing.T) {
	saver := NewSaverWithDelays(time.Millisecond, time.Millisecond, time.Millisecond)

	calls := 0
	err := <-saver.Enqueue(context.Background(), "ver-1", func(ctx context.Context) error {
		calls++
		return assert.AnError
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "one initial attempt plus three retries")
}

func TestSaverRespectsContextBetweenRetries(t *testing.T) {
	saver := NewSaverWithDelays(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := saver.Enqueue(ctx, "ver-1", func(ctx context.Context) error {
		return assert.AnError
	})
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("save did not abort on cancellation")
	}
}

func TestSaverSerializesPerVersion(t *testing.T) {
	saver := NewSaverWithDelays()

	var mu sync.Mutex
	var order []int
	running := false

	var results []<-chan error
	for i := 0; i < 5; i++ {
		i := i
		results = append(results, saver.Enqueue(context.Background(), "ver-1", func(ctx context.Context) error {
			mu.Lock()
			require.False(t, running, "saves for one version must not overlap")
			running = true
			order = append(order, i)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running = false
			mu.Unlock()
			return nil
		}))
	}
	for _, done := range results {
		require.NoError(t, <-done)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order, "queue is FIFO")
}

func TestSaverIndependentVersionQueues(t *testing.T) {
	saver := NewSaverWithDelays()

	block := make(chan struct{})
	slow := saver.Enqueue(context.Background(), "ver-1", func(ctx context.Context) error {
		<-block
		return nil
	})

	fast := saver.Enqueue(context.Background(), "ver-2", func(ctx context.Context) error {
		return nil
	})

	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("other version's queue was blocked")
	}

	close(block)
	require.NoError(t, <-slow)
}

func TestEnqueueImmediateDoesNotRetry(t *testing.T) {
	saver := NewSaverWithDelays(time.Millisecond)

	calls := 0
	err := <-saver.EnqueueImmediate(context.Background(), "ver-1", func(ctx context.Context) error {
		calls++
		return assert.AnError
	})

	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls, "a failed immediate save is terminal")
}

func TestEnqueueImmediateSharesVersionQueue(t *testing.T) {
	saver := NewSaverWithDelays()

	block := make(chan struct{})
	manual := saver.Enqueue(context.Background(), "ver-1", func(ctx context.Context) error {
		<-block
		return nil
	})

	immediate := saver.EnqueueImmediate(context.Background(), "ver-1", func(ctx context.Context) error {
		return nil
	})

	select {
	case <-immediate:
		t.Fatal("immediate save ran ahead of the queued save for the same version")
	case <-time.After(100 * time.Millisecond):
	}

	close(block)
	require.NoError(t, <-manual)
	require.NoError(t, <-immediate)
}
