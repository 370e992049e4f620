package editor

import (
	"context"
	"sync"
	"time"
)

// SaveFunc performs one save attempt.
type SaveFunc func(ctx context.Context) error

// Default retry delays for a failed manual save. After the last delay the
// save is terminal.
var defaultRetryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

type saveTask struct {
	ctx   context.Context
	fn    SaveFunc
	retry bool
	done  chan error
}

// Saver serializes saves per version: tasks for the same version run FIFO so
// an auto-save triggered by a structural change can never interleave with a
// manual save. Failed attempts retry with increasing delays.
type Saver struct {
	delays []time.Duration

	mu     sync.Mutex
	queues map[string]chan saveTask
}

// NewSaver creates a saver with the default 2s/4s/8s retry schedule.
func NewSaver() *Saver {
	return NewSaverWithDelays(defaultRetryDelays...)
}

// NewSaverWithDelays overrides the retry schedule; the number of delays is
// the number of retries.
func NewSaverWithDelays(delays ...time.Duration) *Saver {
	return &Saver{
		delays: delays,
		queues: make(map[string]chan saveTask),
	}
}

// Enqueue queues one save for a version and returns a channel carrying its
// terminal result. The worker goroutine for a version is started lazily.
func (s *Saver) Enqueue(ctx context.Context, versionID string, fn SaveFunc) <-chan error {
	return s.enqueue(ctx, versionID, fn, true)
}

// EnqueueImmediate queues a single-attempt save. Structural changes use this:
// they still run FIFO behind any save in flight for the version, but a failure
// is terminal so the caller can roll back right away.
func (s *Saver) EnqueueImmediate(ctx context.Context, versionID string, fn SaveFunc) <-chan error {
	return s.enqueue(ctx, versionID, fn, false)
}

func (s *Saver) enqueue(ctx context.Context, versionID string, fn SaveFunc, retry bool) <-chan error {
	s.mu.Lock()
	queue, ok := s.queues[versionID]
	if !ok {
		queue = make(chan saveTask, 16)
		s.queues[versionID] = queue
		go s.worker(queue)
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	queue <- saveTask{ctx: ctx, fn: fn, retry: retry, done: done}
	return done
}

func (s *Saver) worker(queue chan saveTask) {
	for task := range queue {
		if task.retry {
			task.done <- s.attempt(task.ctx, task.fn)
			continue
		}
		task.done <- task.fn(task.ctx)
	}
}

// attempt runs the save, retrying once per configured delay. Success on any
// attempt stops further attempts.
func (s *Saver) attempt(ctx context.Context, fn SaveFunc) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}

	for _, delay := range s.delays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}
