// Package polling provides a fixed-interval cancellable poller used to track
// long-running server jobs.
package polling

import (
	"context"
	"time"
)

// DefaultInterval is used when a Poller is created with interval <= 0.
const DefaultInterval = 2 * time.Second

// Func is invoked on every tick. Returning done stops the poller; returning
// an error stops it and surfaces the error.
type Func func(ctx context.Context) (done bool, err error)

// Poller repeatedly invokes a Func at a fixed interval.
type Poller struct {
	interval time.Duration
}

// New creates a poller. An interval <= 0 falls back to DefaultInterval.
func New(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{interval: interval}
}

// Run polls until fn reports done, fn returns an error, or ctx is cancelled.
// The first call happens immediately; the ticker is owned by Run and always
// stopped on return.
func (p *Poller) Run(ctx context.Context, fn Func) error {
	done, err := fn(ctx)
	if err != nil || done {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := fn(ctx)
			if err != nil || done {
				return err
			}
		}
	}
}
