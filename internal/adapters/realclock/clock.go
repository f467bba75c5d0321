// Package realclock backs ports.Clock with the time package.
package realclock

import (
	"context"
	"time"

	"github.com/acolita/qemu-e2e/internal/ports"
)

// Clock is the wall clock.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

func (*Clock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d unless ctx ends first.
func (*Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.Clock = (*Clock)(nil)
