// Package fakeclock is a manual clock for tests: time only moves when a test
// calls Advance or the code under test calls Sleep.
package fakeclock

import (
	"context"
	"sync"
	"time"

	"github.com/acolita/qemu-e2e/internal/ports"
)

// Clock records every Sleep instead of blocking.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func New(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep returns at once. A live ctx moves the clock forward by d; a done ctx
// leaves it untouched and returns the context error, like the wall clock would.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// Slept lists the durations passed to Sleep in call order.
func (c *Clock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ ports.Clock = (*Clock)(nil)
