// Package ports holds the interfaces the harness uses to reach the clock,
// the filesystem, the network and the operator.
package ports

import (
	"context"
	"time"
)

// Clock is the time source for settle delays, run durations and recording
// timestamps.
type Clock interface {
	Now() time.Time

	// Sleep waits for d or until ctx is done, whichever comes first, and
	// returns ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}
