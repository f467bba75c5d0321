package expect

import (
	"errors"
	"time"
)

var (
	// ErrTimeout means the pattern did not appear within the timeout.
	ErrTimeout = errors.New("timed out waiting for pattern")

	// ErrStreamClosed means the stream ended before the pattern appeared.
	ErrStreamClosed = errors.New("stream closed before pattern matched")
)

// FailureKind classifies an unsuccessful wait.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindTimeout
	KindStreamClosed
	KindCanceled
)

func (k FailureKind) String() string {
	switch k {
	case KindTimeout:
		return "timed out"
	case KindStreamClosed:
		return "stream closed"
	case KindCanceled:
		return "canceled"
	}
	return "none"
}

// MatchResult is the outcome of one Await call.
type MatchResult struct {
	Matched bool
	Match   string   // Text that matched the pattern
	Groups  []string // Regex capture groups, excluding the whole match
	Before  string   // Output preceding the match, or all unconsumed output on failure
	Kind    FailureKind
	Elapsed time.Duration

	cause error
}

// Err returns nil for a match, ErrTimeout, ErrStreamClosed, or the context's
// error when the wait was canceled.
func (r MatchResult) Err() error {
	switch r.Kind {
	case KindTimeout:
		return ErrTimeout
	case KindStreamClosed:
		return ErrStreamClosed
	case KindCanceled:
		if r.cause != nil {
			return r.cause
		}
		return errors.New("canceled")
	}
	return nil
}
