package expect

import (
	"context"
	"time"
)

// Source is a consumable output stream, typically a *session.Session.
type Source interface {
	// Pending returns the unconsumed output, whether the stream has ended,
	// and a channel closed on the next change.
	Pending() (data []byte, eof bool, changed <-chan struct{})

	// Consume advances the read cursor by n bytes.
	Consume(n int)
}

// Await blocks until p matches the unconsumed output of src, the stream ends,
// the timeout elapses or ctx is done. On a match the cursor moves past the
// matched text, so consecutive calls continue where the previous one stopped.
// A non-positive timeout only checks what is already buffered.
//
// Output that is already buffered always wins: a match present before end of
// stream or the deadline is reported as a match.
func Await(ctx context.Context, src Source, p Pattern, timeout time.Duration) MatchResult {
	start := time.Now()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	expired := timeout <= 0
	for {
		data, eof, changed := src.Pending()

		if loc := p.find(data); loc != nil {
			result := MatchResult{
				Matched: true,
				Match:   string(data[loc[0]:loc[1]]),
				Before:  string(data[:loc[0]]),
				Elapsed: time.Since(start),
			}
			for i := 2; i+1 < len(loc); i += 2 {
				if loc[i] < 0 {
					result.Groups = append(result.Groups, "")
					continue
				}
				result.Groups = append(result.Groups, string(data[loc[i]:loc[i+1]]))
			}
			src.Consume(loc[1])
			return result
		}

		switch {
		case eof:
			return failure(KindStreamClosed, data, start, nil)
		case expired:
			return failure(KindTimeout, data, start, nil)
		}

		select {
		case <-changed:
		case <-deadline:
			expired = true
		case <-ctx.Done():
			return failure(KindCanceled, data, start, ctx.Err())
		}
	}
}

func failure(kind FailureKind, data []byte, start time.Time, cause error) MatchResult {
	return MatchResult{
		Before:  string(data),
		Kind:    kind,
		Elapsed: time.Since(start),
		cause:   cause,
	}
}
