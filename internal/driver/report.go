package driver

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/acolita/qemu-e2e/internal/expect"
)

// Reporter receives every verdict as it is produced.
type Reporter interface {
	Report(v Verdict)
}

type discard struct{}

func (discard) Report(Verdict) {}

// Discard drops all verdicts.
var Discard Reporter = discard{}

// TextReporter prints one line per verdict:
//
//	PASS: <command> => <pattern>
//	FAIL (timed out): <command> => <pattern>
//
// followed, for failures, by the diagnostic buffer.
type TextReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextReporter creates a reporter writing to w.
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (r *TextReporter) Report(v Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Passed {
		fmt.Fprintf(r.w, "PASS: %s => %s\n", v.Command, v.Pattern)
		return
	}

	fmt.Fprintf(r.w, "FAIL (%s): %s => %s\n", v.Reason(), v.Command, v.Pattern)
	if v.Kind == expect.KindNone && v.Err != nil {
		fmt.Fprintln(r.w, v.Err)
	}
	if v.Output != "" {
		fmt.Fprint(r.w, v.Output)
		if !strings.HasSuffix(v.Output, "\n") {
			fmt.Fprintln(r.w)
		}
	}
}

// Collector keeps verdicts in memory.
type Collector struct {
	mu       sync.Mutex
	verdicts []Verdict
}

func (c *Collector) Report(v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts = append(c.verdicts, v)
}

// Verdicts returns a copy of the collected verdicts.
func (c *Collector) Verdicts() []Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Verdict, len(c.verdicts))
	copy(out, c.verdicts)
	return out
}

// Multi fans verdicts out to several reporters.
type Multi []Reporter

func (m Multi) Report(v Verdict) {
	for _, r := range m {
		r.Report(v)
	}
}
