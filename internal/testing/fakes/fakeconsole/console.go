// Package fakeconsole provides an in-memory line console for testing session
// consumers without spawning processes or opening sockets.
package fakeconsole

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// Console is a fake bidirectional console. Output is pushed with Emit and
// returned by Read; lines written by the code under test are recorded and can
// trigger scripted replies.
type Console struct {
	mu      sync.Mutex
	pending []byte
	partial bytes.Buffer
	lines   []string
	replies map[string][]string
	onLine  func(line string)
	hungUp  bool
	closed  bool
	wake    chan struct{}
}

// New creates an empty console.
func New() *Console {
	return &Console{
		replies: make(map[string][]string),
		wake:    make(chan struct{}, 1),
	}
}

// Emit queues output to be returned by Read.
func (c *Console) Emit(s string) *Console {
	c.mu.Lock()
	c.pending = append(c.pending, s...)
	c.mu.Unlock()
	c.signal()
	return c
}

// Respond emits output every time line is written to the console.
func (c *Console) Respond(line string, output ...string) *Console {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[line] = append(c.replies[line], output...)
	return c
}

// OnLine registers a callback invoked for each line written, after replies.
func (c *Console) OnLine(fn func(line string)) *Console {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = fn
	return c
}

// Hangup makes Read return io.EOF once the queued output has been drained,
// as a terminated process would.
func (c *Console) Hangup() {
	c.mu.Lock()
	c.hungUp = true
	c.mu.Unlock()
	c.signal()
}

// Read implements io.Reader. It blocks until output is queued or the console
// is hung up or closed.
func (c *Console) Read(b []byte) (int, error) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			n := copy(b, c.pending)
			c.pending = c.pending[n:]
			c.mu.Unlock()
			return n, nil
		}
		if c.hungUp || c.closed {
			c.mu.Unlock()
			return 0, io.EOF
		}
		c.mu.Unlock()
		<-c.wake
	}
}

// Write implements io.Writer. Complete lines are recorded and answered.
func (c *Console) Write(b []byte) (int, error) {
	c.mu.Lock()
	if c.closed || c.hungUp {
		c.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	c.partial.Write(b)
	var complete []string
	for {
		data := c.partial.String()
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(data[:idx], "\r")
		c.partial.Next(idx + 1)
		c.lines = append(c.lines, line)
		complete = append(complete, line)
	}
	onLine := c.onLine
	c.mu.Unlock()

	for _, line := range complete {
		c.mu.Lock()
		replies := c.replies[line]
		c.mu.Unlock()
		for _, r := range replies {
			c.Emit(r)
		}
		if onLine != nil {
			onLine(line)
		}
	}
	return len(b), nil
}

// Close implements io.Closer. It is safe to call more than once.
func (c *Console) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
	return nil
}

// Lines returns every complete line written so far.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// IsClosed reports whether Close was called.
func (c *Console) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Console) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
