// Package session provides line-oriented connections to the consoles a test
// run drives: the emulator monitor, the guest serial console and helper shells.
//
// Every Session owns one reader goroutine that appends everything the
// endpoint produces to a buffer. Consumers never read the transport directly;
// they inspect the unconsumed part of the buffer with Pending and move the
// read cursor forward with Consume.
package session

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	readChunk = 4096

	// compactThreshold is the consumed prefix size above which the buffer is
	// reallocated without it.
	compactThreshold = 64 * 1024

	// closeWait bounds how long Close waits for the reader goroutine.
	closeWait = 2 * time.Second
)

// Transport is the raw byte stream behind a session.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Recorder receives a copy of everything sent and received.
type Recorder interface {
	RecordOutput(data string) error
	RecordInput(data string) error
}

// Session is one live console connection.
type Session struct {
	name       string
	endpoint   string
	conn       Transport
	lineEnding string
	recorder   Recorder

	mu      sync.Mutex
	buf     []byte
	cursor  int
	eof     bool
	readErr error
	changed chan struct{}

	writeMu    sync.Mutex
	closeOnce  sync.Once
	readerDone chan struct{}

	recordErrOnce sync.Once
}

// exitReporter is implemented by process-backed transports.
type exitReporter interface {
	ExitErr() error
}

// Option configures a Session.
type Option func(*Session)

// WithLineEnding sets the terminator appended by SendLine (default "\n").
func WithLineEnding(ending string) Option {
	return func(s *Session) {
		if ending != "" {
			s.lineEnding = ending
		}
	}
}

// WithRecorder tees the session's traffic into r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// New wraps an established transport and starts reading from it.
func New(name, endpoint string, conn Transport, opts ...Option) *Session {
	s := &Session{
		name:       name,
		endpoint:   endpoint,
		conn:       conn,
		lineEnding: "\n",
		changed:    make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	defer close(s.readerDone)

	chunk := make([]byte, readChunk)
	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			if s.recorder != nil {
				s.noteRecordErr(s.recorder.RecordOutput(string(chunk[:n])))
			}
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.notifyLocked()
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			s.eof = true
			if !isEndOfStream(err) {
				s.readErr = err
			}
			s.notifyLocked()
			s.mu.Unlock()

			slog.Debug("session stream ended",
				slog.String("session", s.name),
				slog.String("reason", err.Error()),
			)
			if p, ok := s.conn.(exitReporter); ok {
				if exitErr := p.ExitErr(); exitErr != nil {
					slog.Debug("console process failed",
						slog.String("session", s.name),
						slog.String("error", exitErr.Error()),
					)
				}
			}
			return
		}
	}
}

// noteRecordErr logs the first recording failure of the session. The
// transcript is diagnostic only, so the run goes on without it.
func (s *Session) noteRecordErr(err error) {
	if err == nil {
		return
	}
	s.recordErrOnce.Do(func() {
		slog.Debug("session recording failed",
			slog.String("session", s.name),
			slog.String("error", err.Error()),
		)
	})
}

// notifyLocked wakes every waiter. s.mu must be held.
func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Name returns the console name.
func (s *Session) Name() string {
	return s.name
}

// Endpoint describes what the session is connected to.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// SendLine writes text followed by the line terminator.
func (s *Session) SendLine(text string) error {
	if !s.IsAlive() {
		return &ConnectionError{Session: s.name, Endpoint: s.endpoint, Op: "send", Err: ErrClosed}
	}

	line := text + s.lineEnding

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.recorder != nil {
		s.noteRecordErr(s.recorder.RecordInput(line))
	}
	if _, err := io.WriteString(s.conn, line); err != nil {
		return &ConnectionError{Session: s.name, Endpoint: s.endpoint, Op: "send", Err: err}
	}
	return nil
}

// IsAlive reports whether the stream is still open. Once end of stream has
// been observed it stays false.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.eof
}

// Pending returns the unconsumed output, whether the stream has ended, and a
// channel that is closed on the next change (new output or end of stream).
// The returned slice must not be modified.
func (s *Session) Pending() ([]byte, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.buf)
	return s.buf[s.cursor:n:n], s.eof, s.changed
}

// Consume advances the read cursor by n bytes. The cursor never moves
// backwards and never past the buffered output.
func (s *Session) Consume(n int) {
	if n <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor += n
	if s.cursor > len(s.buf) {
		s.cursor = len(s.buf)
	}

	if s.cursor >= compactThreshold && s.cursor*2 >= len(s.buf) {
		rest := make([]byte, len(s.buf)-s.cursor)
		copy(rest, s.buf[s.cursor:])
		s.buf = rest
		s.cursor = 0
	}
}

// Done is closed once the reader has observed end of stream.
func (s *Session) Done() <-chan struct{} {
	return s.readerDone
}

// Err returns the read error that ended the stream, or nil for a clean end
// of stream or a stream that is still open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Close releases the transport. It is idempotent and never fails.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			slog.Debug("session close",
				slog.String("session", s.name),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-s.readerDone:
		case <-time.After(closeWait):
			slog.Warn("session reader did not stop", slog.String("session", s.name))
		}
	})
	return nil
}
