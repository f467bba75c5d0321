package expect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// streamSource is an in-memory Source fed by the test.
type streamSource struct {
	mu      sync.Mutex
	buf     []byte
	cursor  int
	eof     bool
	changed chan struct{}
}

func newStreamSource(initial string) *streamSource {
	return &streamSource{buf: []byte(initial), changed: make(chan struct{})}
}

func (s *streamSource) write(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, data...)
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *streamSource) hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eof = true
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *streamSource) Pending() ([]byte, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf[s.cursor:], s.eof, s.changed
}

func (s *streamSource) Consume(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor += n
}

func TestAwait_BufferedMatch(t *testing.T) {
	src := newStreamSource("ip\r\n10.0.2.15 eth 52:54:00:12:34:56\r\n(liumos) ")

	r := Await(context.Background(), src, Literal("10.0.2.15"), time.Second)
	if !r.Matched {
		t.Fatalf("expected match, got kind %v", r.Kind)
	}
	if r.Before != "ip\r\n" {
		t.Errorf("Before = %q", r.Before)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}

	data, _, _ := src.Pending()
	if string(data) != " eth 52:54:00:12:34:56\r\n(liumos) " {
		t.Errorf("cursor not moved past the match, pending = %q", data)
	}
}

func TestAwait_SequentialCallsContinueFromCursor(t *testing.T) {
	src := newStreamSource("(liumos) (liumos) ")

	for i := 0; i < 2; i++ {
		if r := Await(context.Background(), src, Literal("(liumos)"), 0); !r.Matched {
			t.Fatalf("call %d: expected match", i)
		}
	}
	if r := Await(context.Background(), src, Literal("(liumos)"), 0); r.Matched {
		t.Fatal("third call matched output that was already consumed")
	}
}

func TestAwait_LaterOutput(t *testing.T) {
	src := newStreamSource("")
	go func() {
		time.Sleep(20 * time.Millisecond)
		src.write("ICMP packet received from 10.0.2.2 ")
		time.Sleep(20 * time.Millisecond)
		src.write("ICMP Type = 0\n")
	}()

	r := Await(context.Background(), src, Literal("ICMP packet received from 10.0.2.2 ICMP Type = 0"), 2*time.Second)
	if !r.Matched {
		t.Fatalf("expected match across chunks, got %v", r.Kind)
	}
}

func TestAwait_Regex(t *testing.T) {
	src := newStreamSource("liumOS version: v0.1-abcdef\n")

	r := Await(context.Background(), src, MustRegex(`liumOS version: (\S+)(-x)?`), time.Second)
	if !r.Matched {
		t.Fatal("expected match")
	}
	if len(r.Groups) != 2 || r.Groups[0] != "v0.1-abcdef" || r.Groups[1] != "" {
		t.Errorf("Groups = %q", r.Groups)
	}
}

func TestAwait_Timeout(t *testing.T) {
	src := newStreamSource("Listening port: 8888\n")

	start := time.Now()
	r := Await(context.Background(), src, Literal("LIUMOS_E2E_TEST_MESSAGE"), 50*time.Millisecond)
	elapsed := time.Since(start)

	if r.Matched || r.Kind != KindTimeout {
		t.Fatalf("Kind = %v, want timeout", r.Kind)
	}
	if !errors.Is(r.Err(), ErrTimeout) {
		t.Errorf("Err() = %v", r.Err())
	}
	if r.Before != "Listening port: 8888\n" {
		t.Errorf("diagnostic buffer = %q", r.Before)
	}
	if elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Errorf("wait took %v", elapsed)
	}
}

func TestAwait_ZeroTimeoutChecksBufferOnly(t *testing.T) {
	src := newStreamSource("abc")

	if r := Await(context.Background(), src, Literal("abc"), 0); !r.Matched {
		t.Error("buffered output should match with zero timeout")
	}
	if r := Await(context.Background(), src, Literal("zzz"), -time.Second); r.Kind != KindTimeout {
		t.Errorf("Kind = %v, want timeout", r.Kind)
	}
}

func TestAwait_StreamClosed(t *testing.T) {
	src := newStreamSource("partial")
	go func() {
		time.Sleep(20 * time.Millisecond)
		src.hangup()
	}()

	r := Await(context.Background(), src, Literal("Docker stopped"), 5*time.Second)
	if r.Kind != KindStreamClosed {
		t.Fatalf("Kind = %v, want stream closed", r.Kind)
	}
	if !errors.Is(r.Err(), ErrStreamClosed) {
		t.Errorf("Err() = %v", r.Err())
	}
	if r.Elapsed > 2*time.Second {
		t.Errorf("EOF should end the wait early, took %v", r.Elapsed)
	}
}

func TestAwait_MatchWinsOverEOF(t *testing.T) {
	src := newStreamSource("bye (qemu)")
	src.hangup()

	if r := Await(context.Background(), src, Literal("(qemu)"), time.Second); !r.Matched {
		t.Errorf("buffered match before EOF should succeed, got %v", r.Kind)
	}
}

func TestAwait_Canceled(t *testing.T) {
	src := newStreamSource("")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	r := Await(ctx, src, Literal("never"), 5*time.Second)
	if r.Kind != KindCanceled {
		t.Fatalf("Kind = %v, want canceled", r.Kind)
	}
	if !errors.Is(r.Err(), context.Canceled) {
		t.Errorf("Err() = %v", r.Err())
	}
}

func TestFailureKind_String(t *testing.T) {
	tests := map[FailureKind]string{
		KindNone:         "none",
		KindTimeout:      "timed out",
		KindStreamClosed: "stream closed",
		KindCanceled:     "canceled",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
