// Package recording writes console transcripts in asciicast v2 format, so a
// failed run can be replayed with `asciinema play`.
package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acolita/qemu-e2e/internal/ports"
)

// Terminal geometry written to every header. The consoles are line oriented,
// so these only matter to the player.
const (
	castWidth  = 200
	castHeight = 24
)

// Header is the first line of an asciicast v2 file.
// See https://docs.asciinema.org/manual/asciicast/v2/
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is one [time, type, data] line. Type is "o" for console output and
// "i" for what the harness sent.
type Event struct {
	Time float64
	Type string
	Data string
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{e.Time, e.Type, e.Data})
}

// Recorder is the transcript of one console of one run.
type Recorder struct {
	mu     sync.Mutex
	file   ports.FileHandle
	enc    *json.Encoder
	path   string
	start  time.Time
	clock  ports.Clock
	closed bool
}

// NewRecorder creates <runID>_<console>_<timestamp>.cast under dir and writes
// its header.
func NewRecorder(dir, runID, console string, fs ports.FileSystem, clock ports.Clock) (*Recorder, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	start := clock.Now()
	name := strings.Join([]string{safeName(runID), safeName(console), start.Format("20060102_150405")}, "_") + ".cast"
	path := filepath.Join(dir, name)

	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	r := &Recorder{
		file:  file,
		enc:   json.NewEncoder(file),
		path:  path,
		start: start,
		clock: clock,
	}
	err = r.enc.Encode(Header{
		Version:   2,
		Width:     castWidth,
		Height:    castHeight,
		Timestamp: start.Unix(),
		Title:     runID + " " + console,
		Env:       map[string]string{"TERM": "dumb"},
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	return r, nil
}

func (r *Recorder) RecordOutput(data string) error { return r.write("o", data) }

func (r *Recorder) RecordInput(data string) error { return r.write("i", data) }

// write appends one event. Events after Close are dropped silently because
// the session reader may still be draining when the run closes recordings.
func (r *Recorder) write(kind, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	ev := Event{Time: r.clock.Now().Sub(r.start).Seconds(), Type: kind, Data: data}
	if err := r.enc.Encode(ev); err != nil {
		return fmt.Errorf("write recording event: %w", err)
	}
	return nil
}

// Close is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

func (r *Recorder) Path() string {
	return r.path
}

// safeName keeps [A-Za-z0-9_-] and turns everything else into '_'.
func safeName(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '_'
	}, s)
}
