package recording

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acolita/qemu-e2e/internal/adapters/realfs"
	"github.com/acolita/qemu-e2e/internal/testing/fakes/fakeclock"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestEventMarshalJSON(t *testing.T) {
	tests := []struct {
		event    Event
		expected string
	}{
		{Event{Time: 1.5, Type: "o", Data: "(qemu) "}, `[1.5,"o","(qemu) "]`},
		{Event{Time: 0, Type: "i", Data: "q\n"}, `[0,"i","q\n"]`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.event)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(data) != tt.expected {
			t.Errorf("Marshal(%v) = %s, want %s", tt.event, data, tt.expected)
		}
	}
}

func TestRecorder_WritesHeaderAndEvents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "casts")
	clock := fakeclock.New(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	r, err := NewRecorder(dir, "ping_to_router", "guest console", realfs.New(), clock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if !strings.HasSuffix(r.Path(), "ping_to_router_guest_console_20240301_120000.cast") {
		t.Errorf("Path() = %q", r.Path())
	}

	r.RecordInput("ping.bin 10.0.2.2\n")
	clock.Advance(1500 * time.Millisecond)
	r.RecordOutput("ICMP packet received\n")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	r.RecordOutput("ignored after close")

	lines := readLines(t, r.Path())
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 events: %v", len(lines), lines)
	}

	var header Header
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	if header.Version != 2 || header.Title != "ping_to_router guest console" {
		t.Errorf("header = %+v", header)
	}
	if lines[1] != `[0,"i","ping.bin 10.0.2.2\n"]` {
		t.Errorf("event 1 = %s", lines[1])
	}
	if lines[2] != `[1.5,"o","ICMP packet received\n"]` {
		t.Errorf("event 2 = %s", lines[2])
	}
}

func TestNewRecorder_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewRecorder(filepath.Join(file, "sub"), "run", "monitor", realfs.New(), fakeclock.New(time.Now()))
	if err == nil {
		t.Error("expected error when directory cannot be created")
	}
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(t.TempDir(), false, realfs.New(), fakeclock.New(time.Now()))
	if r := m.Start("run", "monitor"); r != nil {
		t.Error("disabled manager returned a recorder")
	}

	var nilManager *Manager
	if r := nilManager.Start("run", "monitor"); r != nil {
		t.Error("nil manager returned a recorder")
	}
	nilManager.CloseAll()
}

func TestManager_StartAndCloseAll(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, true, realfs.New(), fakeclock.New(time.Now()))

	mon := m.Start("udp_client", "monitor")
	guest := m.Start("udp_client", "guest")
	if mon == nil || guest == nil {
		t.Fatal("Start() returned nil recorder")
	}

	paths := m.Paths()
	if len(paths) != 2 {
		t.Fatalf("Paths() = %v", paths)
	}
	for _, p := range paths {
		if filepath.Dir(p) != dir {
			t.Errorf("recording %s outside %s", p, dir)
		}
	}

	m.CloseAll()
	if len(m.Paths()) != 0 {
		t.Error("CloseAll() kept recorders")
	}
	if err := mon.RecordOutput("late"); err != nil {
		t.Errorf("RecordOutput after CloseAll = %v", err)
	}
}
