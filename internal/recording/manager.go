package recording

import (
	"log/slog"
	"sync"

	"github.com/acolita/qemu-e2e/internal/ports"
)

// Manager hands out one recorder per console of a run.
type Manager struct {
	mu        sync.Mutex
	recorders []*Recorder
	basePath  string
	enabled   bool
	fs        ports.FileSystem
	clock     ports.Clock
}

// NewManager creates a new recording manager. A disabled manager returns nil
// recorders.
func NewManager(basePath string, enabled bool, fs ports.FileSystem, clock ports.Clock) *Manager {
	return &Manager{
		basePath: basePath,
		enabled:  enabled,
		fs:       fs,
		clock:    clock,
	}
}

// Start opens a recorder for console in run runID. Failures are logged and
// yield nil: a missing transcript must not fail a test run.
func (m *Manager) Start(runID, console string) *Recorder {
	if m == nil || !m.enabled {
		return nil
	}

	rec, err := NewRecorder(m.basePath, runID, console, m.fs, m.clock)
	if err != nil {
		slog.Warn("session recording disabled",
			slog.String("console", console),
			slog.String("error", err.Error()),
		)
		return nil
	}

	m.mu.Lock()
	m.recorders = append(m.recorders, rec)
	m.mu.Unlock()

	slog.Debug("recording console", slog.String("console", console), slog.String("path", rec.Path()))
	return rec
}

// Paths returns the files of every recorder started so far.
func (m *Manager) Paths() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.recorders))
	for _, r := range m.recorders {
		paths = append(paths, r.Path())
	}
	return paths
}

// CloseAll closes all recorders.
func (m *Manager) CloseAll() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.recorders {
		r.Close()
	}
	m.recorders = nil
}
