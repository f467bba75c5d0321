// Package environment starts and stops the emulated guest and opens the
// consoles a scenario talks to.
package environment

import (
	"fmt"
	"strings"
	"time"

	"github.com/acolita/qemu-e2e/internal/session"
)

// Mode selects how the emulator is launched.
type Mode string

const (
	ModeLocal     Mode = "local"     // Emulator and helper tools on the host
	ModeContainer Mode = "container" // Emulator and helper inside the builder container
)

// ParseMode accepts "local" or "container" ("docker" is an alias).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return ModeLocal, nil
	case "container", "docker":
		return ModeContainer, nil
	}
	return "", fmt.Errorf("unknown mode %q (want local or container)", s)
}

// Containerized reports whether m runs inside the builder container.
func (m Mode) Containerized() bool {
	return m == ModeContainer
}

// Environment is one running emulator instance, owned by a single run.
type Environment struct {
	Mode            Mode
	Control         *session.Session // Emulator monitor
	ShutdownCommand string
	StartedAt       time.Time
}

// LaunchError reports that the emulator did not reach its monitor prompt.
type LaunchError struct {
	Mode    Mode
	Command string
	Output  string // Everything the launch command printed
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s emulator (%s): %v", e.Mode, e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// TeardownError reports that the emulator could not be confirmed stopped.
type TeardownError struct {
	Mode Mode
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("stop %s emulator: %v", e.Mode, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
