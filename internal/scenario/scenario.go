// Package scenario defines test scenarios: named, ordered lists of
// command/expect steps addressed to the monitor, guest or helper console.
package scenario

import (
	"errors"
	"fmt"
	"time"

	"github.com/acolita/qemu-e2e/internal/expect"
	"github.com/acolita/qemu-e2e/internal/shellvars"
)

// DefaultTimeout applies to steps that do not set one.
const DefaultTimeout = 5 * time.Second

// Target names the console a step is addressed to.
type Target string

const (
	TargetMonitor Target = "monitor" // Emulator monitor (control console)
	TargetGuest   Target = "guest"   // Guest serial console
	TargetHelper  Target = "helper"  // Host-side helper shell
)

// Valid reports whether t names a known console.
func (t Target) Valid() bool {
	switch t {
	case TargetMonitor, TargetGuest, TargetHelper:
		return true
	}
	return false
}

// Step is a single command/expect exchange.
type Step struct {
	// Name is an optional label used in logs.
	Name string `yaml:"name,omitempty" toml:"name" json:"name,omitempty"`

	// On is the console the command is sent to and the output read from.
	On Target `yaml:"on" toml:"on" json:"on"`

	// Send is written followed by a newline. Empty means wait for more
	// output from an earlier command without sending anything.
	Send string `yaml:"send,omitempty" toml:"send" json:"send,omitempty"`

	// Expect is a literal substring to wait for.
	Expect string `yaml:"expect,omitempty" toml:"expect" json:"expect,omitempty"`

	// ExpectRegex is a regular expression to wait for, used instead of Expect.
	ExpectRegex string `yaml:"expect_regex,omitempty" toml:"expect_regex" json:"expect_regex,omitempty"`

	// Timeout bounds the wait (0 = DefaultTimeout).
	Timeout time.Duration `yaml:"timeout,omitempty" toml:"timeout" json:"timeout,omitempty"`
}

// Pattern returns the step's compiled pattern.
func (s Step) Pattern() (expect.Pattern, error) {
	if s.ExpectRegex != "" {
		return expect.Regex(s.ExpectRegex)
	}
	return expect.Literal(s.Expect), nil
}

// EffectiveTimeout returns the step timeout, falling back to def and then
// DefaultTimeout.
func (s Step) EffectiveTimeout(def time.Duration) time.Duration {
	switch {
	case s.Timeout > 0:
		return s.Timeout
	case def > 0:
		return def
	}
	return DefaultTimeout
}

// Validate checks the step in isolation.
func (s Step) Validate() error {
	if !s.On.Valid() {
		return fmt.Errorf("unknown console %q (want monitor, guest or helper)", s.On)
	}
	if s.Expect == "" && s.ExpectRegex == "" {
		return errors.New("expect or expect_regex is required")
	}
	if s.Expect != "" && s.ExpectRegex != "" {
		return errors.New("expect and expect_regex are mutually exclusive")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", s.Timeout)
	}
	p, err := s.Pattern()
	if err != nil {
		return err
	}
	if p.MatchesEmpty() {
		return fmt.Errorf("pattern %q matches empty output", p)
	}
	return nil
}

// Scenario is an ordered list of steps run against one environment.
type Scenario struct {
	Name        string `yaml:"name" toml:"name" json:"name"`
	Description string `yaml:"description,omitempty" toml:"description" json:"description,omitempty"`
	Steps       []Step `yaml:"steps" toml:"steps" json:"steps"`

	// Source is the file the scenario was loaded from, or "builtin".
	Source string `yaml:"-" toml:"-" json:"source,omitempty"`
}

// Validate checks the scenario and every step.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %s: no steps", s.Name)
	}
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("scenario %s: step %d: %w", s.Name, i+1, err)
		}
	}
	return nil
}

// Expand returns a copy of s with ${VAR} references in each step's command
// replaced from vars. Unknown variables are left as written.
func (s Scenario) Expand(vars map[string]string) Scenario {
	steps := make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		step.Send = expandVars(step.Send, vars)
		steps[i] = step
	}
	s.Steps = steps
	return s
}

func expandVars(text string, vars map[string]string) string {
	return shellvars.Expand(text, shellvars.Map(vars))
}

// Targets returns the consoles the scenario uses, in first-use order.
func (s *Scenario) Targets() []Target {
	var targets []Target
	seen := make(map[Target]bool)
	for _, step := range s.Steps {
		if !seen[step.On] {
			seen[step.On] = true
			targets = append(targets, step.On)
		}
	}
	return targets
}
