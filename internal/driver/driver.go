// Package driver sends commands to consoles and checks their responses,
// producing one Verdict per step.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acolita/qemu-e2e/internal/expect"
)

// Target is a console the driver can write to and read from.
type Target interface {
	expect.Source
	Name() string
	SendLine(text string) error
}

// Verdict is the outcome of one step.
type Verdict struct {
	Session string
	Command string // Empty for a continuation step
	Pattern string
	Passed  bool
	Kind    expect.FailureKind
	Match   string
	Groups  []string
	Output  string // Output preceding the match, or the diagnostic buffer on failure
	Elapsed time.Duration
	Err     error
}

// Reason describes why the step failed.
func (v Verdict) Reason() string {
	if v.Passed {
		return ""
	}
	if v.Kind == expect.KindNone {
		return "send failed"
	}
	return v.Kind.String()
}

// StepError is returned by Step when a step fails.
type StepError struct {
	Verdict Verdict
}

func (e *StepError) Error() string {
	v := e.Verdict
	return fmt.Sprintf("step on %s failed (%s): %q => %q: %v", v.Session, v.Reason(), v.Command, v.Pattern, v.Err)
}

func (e *StepError) Unwrap() error {
	return e.Verdict.Err
}

// Driver runs command/expect steps and reports each verdict.
type Driver struct {
	reporter Reporter
}

// New creates a driver reporting to r. A nil reporter discards verdicts.
func New(r Reporter) *Driver {
	if r == nil {
		r = Discard
	}
	return &Driver{reporter: r}
}

// Step sends command to s (unless it is empty) and waits up to timeout for
// pattern. A failed step is reported and returned as a *StepError; callers
// stop at the first one.
func (d *Driver) Step(ctx context.Context, s Target, command string, pattern expect.Pattern, timeout time.Duration) (Verdict, error) {
	v := Verdict{
		Session: s.Name(),
		Command: command,
		Pattern: pattern.String(),
	}

	if command != "" {
		if err := s.SendLine(command); err != nil {
			v.Err = err
			d.reporter.Report(v)
			return v, &StepError{Verdict: v}
		}
	}

	result := expect.Await(ctx, s, pattern, timeout)
	v.Passed = result.Matched
	v.Kind = result.Kind
	v.Match = result.Match
	v.Groups = result.Groups
	v.Output = result.Before
	v.Elapsed = result.Elapsed
	v.Err = result.Err()

	slog.Debug("step finished",
		slog.String("session", v.Session),
		slog.String("command", command),
		slog.String("pattern", v.Pattern),
		slog.Bool("passed", v.Passed),
		slog.Duration("elapsed", v.Elapsed),
	)

	d.reporter.Report(v)
	if !v.Passed {
		return v, &StepError{Verdict: v}
	}
	return v, nil
}
