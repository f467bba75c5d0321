// Package runner executes a scenario against a freshly launched emulator:
// launch, connect, settle, run steps until the first failure, and always
// tear the environment down.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acolita/qemu-e2e/internal/adapters/realclock"
	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/expect"
	"github.com/acolita/qemu-e2e/internal/ports"
	"github.com/acolita/qemu-e2e/internal/recording"
	"github.com/acolita/qemu-e2e/internal/recovery"
	"github.com/acolita/qemu-e2e/internal/scenario"
	"github.com/acolita/qemu-e2e/internal/session"
)

// State is a phase of a run.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateConnecting
	StateExecuting
	StateTearingDown
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateConnecting:
		return "connecting"
	case StateExecuting:
		return "executing"
	case StateTearingDown:
		return "tearing down"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Launcher is the part of *environment.Launcher the runner uses.
type Launcher interface {
	Preclean(ctx context.Context, mode environment.Mode)
	Launch(ctx context.Context, mode environment.Mode, opts ...session.Option) (*environment.Environment, error)
	ConnectGuestConsole(ctx context.Context, opts ...session.Option) (*session.Session, error)
	ConnectHelperShell(ctx context.Context, containerized bool, opts ...session.Option) (*session.Session, error)
	Stop(ctx context.Context, env *environment.Environment) error
}

// Options configures a Runner.
type Options struct {
	Mode          environment.Mode
	Settle        time.Duration     // Pause between connecting and the first step
	StepTimeout   time.Duration     // Timeout for steps that do not set one
	ProbeVersions bool              // Query each console for its version first
	Preclean      bool              // Run the launcher's cleanup commands first
	Vars          map[string]string // ${VAR} values for step commands
	Output        io.Writer         // Progress lines; nil discards them
}

// Runner runs scenarios one at a time.
type Runner struct {
	launcher   Launcher
	driver     *driver.Driver
	clock      ports.Clock
	recordings *recording.Manager
	analyzer   *recovery.Analyzer
	opts       Options
	onState    func(State)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock replaces the clock used for the settle delay.
func WithClock(c ports.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithRecordings records every console of every run.
func WithRecordings(m *recording.Manager) Option {
	return func(r *Runner) {
		r.recordings = m
	}
}

// WithStateHook calls fn on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(r *Runner) {
		r.onState = fn
	}
}

// New creates a runner.
func New(l Launcher, d *driver.Driver, opts Options, options ...Option) *Runner {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = scenario.DefaultTimeout
	}
	r := &Runner{
		launcher: l,
		driver:   d,
		clock:    realclock.New(),
		analyzer: recovery.NewAnalyzer(),
		opts:     opts,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Result is the outcome of one run.
type Result struct {
	Scenario    string
	Mode        environment.Mode
	State       State
	Verdicts    []driver.Verdict
	Err         error // First failure before teardown
	TeardownErr error
	Probes      map[string]string // Console name to reported version
	Recordings  []string
	Hints       []*recovery.Suggestion // Likely causes of a failure
	Duration    time.Duration
}

// Passed reports whether every step passed and the emulator was confirmed
// stopped.
func (r Result) Passed() bool {
	return r.State == StatePassed
}

// consoles holds the sessions of one run.
type consoles struct {
	monitor *session.Session
	guest   *session.Session
	helper  *session.Session
}

func (c *consoles) get(t scenario.Target) *session.Session {
	switch t {
	case scenario.TargetMonitor:
		return c.monitor
	case scenario.TargetGuest:
		return c.guest
	case scenario.TargetHelper:
		return c.helper
	}
	return nil
}

func (r *Runner) setState(res *Result, s State) {
	res.State = s
	slog.Debug("run state", slog.String("scenario", res.Scenario), slog.String("state", s.String()))
	if r.onState != nil {
		r.onState(s)
	}
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.opts.Output, format+"\n", args...)
}

// Run executes sc. Once the emulator is up, teardown always happens, also
// when ctx is canceled; it runs on a context detached from ctx.
func (r *Runner) Run(ctx context.Context, sc scenario.Scenario) Result {
	start := r.clock.Now()
	mode := r.opts.Mode
	res := Result{Scenario: sc.Name, Mode: mode}
	r.setState(&res, StateIdle)

	finish := func() Result {
		res.Duration = r.clock.Now().Sub(start)
		res.Recordings = r.recordings.Paths()
		r.recordings.CloseAll()

		if res.Err == nil && res.TeardownErr == nil {
			r.setState(&res, StatePassed)
			return res
		}
		r.setState(&res, StateFailed)
		res.Hints = r.analyzer.AnalyzeError(errors.Join(res.Err, res.TeardownErr))
		for _, h := range res.Hints {
			r.printf("Hint: %s. %s", h.Problem, h.Explanation)
			for _, c := range h.Commands {
				r.printf("  try: %s", c)
			}
		}
		return res
	}

	sc = sc.Expand(r.opts.Vars)
	if err := sc.Validate(); err != nil {
		res.Err = err
		return finish()
	}

	r.printf("---- Running %s", sc.Name)
	slog.Info("running scenario", slog.String("scenario", sc.Name), slog.String("mode", string(mode)))

	if r.opts.Preclean {
		r.launcher.Preclean(ctx, mode)
	}

	r.setState(&res, StateLaunching)
	env, err := r.launcher.Launch(ctx, mode, r.sessionOptions(sc.Name, "monitor")...)
	if err != nil {
		res.Err = err
		r.reportError(err)
		return finish()
	}

	c := &consoles{monitor: env.Control}
	res.Err = r.connectAndExecute(ctx, sc, env, c, &res)
	if res.Err != nil {
		r.reportError(res.Err)
	}

	r.setState(&res, StateTearingDown)
	res.TeardownErr = r.teardown(context.WithoutCancel(ctx), env, c)
	if res.TeardownErr != nil {
		r.printf("Error: emulator is still running: %v", res.TeardownErr)
		slog.Error("teardown failed", slog.String("error", res.TeardownErr.Error()))
	} else {
		r.printf("Emulator stopped.")
	}

	res = finish()
	if res.Passed() {
		r.printf("---- PASS %s", sc.Name)
	} else {
		r.printf("---- FAIL %s", sc.Name)
	}
	return res
}

func (r *Runner) reportError(err error) {
	r.printf("Error: %v", err)
}

func (r *Runner) connectAndExecute(ctx context.Context, sc scenario.Scenario, env *environment.Environment, c *consoles, res *Result) error {
	r.setState(res, StateConnecting)

	guest, err := r.launcher.ConnectGuestConsole(ctx, r.sessionOptions(sc.Name, "guest")...)
	if err != nil {
		return err
	}
	c.guest = guest

	helper, err := r.launcher.ConnectHelperShell(ctx, env.Mode.Containerized(), r.sessionOptions(sc.Name, "helper")...)
	if err != nil {
		return err
	}
	c.helper = helper

	r.setState(res, StateExecuting)

	if r.opts.Settle > 0 {
		r.printf("Sleeping %s for stability...", r.opts.Settle)
		if err := r.clock.Sleep(ctx, r.opts.Settle); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.opts.ProbeVersions {
		probes, err := r.probe(ctx, c, res)
		res.Probes = probes
		if err != nil {
			return err
		}
	}

	for i, step := range sc.Steps {
		target := c.get(step.On)
		pattern, err := step.Pattern()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		v, err := r.driver.Step(ctx, target, step.Send, pattern, step.EffectiveTimeout(r.opts.StepTimeout))
		res.Verdicts = append(res.Verdicts, v)
		if err != nil {
			return fmt.Errorf("scenario %s step %d: %w", sc.Name, i+1, err)
		}
	}
	return nil
}

// probe asks every console for its version.
func (r *Runner) probe(ctx context.Context, c *consoles, res *Result) (map[string]string, error) {
	probes := []struct {
		target  scenario.Target
		command string
		pattern expect.Pattern
	}{
		{scenario.TargetMonitor, "info version", expect.MustRegex(`\d+\.\d+\.\d+\S*`)},
		{scenario.TargetGuest, "version", expect.MustRegex(`liumOS version: (\S+)`)},
		{scenario.TargetHelper, "uname -a", expect.MustRegex(`(Linux|Darwin)\S*`)},
	}

	versions := make(map[string]string)
	for _, p := range probes {
		v, err := r.driver.Step(ctx, c.get(p.target), p.command, p.pattern, r.opts.StepTimeout)
		res.Verdicts = append(res.Verdicts, v)
		if err != nil {
			return versions, fmt.Errorf("version probe: %w", err)
		}

		version := v.Match
		if len(v.Groups) > 0 && v.Groups[0] != "" {
			version = v.Groups[0]
		}
		versions[string(p.target)] = version
		slog.Info("console version", slog.String("console", string(p.target)), slog.String("version", version))
	}
	return versions, nil
}

// teardown leaves the helper shell, closes the guest and helper consoles and
// stops the emulator.
func (r *Runner) teardown(ctx context.Context, env *environment.Environment, c *consoles) error {
	if c.helper != nil && c.helper.IsAlive() {
		if err := c.helper.SendLine("exit"); err != nil {
			slog.Debug("helper exit", slog.String("error", err.Error()))
		}
	}

	var g errgroup.Group
	for _, s := range []*session.Session{c.guest, c.helper} {
		if s == nil {
			continue
		}
		g.Go(s.Close)
	}
	_ = g.Wait()

	return r.launcher.Stop(ctx, env)
}

// sessionOptions attaches a recorder when recording is enabled.
func (r *Runner) sessionOptions(runID, console string) []session.Option {
	rec := r.recordings.Start(runID, console)
	if rec == nil {
		return nil
	}
	return []session.Option{session.WithRecorder(rec)}
}
