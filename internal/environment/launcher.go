package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/acolita/qemu-e2e/internal/expect"
	"github.com/acolita/qemu-e2e/internal/session"
	"github.com/acolita/qemu-e2e/internal/shellvars"
)

// SecretStore looks up stored passwords.
type SecretStore interface {
	Get(user string) (string, error)
}

// Launcher starts emulators and opens their consoles.
type Launcher struct {
	cfg     Config
	secrets SecretStore
	open    func(ctx context.Context, spec session.Spec, opts ...session.OpenOption) (*session.Session, error)
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithSecrets sets the store used for SSH helper passwords.
func WithSecrets(s SecretStore) Option {
	return func(l *Launcher) {
		l.secrets = s
	}
}

// NewLauncher creates a launcher for cfg.
func NewLauncher(cfg Config, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:  cfg.withDefaults(),
		open: session.Open,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the launcher configuration.
func (l *Launcher) Config() Config {
	return l.cfg
}

// Expand replaces ${ROOT_DIR}, ${MODE} and configured variables in text.
// Any other $NAME is left for the shell.
func (l *Launcher) Expand(text string, mode Mode) string {
	return shellvars.Expand(text, func(name string) (string, bool) {
		switch name {
		case "ROOT_DIR":
			return l.cfg.RootDir, true
		case "MODE":
			return string(mode), true
		}
		v, ok := l.cfg.Vars[name]
		return v, ok
	})
}

func (l *Launcher) launchConfig(mode Mode) LaunchConfig {
	if mode == ModeContainer {
		return l.cfg.Container
	}
	return l.cfg.Local
}

// Launch starts the emulator in the given mode.
func (l *Launcher) Launch(ctx context.Context, mode Mode, opts ...session.Option) (*Environment, error) {
	switch mode {
	case ModeLocal:
		return l.LaunchLocal(ctx, opts...)
	case ModeContainer:
		return l.LaunchContainerized(ctx, opts...)
	}
	return nil, &LaunchError{Mode: mode, Err: fmt.Errorf("unknown mode %q", mode)}
}

// LaunchLocal starts the emulator on the host and waits for its monitor.
func (l *Launcher) LaunchLocal(ctx context.Context, opts ...session.Option) (*Environment, error) {
	return l.launch(ctx, ModeLocal, opts)
}

// LaunchContainerized starts the emulator inside the builder container and
// waits for its monitor.
func (l *Launcher) LaunchContainerized(ctx context.Context, opts ...session.Option) (*Environment, error) {
	return l.launch(ctx, ModeContainer, opts)
}

func (l *Launcher) launch(ctx context.Context, mode Mode, opts []session.Option) (*Environment, error) {
	lc := l.launchConfig(mode)
	command := l.Expand(lc.Command, mode)

	slog.Info("launching emulator",
		slog.String("mode", string(mode)),
		slog.String("command", command),
	)

	control, err := l.open(ctx, session.Spec{
		Name:    "monitor",
		Kind:    session.KindExec,
		Command: command,
		Dir:     l.cfg.RootDir,
	}, session.WithSessionOptions(opts...))
	if err != nil {
		return nil, &LaunchError{Mode: mode, Command: command, Err: err}
	}

	result := expect.Await(ctx, control, expect.Literal(lc.Prompt), lc.Timeout)
	if !result.Matched {
		control.Close()
		return nil, &LaunchError{
			Mode:    mode,
			Command: command,
			Output:  result.Before,
			Err:     fmt.Errorf("waiting for %q: %w", lc.Prompt, result.Err()),
		}
	}

	slog.Info("reached emulator monitor",
		slog.String("mode", string(mode)),
		slog.Duration("elapsed", result.Elapsed),
	)

	return &Environment{
		Mode:            mode,
		Control:         control,
		ShutdownCommand: l.cfg.ShutdownCommand,
		StartedAt:       time.Now(),
	}, nil
}

// ConnectGuestConsole connects to the guest serial console and waits for the
// guest prompt.
func (l *Launcher) ConnectGuestConsole(ctx context.Context, opts ...session.Option) (*session.Session, error) {
	g := l.cfg.Guest
	s, err := l.open(ctx, session.Spec{
		Name:       "guest",
		Kind:       session.KindTCP,
		Address:    g.Address,
		Telnet:     g.Telnet,
		LineEnding: g.LineEnding,
	}, session.WithSessionOptions(opts...))
	if err != nil {
		return nil, err
	}

	if err := awaitReady(ctx, s, expect.Literal(g.Prompt), g.Timeout); err != nil {
		return nil, err
	}

	slog.Info("reached guest prompt", slog.String("address", g.Address))
	return s, nil
}

// awaitReady waits for a console's prompt and closes the session if it does
// not appear.
func awaitReady(ctx context.Context, s *session.Session, prompt expect.Pattern, timeout time.Duration) error {
	result := expect.Await(ctx, s, prompt, timeout)
	if result.Matched {
		return nil
	}

	s.Close()
	return &session.ConnectionError{
		Session:  s.Name(),
		Endpoint: s.Endpoint(),
		Op:       "ready",
		Err:      fmt.Errorf("waiting for %q: %w (output: %q)", prompt, result.Err(), result.Before),
	}
}

// Stop sends the shutdown command on the control console and requires the
// console to reach end of stream within the shutdown window. The control
// session is closed either way.
func (l *Launcher) Stop(ctx context.Context, env *Environment) error {
	if env == nil || env.Control == nil {
		return nil
	}
	control := env.Control
	defer control.Close()

	if control.IsAlive() {
		if err := control.SendLine(env.ShutdownCommand); err != nil && control.IsAlive() {
			return &TeardownError{Mode: env.Mode, Err: err}
		}
	}

	timer := time.NewTimer(l.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-control.Done():
		slog.Info("emulator stopped",
			slog.String("mode", string(env.Mode)),
			slog.Duration("uptime", time.Since(env.StartedAt).Round(time.Millisecond)),
		)
		return nil
	case <-timer.C:
		return &TeardownError{
			Mode: env.Mode,
			Err:  fmt.Errorf("still running %s after %q", l.cfg.ShutdownTimeout, env.ShutdownCommand),
		}
	case <-ctx.Done():
		return &TeardownError{Mode: env.Mode, Err: ctx.Err()}
	}
}

// Preclean runs the mode's cleanup commands, for example stopping a
// container or emulator left over from an earlier run. Failures are logged
// and otherwise ignored.
func (l *Launcher) Preclean(ctx context.Context, mode Mode) {
	for _, raw := range l.launchConfig(mode).Preclean {
		command := l.Expand(raw, mode)

		cctx, cancel := context.WithTimeout(ctx, l.cfg.PrecleanTimeout)
		cmd := exec.CommandContext(cctx, "/bin/sh", "-c", command)
		cmd.Dir = l.cfg.RootDir
		out, err := cmd.CombinedOutput()
		cancel()

		if err != nil {
			slog.Debug("preclean command failed",
				slog.String("command", command),
				slog.String("error", err.Error()),
				slog.String("output", string(out)),
			)
			continue
		}
		slog.Debug("preclean command done", slog.String("command", command))
	}
}
