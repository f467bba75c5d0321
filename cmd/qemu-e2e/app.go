package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/acolita/qemu-e2e/internal/adapters/realclock"
	"github.com/acolita/qemu-e2e/internal/adapters/realfs"
	"github.com/acolita/qemu-e2e/internal/config"
	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/logging"
	"github.com/acolita/qemu-e2e/internal/ports"
	"github.com/acolita/qemu-e2e/internal/recording"
	"github.com/acolita/qemu-e2e/internal/runner"
	"github.com/acolita/qemu-e2e/internal/scenario"
)

// errScenariosFailed is returned when at least one scenario failed. Its
// verdicts have already been printed, so main only sets the exit code.
var errScenariosFailed = errors.New("scenarios failed")

// credentialStore is the part of *security.Store the CLI uses.
type credentialStore interface {
	environment.SecretStore
	Set(user, password string) error
	Delete(user string) error
}

// app carries the global flags and the collaborators of every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	mode       string
	logFormat  string
	debug      bool

	cfg      *config.Config
	getenv   func(string) string
	prompter ports.Prompter
	secrets  credentialStore

	// newLauncher builds the environment launcher; replaced in tests.
	newLauncher func(cfg environment.Config, opts ...environment.Option) runner.Launcher
}

func newApp(stdout, stderr io.Writer, prompter ports.Prompter, secrets credentialStore) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		getenv:   os.Getenv,
		prompter: prompter,
		secrets:  secrets,
		newLauncher: func(cfg environment.Config, opts ...environment.Option) runner.Launcher {
			return environment.NewLauncher(cfg, opts...)
		},
	}
}

// load reads the configuration, applies the environment toggle and the
// command line overrides, and installs the logger. The --mode flag wins over
// E2E_RUN_WITHOUT_DOCKER, which wins over the file.
func (a *app) load() error {
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(a.getenv)

	if a.mode != "" {
		cfg.Mode = a.mode
	}
	if a.debug {
		cfg.Logging.Level = "debug"
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Sanitize)
	slog.Debug("configuration loaded",
		slog.String("path", path),
		slog.String("mode", cfg.Mode),
		slog.String("root_dir", cfg.RootDirAbs()),
	)

	a.cfg = cfg
	return nil
}

// catalog returns the built-in scenarios plus every scenario file matched
// by the configured globs. Files override built-ins of the same name.
func (a *app) catalog() (*scenario.Catalog, error) {
	var all []scenario.Scenario
	if a.cfg.Scenarios.Builtins {
		all = append(all, scenario.Builtins()...)
	}

	loaded, err := scenario.LoadAll(a.cfg.Scenarios.Paths)
	if err != nil {
		return nil, err
	}
	all = append(all, loaded...)

	return scenario.NewCatalog(all...), nil
}

// newRunner builds a runner for mode. Progress goes to out and step verdicts
// to rep.
func (a *app) newRunner(mode environment.Mode, out io.Writer, rep driver.Reporter) *runner.Runner {
	launcher := a.newLauncher(a.cfg.EnvironmentConfig(mode), environment.WithSecrets(a.secrets))

	opts := runner.Options{
		Mode:          mode,
		Settle:        a.cfg.Runner.Settle,
		StepTimeout:   a.cfg.Runner.StepTimeout,
		ProbeVersions: a.cfg.Runner.ProbeVersions,
		Preclean:      a.cfg.Runner.Preclean,
		Vars:          a.cfg.VarsFor(mode),
		Output:        out,
	}

	var options []runner.Option
	if a.cfg.Recording.Enabled {
		options = append(options, runner.WithRecordings(
			recording.NewManager(a.cfg.Recording.Path, true, realfs.New(), realclock.New()),
		))
	}

	return runner.New(launcher, driver.New(rep), opts, options...)
}
