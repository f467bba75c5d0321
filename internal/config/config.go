// Package config handles configuration parsing for qemu-e2e.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acolita/qemu-e2e/internal/adapters/realfs"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/ports"
	"github.com/acolita/qemu-e2e/internal/session"
)

// FileName is the config file looked up in the working directory.
const FileName = "qemu-e2e.yaml"

// Environment variables that force local mode. The second one is the name
// the liumOS test scripts have always used.
const (
	EnvRunWithoutDocker       = "E2E_RUN_WITHOUT_DOCKER"
	EnvLegacyRunWithoutDocker = "LIUMOS_RUN_TEST_WITHOUT_DOCKER"
)

// DefaultConfigPath returns ./qemu-e2e.yaml when it exists, otherwise
// $XDG_CONFIG_HOME/qemu-e2e/config.yaml or ~/.config/qemu-e2e/config.yaml.
func DefaultConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "qemu-e2e", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Mode        string                       `yaml:"mode"`     // "local" or "container"
	RootDir     string                       `yaml:"root_dir"` // Source tree the launch commands run in
	Environment EnvironmentConfig            `yaml:"environment"`
	Guest       GuestConfig                  `yaml:"guest"`
	Helper      HelperConfig                 `yaml:"helper"`
	Runner      RunnerConfig                 `yaml:"runner"`
	Scenarios   ScenariosConfig              `yaml:"scenarios"`
	Vars        map[string]map[string]string `yaml:"vars"` // mode -> name -> value
	Logging     LoggingConfig                `yaml:"logging"`
	Recording   RecordingConfig              `yaml:"recording"`
}

// EnvironmentConfig defines how the emulator is started and stopped.
type EnvironmentConfig struct {
	Local           LaunchConfig  `yaml:"local"`
	Container       LaunchConfig  `yaml:"container"`
	ShutdownCommand string        `yaml:"shutdown_command"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PrecleanTimeout time.Duration `yaml:"preclean_timeout"`
}

// LaunchConfig defines the launch command of one mode.
type LaunchConfig struct {
	Command  string        `yaml:"command"`
	Prompt   string        `yaml:"prompt"`
	Timeout  time.Duration `yaml:"timeout"`
	Preclean []string      `yaml:"preclean"`
}

// GuestConfig defines the guest serial console.
type GuestConfig struct {
	Address    string        `yaml:"address"`
	Telnet     bool          `yaml:"telnet"`
	Prompt     string        `yaml:"prompt"`
	Timeout    time.Duration `yaml:"timeout"`
	LineEnding string        `yaml:"line_ending"`
}

// HelperConfig defines the host-side helper shell.
type HelperConfig struct {
	Kind            string         `yaml:"kind"` // "auto", "local", "docker" or "ssh"
	Timeout         time.Duration  `yaml:"timeout"`
	Shell           string         `yaml:"shell"`
	LocalPrompt     string         `yaml:"local_prompt"`
	Container       string         `yaml:"container"`
	ContainerShell  string         `yaml:"container_shell"`
	ContainerPrompt string         `yaml:"container_prompt"`
	SSH             SSHConfig      `yaml:"ssh"`
	Uploads         []UploadConfig `yaml:"uploads"`
}

// SSHConfig defines a remote helper host.
type SSHConfig struct {
	Host            string            `yaml:"host"`
	Port            int               `yaml:"port"`
	User            string            `yaml:"user"`
	KeyPath         string            `yaml:"key_path"`
	PassphraseEnv   string            `yaml:"passphrase_env"` // env var containing key passphrase
	PasswordEnv     string            `yaml:"password_env"`   // env var containing SSH password
	UseAgent        bool              `yaml:"use_agent"`
	UseKeyring      bool              `yaml:"use_keyring"` // Read the password from the OS keyring
	KnownHosts      string            `yaml:"known_hosts"`
	InsecureHostKey bool              `yaml:"insecure_host_key"`
	Prompt          string            `yaml:"prompt"` // Regular expression
	Env             map[string]string `yaml:"env"`
}

// UploadConfig is a file copied to an SSH helper before the shell opens.
type UploadConfig struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

// RunnerConfig defines run behavior.
type RunnerConfig struct {
	Settle        time.Duration `yaml:"settle"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	ProbeVersions bool          `yaml:"probe_versions"`
	Preclean      bool          `yaml:"preclean"`
}

// ScenariosConfig defines where scenario files are found.
type ScenariosConfig struct {
	Paths    []string `yaml:"paths"`    // Glob patterns, ** allowed
	Builtins bool     `yaml:"builtins"` // Include the built-in scenarios
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Format   string `yaml:"format"`   // "text" or "json"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// RecordingConfig defines console recording settings.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"` // record every console as asciicast
	Path    string `yaml:"path"`    // directory to store recordings
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	env := environment.DefaultConfig()

	return &Config{
		Mode: string(environment.ModeContainer),
		Environment: EnvironmentConfig{
			Local:           launchConfigFrom(env.Local),
			Container:       launchConfigFrom(env.Container),
			ShutdownCommand: env.ShutdownCommand,
			ShutdownTimeout: env.ShutdownTimeout,
			PrecleanTimeout: env.PrecleanTimeout,
		},
		Guest: GuestConfig{
			Address: env.Guest.Address,
			Telnet:  env.Guest.Telnet,
			Prompt:  env.Guest.Prompt,
			Timeout: env.Guest.Timeout,
		},
		Helper: HelperConfig{
			Kind:            env.Helper.Kind,
			Timeout:         env.Helper.Timeout,
			Shell:           env.Helper.Shell,
			LocalPrompt:     env.Helper.LocalPrompt,
			Container:       env.Helper.Container,
			ContainerShell:  env.Helper.ContainerShell,
			ContainerPrompt: env.Helper.ContainerPrompt,
			SSH: SSHConfig{
				Port:   22,
				Prompt: env.Helper.SSHPrompt,
			},
		},
		Runner: RunnerConfig{
			Settle:      10 * time.Second,
			StepTimeout: 5 * time.Second,
			Preclean:    true,
		},
		Scenarios: ScenariosConfig{
			Paths:    []string{"e2e/**/*.{yaml,yml,toml}"},
			Builtins: true,
		},
		Vars: map[string]map[string]string{
			string(environment.ModeLocal):     {"APP_DIR": "app"},
			string(environment.ModeContainer): {"APP_DIR": "/liumos/app"},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Sanitize: true,
		},
		Recording: RecordingConfig{
			Path: "e2e-recordings",
		},
	}
}

func launchConfigFrom(lc environment.LaunchConfig) LaunchConfig {
	return LaunchConfig{
		Command:  lc.Command,
		Prompt:   lc.Prompt,
		Timeout:  lc.Timeout,
		Preclean: append([]string(nil), lc.Preclean...),
	}
}

// Load loads configuration from a YAML file on top of the defaults. An empty
// path or a missing file yields the defaults.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var fs ports.FileSystem = realfs.New()
	if len(fsys) > 0 && fsys[0] != nil {
		fs = fsys[0]
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv switches to local mode when E2E_RUN_WITHOUT_DOCKER=1 (or the
// legacy LIUMOS_RUN_TEST_WITHOUT_DOCKER=1) is set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if getenv(EnvRunWithoutDocker) == "1" || getenv(EnvLegacyRunWithoutDocker) == "1" {
		c.Mode = string(environment.ModeLocal)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := environment.ParseMode(c.Mode); err != nil {
		return err
	}

	durations := map[string]time.Duration{
		"environment.local.timeout":     c.Environment.Local.Timeout,
		"environment.container.timeout": c.Environment.Container.Timeout,
		"environment.shutdown_timeout":  c.Environment.ShutdownTimeout,
		"guest.timeout":                 c.Guest.Timeout,
		"helper.timeout":                c.Helper.Timeout,
		"runner.settle":                 c.Runner.Settle,
		"runner.step_timeout":           c.Runner.StepTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	switch c.Helper.Kind {
	case "", environment.HelperAuto, environment.HelperLocal, environment.HelperDocker:
	case environment.HelperSSH:
		if c.Helper.SSH.Host == "" || c.Helper.SSH.User == "" {
			return errors.New("helper.ssh.host and helper.ssh.user are required for the ssh helper")
		}
	default:
		return fmt.Errorf("unknown helper.kind %q", c.Helper.Kind)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q (want text or json)", c.Logging.Format)
	}

	return nil
}

// ModeValue returns the configured launch mode.
func (c *Config) ModeValue() (environment.Mode, error) {
	return environment.ParseMode(c.Mode)
}

// VarsFor returns the ${VAR} values for mode, including ROOT_DIR and MODE.
func (c *Config) VarsFor(mode environment.Mode) map[string]string {
	vars := map[string]string{
		"ROOT_DIR": c.RootDirAbs(),
		"MODE":     string(mode),
	}
	for k, v := range c.Vars[string(mode)] {
		vars[k] = v
	}
	return vars
}

// RootDirAbs returns the root directory as an absolute path, defaulting to
// the working directory.
func (c *Config) RootDirAbs() string {
	root := c.RootDir
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}

// EnvironmentConfig converts the configuration for the launcher in mode.
// Passwords and passphrases are read from the environment variables named
// in the config.
func (c *Config) EnvironmentConfig(mode environment.Mode) environment.Config {
	sshCfg := c.Helper.SSH
	keyringUser := ""
	if sshCfg.UseKeyring {
		keyringUser = sshCfg.User + "@" + sshCfg.Host
	}

	uploads := make([]environment.Upload, 0, len(c.Helper.Uploads))
	for _, u := range c.Helper.Uploads {
		uploads = append(uploads, environment.Upload{Local: u.Local, Remote: u.Remote})
	}

	return environment.Config{
		RootDir: c.RootDirAbs(),
		Vars:    c.VarsFor(mode),
		Local: environment.LaunchConfig{
			Command:  c.Environment.Local.Command,
			Prompt:   c.Environment.Local.Prompt,
			Timeout:  c.Environment.Local.Timeout,
			Preclean: c.Environment.Local.Preclean,
		},
		Container: environment.LaunchConfig{
			Command:  c.Environment.Container.Command,
			Prompt:   c.Environment.Container.Prompt,
			Timeout:  c.Environment.Container.Timeout,
			Preclean: c.Environment.Container.Preclean,
		},
		ShutdownCommand: c.Environment.ShutdownCommand,
		ShutdownTimeout: c.Environment.ShutdownTimeout,
		PrecleanTimeout: c.Environment.PrecleanTimeout,
		Guest: environment.GuestConfig{
			Address:    c.Guest.Address,
			Telnet:     c.Guest.Telnet,
			Prompt:     c.Guest.Prompt,
			Timeout:    c.Guest.Timeout,
			LineEnding: c.Guest.LineEnding,
		},
		Helper: environment.HelperConfig{
			Kind:            c.Helper.Kind,
			Timeout:         c.Helper.Timeout,
			Shell:           c.Helper.Shell,
			LocalPrompt:     c.Helper.LocalPrompt,
			Container:       c.Helper.Container,
			ContainerShell:  c.Helper.ContainerShell,
			ContainerPrompt: c.Helper.ContainerPrompt,
			SSH: session.SSHSpec{
				Host:            sshCfg.Host,
				Port:            sshCfg.Port,
				User:            sshCfg.User,
				KeyPath:         sshCfg.KeyPath,
				KeyPassphrase:   envValue(sshCfg.PassphraseEnv),
				Password:        envValue(sshCfg.PasswordEnv),
				UseAgent:        sshCfg.UseAgent,
				KnownHostsPath:  sshCfg.KnownHosts,
				InsecureHostKey: sshCfg.InsecureHostKey,
				Env:             sshCfg.Env,
			},
			SSHPrompt:   sshCfg.Prompt,
			Uploads:     uploads,
			KeyringUser: keyringUser,
		},
	}
}

func envValue(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Save writes the configuration to a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var fs ports.FileSystem = realfs.New()
	if len(fsys) > 0 && fsys[0] != nil {
		fs = fsys[0]
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
