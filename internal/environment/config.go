package environment

import (
	"os"
	"time"

	"github.com/acolita/qemu-e2e/internal/session"
)

// LaunchConfig describes how to start the emulator in one mode.
type LaunchConfig struct {
	Command  string        // Shell command; ${ROOT_DIR} and ${MODE} are expanded
	Prompt   string        // Monitor prompt that marks a successful launch
	Timeout  time.Duration // How long to wait for Prompt
	Preclean []string      // Best-effort commands run before launching
}

// GuestConfig describes the guest serial console.
type GuestConfig struct {
	Address    string
	Telnet     bool
	Prompt     string
	Timeout    time.Duration
	LineEnding string
}

// Helper kinds.
const (
	HelperAuto   = "auto"   // Local shell or docker exec, following the mode
	HelperLocal  = "local"  // Interactive shell on the host
	HelperDocker = "docker" // docker exec into the builder container
	HelperSSH    = "ssh"    // Interactive shell on a remote host
)

// Upload is a file copied to an SSH helper before the shell opens.
type Upload struct {
	Local  string
	Remote string
}

// HelperConfig describes the host-side helper shell.
type HelperConfig struct {
	Kind    string
	Timeout time.Duration

	Shell       string // Local shell (default: bash)
	LocalPrompt string // PS1 given to the local shell

	Container       string
	ContainerShell  string
	ContainerPrompt string

	SSH         session.SSHSpec
	SSHPrompt   string // Regular expression for the remote prompt
	Uploads     []Upload
	KeyringUser string // Keyring entry holding the SSH password, if any
}

// Config holds everything the launcher needs.
type Config struct {
	RootDir         string
	Vars            map[string]string // Extra ${VAR} values for commands
	Local           LaunchConfig
	Container       LaunchConfig
	ShutdownCommand string
	ShutdownTimeout time.Duration
	PrecleanTimeout time.Duration
	Guest           GuestConfig
	Helper          HelperConfig
}

// DefaultConfig returns the liumOS setup: QEMU monitor on the launch
// command's terminal, guest serial on telnet port 1235 and the
// liumos-builder0 container as helper.
func DefaultConfig() Config {
	root, _ := os.Getwd()
	return Config{
		RootDir: root,
		Local: LaunchConfig{
			Command:  "make -C ${ROOT_DIR} run_for_e2e_test",
			Prompt:   "(qemu)",
			Timeout:  30 * time.Second,
			Preclean: []string{"killall qemu-system-x86_64"},
		},
		Container: LaunchConfig{
			Command:  "make -C ${ROOT_DIR} run_docker",
			Prompt:   "(qemu)",
			Timeout:  60 * time.Second,
			Preclean: []string{"make -C ${ROOT_DIR} stop_docker"},
		},
		ShutdownCommand: "q",
		ShutdownTimeout: 10 * time.Second,
		PrecleanTimeout: 30 * time.Second,
		Guest: GuestConfig{
			Address: "localhost:1235",
			Telnet:  true,
			Prompt:  "(liumos)",
			Timeout: 30 * time.Second,
		},
		Helper: HelperConfig{
			Kind:            HelperAuto,
			Timeout:         30 * time.Second,
			Shell:           "bash",
			LocalPrompt:     "(e2e-host) ",
			Container:       "liumos-builder0",
			ContainerShell:  "/bin/bash",
			ContainerPrompt: "(liumos-builder)",
			SSHPrompt:       `[$#>] ?$`,
		},
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.RootDir == "" {
		c.RootDir = d.RootDir
	}
	fillLaunch(&c.Local, d.Local)
	fillLaunch(&c.Container, d.Container)
	if c.ShutdownCommand == "" {
		c.ShutdownCommand = d.ShutdownCommand
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.PrecleanTimeout <= 0 {
		c.PrecleanTimeout = d.PrecleanTimeout
	}

	if c.Guest.Address == "" {
		c.Guest.Address = d.Guest.Address
	}
	if c.Guest.Prompt == "" {
		c.Guest.Prompt = d.Guest.Prompt
	}
	if c.Guest.Timeout <= 0 {
		c.Guest.Timeout = d.Guest.Timeout
	}

	h := &c.Helper
	if h.Kind == "" {
		h.Kind = d.Helper.Kind
	}
	if h.Timeout <= 0 {
		h.Timeout = d.Helper.Timeout
	}
	if h.Shell == "" {
		h.Shell = d.Helper.Shell
	}
	if h.LocalPrompt == "" {
		h.LocalPrompt = d.Helper.LocalPrompt
	}
	if h.Container == "" {
		h.Container = d.Helper.Container
	}
	if h.ContainerShell == "" {
		h.ContainerShell = d.Helper.ContainerShell
	}
	if h.ContainerPrompt == "" {
		h.ContainerPrompt = d.Helper.ContainerPrompt
	}
	if h.SSHPrompt == "" {
		h.SSHPrompt = d.Helper.SSHPrompt
	}
	return c
}

func fillLaunch(c *LaunchConfig, d LaunchConfig) {
	if c.Command == "" {
		c.Command = d.Command
	}
	if c.Prompt == "" {
		c.Prompt = d.Prompt
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}
