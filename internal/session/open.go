package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/acolita/qemu-e2e/internal/adapters/realnet"
	"github.com/acolita/qemu-e2e/internal/ports"
	"github.com/acolita/qemu-e2e/internal/pty"
	"github.com/acolita/qemu-e2e/internal/ssh"
)

// Kind selects the transport behind a session.
type Kind string

const (
	KindExec Kind = "exec" // Shell command under a PTY
	KindTCP  Kind = "tcp"  // Line console on a TCP socket
	KindSSH  Kind = "ssh"  // Remote PTY shell
)

const defaultDialTimeout = 10 * time.Second

// Spec describes how to reach a console.
type Spec struct {
	Name string
	Kind Kind

	// exec
	Command string   // Run as `/bin/sh -c Command`
	Args    []string // Exec directly instead of Command
	Dir     string
	Env     []string

	// tcp
	Address string // host:port
	Telnet  bool   // Strip telnet option negotiation

	// ssh
	SSH SSHSpec

	LineEnding  string        // Appended by SendLine (default "\n")
	DialTimeout time.Duration // tcp and ssh connect timeout (default 10s)
}

// SSHSpec holds connection settings for a remote helper shell.
type SSHSpec struct {
	Host            string
	Port            int
	User            string
	KeyPath         string
	KeyPassphrase   string
	Password        string
	UseAgent        bool
	KnownHostsPath  string
	InsecureHostKey bool
	Env             map[string]string
}

// Endpoint returns a human-readable description of the target.
func (s Spec) Endpoint() string {
	switch s.Kind {
	case KindExec:
		if len(s.Args) > 0 {
			return strings.Join(s.Args, " ")
		}
		return s.Command
	case KindTCP:
		return s.Address
	case KindSSH:
		port := s.SSH.Port
		if port == 0 {
			port = 22
		}
		return s.SSH.User + "@" + net.JoinHostPort(s.SSH.Host, strconv.Itoa(port))
	}
	return string(s.Kind)
}

type openConfig struct {
	dialer    ports.NetworkDialer
	sshDialer ports.SSHDialer
	opts      []Option
}

// OpenOption customizes how Open establishes the transport.
type OpenOption func(*openConfig)

// WithDialer replaces the TCP dialer.
func WithDialer(d ports.NetworkDialer) OpenOption {
	return func(c *openConfig) {
		c.dialer = d
	}
}

// WithSSHDialer replaces the SSH dialer.
func WithSSHDialer(d ports.SSHDialer) OpenOption {
	return func(c *openConfig) {
		c.sshDialer = d
	}
}

// WithSessionOptions passes options through to New.
func WithSessionOptions(opts ...Option) OpenOption {
	return func(c *openConfig) {
		c.opts = append(c.opts, opts...)
	}
}

// Open establishes the transport described by spec and returns a live
// session. Any failure is a *ConnectionError.
func Open(ctx context.Context, spec Spec, opts ...OpenOption) (*Session, error) {
	cfg := &openConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if spec.DialTimeout <= 0 {
		spec.DialTimeout = defaultDialTimeout
	}

	conn, err := dial(ctx, spec, cfg)
	if err != nil {
		return nil, &ConnectionError{Session: spec.Name, Endpoint: spec.Endpoint(), Op: "open", Err: err}
	}

	sessionOpts := append([]Option{WithLineEnding(spec.LineEnding)}, cfg.opts...)
	return New(spec.Name, spec.Endpoint(), conn, sessionOpts...), nil
}

func dial(ctx context.Context, spec Spec, cfg *openConfig) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case KindExec:
		if spec.Command == "" && len(spec.Args) == 0 {
			return nil, fmt.Errorf("no command given")
		}
		proc, err := pty.Start(pty.Options{
			Command: spec.Command,
			Args:    spec.Args,
			Dir:     spec.Dir,
			Env:     spec.Env,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("started console process",
			slog.String("session", spec.Name),
			slog.Int("pid", proc.Pid()),
		)
		return proc, nil

	case KindTCP:
		if spec.Address == "" {
			return nil, fmt.Errorf("no address given")
		}
		dialer := cfg.dialer
		if dialer == nil {
			dialer = realnet.NewDialer(spec.DialTimeout)
		}
		dialCtx, cancel := context.WithTimeout(ctx, spec.DialTimeout)
		defer cancel()
		conn, err := dialer.DialContext(dialCtx, "tcp", spec.Address)
		if err != nil {
			return nil, err
		}
		if spec.Telnet {
			return newTelnetConn(conn), nil
		}
		return conn, nil

	case KindSSH:
		client, err := DialSSH(spec.SSH, spec.DialTimeout, cfg.sshDialer)
		if err != nil {
			return nil, err
		}
		shell, err := ssh.OpenShell(client, ssh.ShellOptions{Env: spec.SSH.Env})
		if err != nil {
			client.Close()
			return nil, err
		}
		return shell, nil
	}

	return nil, fmt.Errorf("unknown session kind %q", spec.Kind)
}

// DialSSH connects to an SSH helper host. The caller owns the returned
// client; it is typically handed to ssh.OpenShell after any file uploads.
func DialSSH(spec SSHSpec, timeout time.Duration, dialer ports.SSHDialer) (*ssh.Client, error) {
	auth, err := ssh.BuildAuthMethods(ssh.AuthConfig{
		KeyPath:       spec.KeyPath,
		KeyPassphrase: spec.KeyPassphrase,
		UseAgent:      spec.UseAgent,
		Password:      spec.Password,
	})
	if err != nil {
		return nil, err
	}

	hostKeys, err := ssh.BuildHostKeyCallback(spec.KnownHostsPath, spec.InsecureHostKey)
	if err != nil {
		return nil, err
	}

	client, err := ssh.NewClient(ssh.ClientOptions{
		Host:            spec.Host,
		Port:            spec.Port,
		User:            spec.User,
		AuthMethods:     auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
		Dialer:          dialer,
	})
	if err != nil {
		return nil, err
	}

	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}
