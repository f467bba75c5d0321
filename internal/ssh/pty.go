package ssh

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Shell is an interactive login shell on a PTY over SSH.
type Shell struct {
	client  *Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	closeOnce sync.Once
}

// ShellOptions configures the remote PTY.
type ShellOptions struct {
	Term string            // Terminal type (default: dumb)
	Rows uint32            // Terminal rows (default: 24)
	Cols uint32            // Terminal columns (default: 200)
	Env  map[string]string // Environment variables; servers may refuse them
}

// OpenShell starts an interactive shell on client. The returned Shell owns
// client and closes it with itself.
func OpenShell(client *Client, opts ShellOptions) (*Shell, error) {
	if !client.IsConnected() {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	if opts.Term == "" {
		opts.Term = "dumb"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 200
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}

	for key, value := range opts.Env {
		_ = session.Setenv(key, value)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, int(opts.Rows), int(opts.Cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &Shell{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

// Read reads shell output.
func (s *Shell) Read(b []byte) (int, error) {
	return s.stdout.Read(b)
}

// Write writes shell input.
func (s *Shell) Write(b []byte) (int, error) {
	return s.stdin.Write(b)
}

// Close closes the session and the underlying connection. It is idempotent.
func (s *Shell) Close() error {
	s.closeOnce.Do(func() {
		_ = s.session.Close()
		_ = s.client.Close()
	})
	return nil
}
