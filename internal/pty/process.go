// Package pty runs commands under a pseudo-terminal, so that interactive
// programs (make, docker exec -it, bash) behave as they do on a terminal.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// drainGrace is how long the master side is kept open after the process
// exits, so output still in flight reaches the reader before EOF.
const drainGrace = 500 * time.Millisecond

// reapTimeout bounds how long Close waits for a killed process to be reaped.
const reapTimeout = 2 * time.Second

// Options configures a process started under a PTY.
type Options struct {
	Command string   // Shell command line, run as `Shell -c Command`
	Args    []string // Argv to exec directly; takes precedence over Command
	Shell   string   // Shell for Command (default: /bin/sh)
	Dir     string   // Working directory
	Env     []string // Additional environment variables
	Term    string   // Terminal type (default: dumb)
	Rows    uint16   // Terminal rows (default: 24)
	Cols    uint16   // Terminal columns (default: 200)
}

// Process is a child process attached to the slave side of a PTY.
type Process struct {
	cmd *exec.Cmd
	pty *os.File

	exited  chan struct{}
	closed  chan struct{}
	waitErr error

	closeMaster sync.Once
	closeOnce   sync.Once
}

// Start launches the process described by opts.
func Start(opts Options) (*Process, error) {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
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

	var cmd *exec.Cmd
	switch {
	case len(opts.Args) > 0:
		cmd = exec.Command(opts.Args[0], opts.Args[1:]...)
	case opts.Command != "":
		cmd = exec.Command(opts.Shell, "-c", opts.Command)
	default:
		return nil, errors.New("no command given")
	}

	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	cmd.Env = append(os.Environ(), fmt.Sprintf("TERM=%s", opts.Term))
	cmd.Env = append(cmd.Env, opts.Env...)

	// pty.Start puts the child in its own session, so its pid is also the
	// process group id used by Close.
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		pty:    ptmx,
		exited: make(chan struct{}),
		closed: make(chan struct{}),
	}
	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)

	// Grandchildren may keep the slave open; closing the master after a
	// short grace period turns process exit into EOF for the reader.
	select {
	case <-time.After(drainGrace):
	case <-p.closed:
	}
	p.closeMaster.Do(func() { _ = p.pty.Close() })
}

// Read reads process output.
func (p *Process) Read(b []byte) (int, error) {
	return p.pty.Read(b)
}

// Write writes to the process input.
func (p *Process) Write(b []byte) (int, error) {
	return p.pty.Write(b)
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// ExitErr returns the result of waiting for the process, or nil while it is
// still running.
func (p *Process) ExitErr() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Close closes the PTY and kills the whole process group. It is idempotent
// and returns only after the process is reaped or reapTimeout has passed.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.closeMaster.Do(func() { _ = p.pty.Close() })

		select {
		case <-p.exited:
			return
		default:
		}

		pid := p.cmd.Process.Pid
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			_ = p.cmd.Process.Kill()
		}

		select {
		case <-p.exited:
		case <-time.After(reapTimeout):
		}
	})
	return nil
}

// ShellEnv returns environment variables that give an interactive shell a
// fixed, recognizable prompt and no decoration.
func ShellEnv(shell, prompt string) []string {
	env := []string{
		"NO_COLOR=1",
	}

	switch filepath.Base(shell) {
	case "zsh":
		env = append(env,
			"PROMPT="+prompt,
			"PS1="+prompt,
			"PROMPT_COMMAND=",
			"precmd_functions=",
			"RPROMPT=",
		)
	default:
		env = append(env,
			"PS1="+prompt,
			"PROMPT_COMMAND=",
		)
	}

	return env
}

// ShellArgs returns the argv for an interactive shell that does not read rc
// files, so the prompt from ShellEnv is not overridden.
func ShellArgs(shell string) []string {
	switch filepath.Base(shell) {
	case "bash":
		return []string{shell, "--norc", "--noprofile", "-i"}
	case "zsh":
		return []string{shell, "-f", "-i"}
	default:
		return []string{shell, "-i"}
	}
}
