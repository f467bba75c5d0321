// Package docker builds docker command lines for the containerized helper
// shell.
package docker

import (
	"fmt"
	"sort"
	"strings"
)

// ExecOptions configures a docker exec invocation.
type ExecOptions struct {
	Container   string            // Container name or ID
	Command     []string          // Argv run inside the container (default: /bin/bash)
	User        string            // User to run as (optional)
	WorkDir     string            // Working directory (optional)
	Env         map[string]string // Environment variables (optional)
	Interactive bool              // Keep stdin open and allocate a TTY (-it)
}

// ExecArgs returns the argv for docker exec.
func ExecArgs(opts ExecOptions) []string {
	args := []string{"docker", "exec"}

	if opts.Interactive {
		args = append(args, "-it")
	}
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}

	// Sorted so the command line is stable in logs and tests.
	keys := make([]string, 0, len(opts.Env))
	for key := range opts.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, opts.Env[key]))
	}

	args = append(args, opts.Container)

	if len(opts.Command) == 0 {
		return append(args, "/bin/bash")
	}
	return append(args, opts.Command...)
}

// ExecCommand returns ExecArgs as a single shell-quoted string.
func ExecCommand(opts ExecOptions) string {
	args := ExecArgs(opts)
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Quote single-quotes s for a POSIX shell when it contains anything other
// than safe characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
