package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/acolita/qemu-e2e/internal/docker"
	"github.com/acolita/qemu-e2e/internal/expect"
	"github.com/acolita/qemu-e2e/internal/pty"
	"github.com/acolita/qemu-e2e/internal/session"
	"github.com/acolita/qemu-e2e/internal/shellvars"
	"github.com/acolita/qemu-e2e/internal/ssh"
)

// ConnectHelperShell opens the host-side helper shell. With the auto kind a
// containerized run gets a shell in the builder container and a local run a
// shell on the host, started in the root directory.
func (l *Launcher) ConnectHelperShell(ctx context.Context, containerized bool, opts ...session.Option) (*session.Session, error) {
	h := l.cfg.Helper

	kind := h.Kind
	if kind == HelperAuto {
		kind = HelperLocal
		if containerized {
			kind = HelperDocker
		}
	}

	var (
		s      *session.Session
		prompt expect.Pattern
		err    error
	)

	switch kind {
	case HelperLocal:
		s, err = l.open(ctx, session.Spec{
			Name: "helper",
			Kind: session.KindExec,
			Args: pty.ShellArgs(h.Shell),
			Env:  pty.ShellEnv(h.Shell, h.LocalPrompt),
			Dir:  l.cfg.RootDir,
		}, session.WithSessionOptions(opts...))
		prompt = expect.Literal(h.LocalPrompt)

	case HelperDocker:
		s, err = l.open(ctx, session.Spec{
			Name: "helper",
			Kind: session.KindExec,
			Args: docker.ExecArgs(docker.ExecOptions{
				Container:   h.Container,
				Command:     []string{h.ContainerShell},
				Interactive: true,
			}),
		}, session.WithSessionOptions(opts...))
		prompt = expect.Literal(h.ContainerPrompt)

	case HelperSSH:
		s, err = l.connectSSHHelper(ctx, opts)
		if err == nil {
			prompt, err = expect.Regex(h.SSHPrompt)
			if err != nil {
				s.Close()
			}
		}

	default:
		return nil, &session.ConnectionError{Session: "helper", Endpoint: kind, Op: "open",
			Err: fmt.Errorf("unknown helper kind %q", kind)}
	}
	if err != nil {
		return nil, err
	}

	if err := awaitReady(ctx, s, prompt, h.Timeout); err != nil {
		return nil, err
	}

	slog.Info("helper shell ready",
		slog.String("kind", kind),
		slog.String("endpoint", s.Endpoint()),
	)
	return s, nil
}

// connectSSHHelper dials the helper host, uploads the configured files and
// opens an interactive shell on the same connection.
func (l *Launcher) connectSSHHelper(ctx context.Context, opts []session.Option) (*session.Session, error) {
	h := l.cfg.Helper
	spec := session.Spec{Name: "helper", Kind: session.KindSSH, SSH: h.SSH}
	fail := func(err error) error {
		return &session.ConnectionError{Session: "helper", Endpoint: spec.Endpoint(), Op: "open", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	if spec.SSH.Password == "" && h.KeyringUser != "" && l.secrets != nil {
		password, err := l.secrets.Get(h.KeyringUser)
		if err != nil {
			slog.Warn("no stored helper password",
				slog.String("user", h.KeyringUser),
				slog.String("error", err.Error()),
			)
		} else {
			spec.SSH.Password = password
		}
	}

	client, err := session.DialSSH(spec.SSH, l.cfg.Helper.Timeout, nil)
	if err != nil {
		return nil, fail(err)
	}

	if len(h.Uploads) > 0 {
		if err := l.upload(client, h.Uploads); err != nil {
			client.Close()
			return nil, fail(err)
		}
	}

	shell, err := ssh.OpenShell(client, ssh.ShellOptions{Env: h.SSH.Env})
	if err != nil {
		client.Close()
		return nil, fail(err)
	}

	return session.New("helper", spec.Endpoint(), shell, opts...), nil
}

func (l *Launcher) upload(client *ssh.Client, uploads []Upload) error {
	sftpClient, err := client.SFTPClient()
	if err != nil {
		return fmt.Errorf("sftp: %w", err)
	}

	for _, u := range uploads {
		// Upload paths never pass through a shell, so the process
		// environment fills in what the harness does not define.
		local := shellvars.Expand(l.Expand(u.Local, ""), os.LookupEnv)
		n, err := sftpClient.Upload(local, u.Remote)
		if err != nil {
			return fmt.Errorf("upload %s: %w", local, err)
		}
		slog.Info("uploaded helper file",
			slog.String("local", local),
			slog.String("remote", u.Remote),
			slog.Int64("bytes", n),
		)
	}
	return nil
}
