package environment

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acolita/qemu-e2e/internal/expect"
	"github.com/acolita/qemu-e2e/internal/session"
)

// monitorScript behaves like the QEMU monitor: it prints the prompt and
// exits when it reads "q".
const monitorScript = `echo 'QEMU 8.2 monitor'; printf '(qemu) '; while read cmd; do [ "$cmd" = q ] && exit 0; printf '(qemu) '; done`

// stubbornScript prints the prompt but never exits on its own.
const stubbornScript = `printf '(qemu) '; while read cmd; do printf '(qemu) '; done`

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.Local.Command = monitorScript
	cfg.Local.Timeout = 5 * time.Second
	cfg.Local.Preclean = nil
	cfg.Container.Preclean = nil
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"local", ModeLocal, false},
		{"container", ModeContainer, false},
		{"Docker", ModeContainer, false},
		{" local ", ModeLocal, false},
		{"vm", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	assert.True(t, ModeContainer.Containerized())
	assert.False(t, ModeLocal.Containerized())
}

func TestExpand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootDir = "/src/liumos"
	cfg.Vars = map[string]string{"APP_DIR": "/liumos/app"}
	l := NewLauncher(cfg)

	assert.Equal(t, "make -C /src/liumos run_docker", l.Expand(cfg.Container.Command, ModeContainer))
	assert.Equal(t, "/liumos/app local", l.Expand("${APP_DIR} ${MODE}", ModeLocal))
}

func TestExpandKeepsShellVariables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootDir = "/src/liumos"
	l := NewLauncher(cfg)

	assert.Equal(t, `cd /src/liumos && for f in *.img; do echo "$f"; done`,
		l.Expand(`cd ${ROOT_DIR} && for f in *.img; do echo "$f"; done`, ModeLocal))
	assert.Equal(t, monitorScript, l.Expand(monitorScript, ModeLocal))
	assert.Equal(t, "echo ${HOME} $1", l.Expand("echo ${HOME} $1", ModeLocal))
}

func TestLaunchCommandKeepsShellVariables(t *testing.T) {
	cfg := testConfig(t)
	cfg.Local.Command = `name=kept; printf "(qemu-$name) "; while read cmd; do [ "$cmd" = q ] && exit 0; done`
	cfg.Local.Prompt = "(qemu-kept)"
	l := NewLauncher(cfg)

	env, err := l.LaunchLocal(context.Background())
	require.NoError(t, err, "shell variables in the launch command reach the shell")
	require.NoError(t, l.Stop(context.Background(), env), "the monitor loop sees the shutdown command")
}

func TestDefaultsFilled(t *testing.T) {
	l := NewLauncher(Config{RootDir: "/r"})
	cfg := l.Config()

	assert.Equal(t, "make -C ${ROOT_DIR} run_for_e2e_test", cfg.Local.Command)
	assert.Equal(t, 60*time.Second, cfg.Container.Timeout)
	assert.Equal(t, "q", cfg.ShutdownCommand)
	assert.Equal(t, "localhost:1235", cfg.Guest.Address)
	assert.Equal(t, "(liumos)", cfg.Guest.Prompt)
	assert.Equal(t, "liumos-builder0", cfg.Helper.Container)
	assert.Equal(t, "(liumos-builder)", cfg.Helper.ContainerPrompt)
}

func TestLaunchAndStop(t *testing.T) {
	l := NewLauncher(testConfig(t))

	env, err := l.Launch(context.Background(), ModeLocal)
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, env.Mode)
	assert.True(t, env.Control.IsAlive())

	require.NoError(t, l.Stop(context.Background(), env))
	assert.False(t, env.Control.IsAlive())
}

func TestLaunchTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Local.Command = "echo booting; sleep 30"
	cfg.Local.Timeout = 200 * time.Millisecond
	l := NewLauncher(cfg)

	_, err := l.LaunchLocal(context.Background())

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.True(t, errors.Is(err, expect.ErrTimeout))
	assert.Contains(t, launchErr.Output, "booting")
	assert.Equal(t, ModeLocal, launchErr.Mode)
}

func TestLaunchProcessExits(t *testing.T) {
	cfg := testConfig(t)
	cfg.Local.Command = "echo 'make: *** No rule to make target'; exit 2"
	l := NewLauncher(cfg)

	_, err := l.LaunchLocal(context.Background())

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.ErrorIs(t, err, expect.ErrStreamClosed)
	assert.Contains(t, launchErr.Output, "No rule")
}

func TestLaunchUnknownMode(t *testing.T) {
	_, err := NewLauncher(testConfig(t)).Launch(context.Background(), Mode("vm"))

	var launchErr *LaunchError
	assert.ErrorAs(t, err, &launchErr)
}

func TestStopTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Local.Command = stubbornScript
	cfg.ShutdownTimeout = 200 * time.Millisecond
	l := NewLauncher(cfg)

	env, err := l.LaunchLocal(context.Background())
	require.NoError(t, err)

	err = l.Stop(context.Background(), env)
	var teardownErr *TeardownError
	require.ErrorAs(t, err, &teardownErr)
	assert.Equal(t, ModeLocal, teardownErr.Mode)
	assert.False(t, env.Control.IsAlive(), "control session is closed even when stop fails")
}

func TestStopAlreadyExited(t *testing.T) {
	l := NewLauncher(testConfig(t))

	env, err := l.LaunchLocal(context.Background())
	require.NoError(t, err)
	require.NoError(t, env.Control.SendLine("q"))
	select {
	case <-env.Control.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not exit on q")
	}

	assert.NoError(t, l.Stop(context.Background(), env))
	assert.NoError(t, l.Stop(context.Background(), nil))
}

func TestConnectGuestConsole(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte{255, 251, 1, 255, 251, 3})
		_, _ = conn.Write([]byte("liumOS booted\r\n(liumos) "))
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	cfg := testConfig(t)
	cfg.Guest.Address = ln.Addr().String()
	cfg.Guest.Timeout = 5 * time.Second
	l := NewLauncher(cfg)

	guest, err := l.ConnectGuestConsole(context.Background())
	require.NoError(t, err)
	defer guest.Close()

	assert.Equal(t, "guest", guest.Name())
	assert.True(t, guest.IsAlive())
}

func TestConnectGuestConsoleNoPrompt(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("SeaBIOS\r\n"))
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	cfg := testConfig(t)
	cfg.Guest.Address = ln.Addr().String()
	cfg.Guest.Timeout = 200 * time.Millisecond
	l := NewLauncher(cfg)

	_, err = l.ConnectGuestConsole(context.Background())

	var connErr *session.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "ready", connErr.Op)
	assert.ErrorIs(t, err, expect.ErrTimeout)
	assert.Contains(t, err.Error(), "SeaBIOS")
}

func TestConnectGuestConsoleRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(t)
	cfg.Guest.Address = addr
	_, err = NewLauncher(cfg).ConnectGuestConsole(context.Background())

	var connErr *session.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "open", connErr.Op)
}

func TestConnectLocalHelperShell(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not installed")
	}

	cfg := testConfig(t)
	cfg.Helper.Timeout = 5 * time.Second
	l := NewLauncher(cfg)

	helper, err := l.ConnectHelperShell(context.Background(), false)
	require.NoError(t, err)
	defer helper.Close()

	require.NoError(t, helper.SendLine("pwd"))
	r := expect.Await(context.Background(), helper, expect.Literal(filepath.Base(cfg.RootDir)), 5*time.Second)
	assert.True(t, r.Matched, "helper shell runs in the root directory")

	require.NoError(t, helper.SendLine("exit"))
	select {
	case <-helper.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("helper shell did not exit")
	}
}

func TestConnectHelperShellUnknownKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Helper.Kind = "telnet"

	_, err := NewLauncher(cfg).ConnectHelperShell(context.Background(), true)

	var connErr *session.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

type staticSecrets map[string]string

func (s staticSecrets) Get(user string) (string, error) {
	if v, ok := s[user]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestConnectSSHHelperRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testConfig(t)
	cfg.Helper.Kind = HelperSSH
	cfg.Helper.Timeout = time.Second
	cfg.Helper.SSH = session.SSHSpec{Host: "127.0.0.1", Port: port, User: "ci", InsecureHostKey: true}
	cfg.Helper.KeyringUser = "ci@127.0.0.1"

	l := NewLauncher(cfg, WithSecrets(staticSecrets{"ci@127.0.0.1": "secret"}))
	_, err = l.ConnectHelperShell(context.Background(), false)

	var connErr *session.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "helper", connErr.Session)
	assert.Contains(t, connErr.Endpoint, "ci@127.0.0.1")
}

func TestPreclean(t *testing.T) {
	cfg := testConfig(t)
	cfg.Local.Preclean = []string{
		"exit 1",
		"touch ${ROOT_DIR}/cleaned-${MODE}",
	}
	l := NewLauncher(cfg)

	l.Preclean(context.Background(), ModeLocal)

	_, err := os.Stat(filepath.Join(cfg.RootDir, "cleaned-local"))
	assert.NoError(t, err, "later commands run after a failing one")
}
