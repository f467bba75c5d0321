package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/runner"
	"github.com/acolita/qemu-e2e/internal/security"
	"github.com/acolita/qemu-e2e/internal/session"
	"github.com/acolita/qemu-e2e/internal/testing/fakes/fakedialog"
)

// failingLauncher never gets an emulator up.
type failingLauncher struct {
	cfg       environment.Config
	precleans int
	launches  []environment.Mode
}

func (l *failingLauncher) Preclean(ctx context.Context, mode environment.Mode) {
	l.precleans++
}

func (l *failingLauncher) Launch(ctx context.Context, mode environment.Mode, opts ...session.Option) (*environment.Environment, error) {
	l.launches = append(l.launches, mode)
	return nil, &environment.LaunchError{Mode: mode, Command: "make run_for_e2e_test", Err: errors.New("no emulator here")}
}

func (l *failingLauncher) ConnectGuestConsole(ctx context.Context, opts ...session.Option) (*session.Session, error) {
	return nil, errors.New("unexpected call")
}

func (l *failingLauncher) ConnectHelperShell(ctx context.Context, containerized bool, opts ...session.Option) (*session.Session, error) {
	return nil, errors.New("unexpected call")
}

func (l *failingLauncher) Stop(ctx context.Context, env *environment.Environment) error {
	return errors.New("unexpected call")
}

type harness struct {
	app      *app
	stdout   *bytes.Buffer
	prompter *fakedialog.Prompter
	launcher *failingLauncher
	store    *security.Store
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	keyring.MockInit()

	h := &harness{
		stdout:   &bytes.Buffer{},
		prompter: fakedialog.New(),
		launcher: &failingLauncher{},
		store:    security.NewStore(),
		dir:      t.TempDir(),
	}
	h.app = newApp(h.stdout, &bytes.Buffer{}, h.prompter, h.store)
	h.app.getenv = func(string) string { return "" }
	h.app.newLauncher = func(cfg environment.Config, opts ...environment.Option) runner.Launcher {
		h.launcher.cfg = cfg
		return h.launcher
	}
	return h
}

func (h *harness) execute(args ...string) error {
	cmd := newRootCommand(h.app)
	cmd.SetOut(h.stdout)
	cmd.SetErr(h.stdout)
	cmd.SetArgs(append([]string{"--config", filepath.Join(h.dir, "missing.yaml")}, args...))
	return cmd.ExecuteContext(context.Background())
}

func (h *harness) writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestList_ShowsBuiltins(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("list"))

	out := h.stdout.String()
	assert.Contains(t, out, "NAME")
	for _, name := range []string{"ip_assignment", "ping_to_router", "udp_client", "udp_server", "http_client"} {
		assert.Contains(t, out, name)
	}
}

func TestList_JSON(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("list", "--json"))
	assert.Contains(t, h.stdout.String(), `"name": "ip_assignment"`)
}

func TestRun_RequiresSelection(t *testing.T) {
	h := newHarness(t)

	err := h.execute("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name at least one scenario")
	assert.Empty(t, h.launcher.launches)
}

func TestRun_UnknownScenario(t *testing.T) {
	h := newHarness(t)

	err := h.execute("run", "no_such_test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown scenario "no_such_test"`)
}

func TestRun_LaunchFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	path := h.writeScenario(t, "hello.yaml", "name: hello\nsteps:\n  - on: guest\n    send: hello\n    expect: hello\n")

	err := h.execute("--mode", "local", "run", "--file", path)
	require.ErrorIs(t, err, errScenariosFailed)

	out := h.stdout.String()
	assert.Contains(t, out, "---- Running hello")
	assert.Contains(t, out, "no emulator here")
	assert.Equal(t, []environment.Mode{environment.ModeLocal}, h.launcher.launches)
	assert.Equal(t, 1, h.launcher.precleans)
	assert.Equal(t, "app", h.launcher.cfg.Vars["APP_DIR"])
}

func TestRun_ContainerModeVars(t *testing.T) {
	h := newHarness(t)

	err := h.execute("--mode", "container", "run", "ip_assignment")
	require.ErrorIs(t, err, errScenariosFailed)
	assert.Equal(t, []environment.Mode{environment.ModeContainer}, h.launcher.launches)
	assert.Equal(t, "/liumos/app", h.launcher.cfg.Vars["APP_DIR"])
}

func TestRun_EnvToggleSelectsLocal(t *testing.T) {
	h := newHarness(t)
	h.app.getenv = func(k string) string {
		if k == "E2E_RUN_WITHOUT_DOCKER" {
			return "1"
		}
		return ""
	}

	_ = h.execute("run", "ip_assignment")
	assert.Equal(t, []environment.Mode{environment.ModeLocal}, h.launcher.launches)
}

func TestRun_AllWithSummaryAndFailFast(t *testing.T) {
	h := newHarness(t)

	err := h.execute("--mode", "local", "run", "--all", "--fail-fast")
	require.ErrorIs(t, err, errScenariosFailed)
	assert.Len(t, h.launcher.launches, 1)

	out := h.stdout.String()
	assert.Contains(t, out, "==== Summary (local mode)")
	assert.Contains(t, out, "not run")
	assert.Contains(t, out, "0/5 passed")
}

func TestRun_InvalidMode(t *testing.T) {
	h := newHarness(t)

	err := h.execute("--mode", "cloud", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestPick_NothingSelected(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("pick"))
	assert.Contains(t, h.stdout.String(), "Nothing selected.")
	assert.Contains(t, h.prompter.Offered, "udp_server")
	assert.Empty(t, h.launcher.launches)
}

func TestPick_RunsSelection(t *testing.T) {
	h := newHarness(t)
	h.prompter.Picked = []string{"udp_client", "udp_server"}

	err := h.execute("--mode", "local", "pick")
	require.ErrorIs(t, err, errScenariosFailed)
	assert.Len(t, h.launcher.launches, 2)
}

func TestPick_DialogError(t *testing.T) {
	h := newHarness(t)
	h.prompter.Err = errors.New("aborted")

	err := h.execute("pick")
	require.EqualError(t, err, "aborted")
}

func TestKeyringSet(t *testing.T) {
	h := newHarness(t)
	h.prompter.Secret = "s3cret"

	require.NoError(t, h.execute("keyring", "set", "ci@builder"))
	assert.Equal(t, []string{"Password for ci@builder"}, h.prompter.Titles)

	got, err := h.store.Get("ci@builder")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, h.execute("keyring", "delete", "ci@builder"))
	_, err = h.store.Get("ci@builder")
	assert.ErrorIs(t, err, security.ErrNotFound)
}

func TestKeyringSet_NeedsUser(t *testing.T) {
	h := newHarness(t)

	err := h.execute("keyring", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "helper.ssh.user")

	err = h.execute("keyring", "set", "builder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected user@host")
}

func TestInit_WritesDefaults(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "qemu-e2e.yaml")

	require.NoError(t, h.execute("init", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_for_e2e_test")

	err = h.execute("init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, h.execute("init", "--force", path))
}

func TestInit_ConfigRoundTrip(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "qemu-e2e.yaml")
	require.NoError(t, h.execute("init", path))

	cmd := newRootCommand(h.app)
	cmd.SetOut(h.stdout)
	cmd.SetArgs([]string{"--config", path, "--mode", "local", "list"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "local", h.app.cfg.Mode)
	assert.Equal(t, 5*time.Second, h.app.cfg.Runner.StepTimeout)
}
