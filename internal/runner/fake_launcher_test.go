package runner_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/session"
	"github.com/acolita/qemu-e2e/internal/testing/fakes/fakeconsole"
)

// fakeLauncher hands out sessions backed by fake consoles. The monitor hangs
// up on "q" unless stubborn is set.
type fakeLauncher struct {
	monitor *fakeconsole.Console
	guest   *fakeconsole.Console
	helper  *fakeconsole.Console

	launchErr error
	guestErr  error
	helperErr error
	stubborn  bool

	mu    sync.Mutex
	calls []string
}

func newFakeLauncher() *fakeLauncher {
	f := &fakeLauncher{
		monitor: fakeconsole.New(),
		guest:   fakeconsole.New(),
		helper:  fakeconsole.New(),
	}
	f.monitor.OnLine(func(line string) {
		if line == "q" && !f.stubborn {
			f.monitor.Hangup()
		}
	})
	return f
}

func (f *fakeLauncher) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLauncher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLauncher) Preclean(ctx context.Context, mode environment.Mode) {
	f.record("preclean " + string(mode))
}

func (f *fakeLauncher) Launch(ctx context.Context, mode environment.Mode, opts ...session.Option) (*environment.Environment, error) {
	f.record("launch " + string(mode))
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &environment.Environment{
		Mode:            mode,
		Control:         session.New("monitor", "fake", f.monitor, opts...),
		ShutdownCommand: "q",
	}, nil
}

func (f *fakeLauncher) ConnectGuestConsole(ctx context.Context, opts ...session.Option) (*session.Session, error) {
	f.record("guest")
	if f.guestErr != nil {
		return nil, f.guestErr
	}
	return session.New("guest", "fake", f.guest, opts...), nil
}

func (f *fakeLauncher) ConnectHelperShell(ctx context.Context, containerized bool, opts ...session.Option) (*session.Session, error) {
	if containerized {
		f.record("helper container")
	} else {
		f.record("helper local")
	}
	if f.helperErr != nil {
		return nil, f.helperErr
	}
	return session.New("helper", "fake", f.helper, opts...), nil
}

func (f *fakeLauncher) Stop(ctx context.Context, env *environment.Environment) error {
	f.record("stop")
	defer env.Control.Close()

	_ = env.Control.SendLine(env.ShutdownCommand)
	select {
	case <-env.Control.Done():
		return nil
	case <-time.After(200 * time.Millisecond):
		return &environment.TeardownError{Mode: env.Mode, Err: errors.New("still running")}
	}
}
