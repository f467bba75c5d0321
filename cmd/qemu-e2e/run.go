package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/runner"
	"github.com/acolita/qemu-e2e/internal/scenario"
)

// watchDebounce collapses the burst of events an editor produces on save.
const watchDebounce = 300 * time.Millisecond

type runFlags struct {
	all      bool
	files    []string
	watch    bool
	failFast bool
}

func newRunCommand(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Launch the emulator and run scenarios",
		Long: `Run launches a fresh emulator for every scenario, runs its steps in order
and stops at the first failing step. The emulator is always shut down
afterwards. The exit status is 1 when any scenario failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := a.selectScenarios(args, f)
			if err != nil {
				return err
			}

			err = a.runScenarios(cmd.Context(), scenarios, f.failFast)
			if !f.watch {
				return err
			}
			return a.watch(cmd.Context(), f.files)
		},
	}

	cmd.Flags().BoolVar(&f.all, "all", false, "Run every known scenario")
	cmd.Flags().StringSliceVarP(&f.files, "file", "f", nil, "Scenario file to run (repeatable)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Re-run scenario files when they change")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Stop after the first failing scenario")
	return cmd
}

func (a *app) selectScenarios(names []string, f runFlags) ([]scenario.Scenario, error) {
	var out []scenario.Scenario
	for _, path := range f.files {
		sc, err := scenario.LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}

	if len(names) == 0 && !f.all {
		if len(out) == 0 && !f.watch {
			return nil, errors.New("name at least one scenario, or use --all, --file or the pick command")
		}
		return out, nil
	}

	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	if f.all {
		return append(out, cat.All()...), nil
	}
	for _, name := range names {
		sc, ok := cat.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (see the list command)", name)
		}
		out = append(out, sc)
	}
	return out, nil
}

// runScenarios runs each scenario against its own emulator and prints a
// summary. It returns errScenariosFailed when any of them failed.
func (a *app) runScenarios(ctx context.Context, scenarios []scenario.Scenario, failFast bool) error {
	if len(scenarios) == 0 {
		return nil
	}

	mode, err := a.cfg.ModeValue()
	if err != nil {
		return err
	}
	r := a.newRunner(mode, a.stdout, driver.NewTextReporter(a.stdout))

	results := make([]runner.Result, 0, len(scenarios))
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		res := r.Run(ctx, sc)
		results = append(results, res)
		if !res.Passed() && failFast {
			break
		}
	}

	a.printSummary(results, len(scenarios), mode)
	for _, res := range results {
		if !res.Passed() {
			return errScenariosFailed
		}
	}
	if len(results) < len(scenarios) {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	return nil
}

func (a *app) printSummary(results []runner.Result, total int, mode environment.Mode) {
	if total < 2 {
		return
	}

	passed := 0
	fmt.Fprintf(a.stdout, "\n==== Summary (%s mode)\n", mode)
	for _, res := range results {
		status := "FAIL"
		if res.Passed() {
			status = "PASS"
			passed++
		}
		fmt.Fprintf(a.stdout, "%s  %-24s %s\n", status, res.Scenario, res.Duration.Round(time.Millisecond))
	}
	if skipped := total - len(results); skipped > 0 {
		fmt.Fprintf(a.stdout, "(%d not run)\n", skipped)
	}
	fmt.Fprintf(a.stdout, "%d/%d passed\n", passed, total)
}

// watch re-runs scenario files whenever they change until ctx is done.
// Explicit files are watched in addition to the configured globs.
func (a *app) watch(ctx context.Context, files []string) error {
	patterns := append(append([]string(nil), a.cfg.Scenarios.Paths...), files...)
	w, err := scenario.NewWatcher(patterns)
	if err != nil {
		return err
	}
	defer w.Close()

	slog.Info("watching scenario files", slog.Any("patterns", patterns))
	fmt.Fprintln(a.stdout, "Watching for scenario changes (Ctrl-C to stop)...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-w.Changes():
			changed := collectChanges(ctx, w.Changes(), path)
			for _, p := range changed {
				sc, err := scenario.LoadFile(p)
				if err != nil {
					slog.Error("cannot load changed scenario",
						slog.String("path", p),
						slog.String("error", err.Error()),
					)
					continue
				}
				// Failures are reported; watching goes on.
				_ = a.runScenarios(ctx, []scenario.Scenario{sc}, false)
			}
		}
	}
}

// collectChanges gathers the distinct paths changed within watchDebounce of
// first.
func collectChanges(ctx context.Context, changes <-chan string, first string) []string {
	paths := []string{first}
	seen := map[string]bool{first: true}

	timer := time.NewTimer(watchDebounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return paths
		case <-timer.C:
			return paths
		case p := <-changes:
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
}
