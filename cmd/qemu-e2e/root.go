package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qemu-e2e",
		Short:         "Run end-to-end scenarios against the liumOS emulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate(fmt.Sprintf("qemu-e2e version {{.Version}}\n  Build time: %s\n  Git commit: %s\n", BuildTime, GitCommit))

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to configuration file")
	flags.StringVar(&a.mode, "mode", "", "Environment mode: 'local' or 'container' (overrides config and E2E_RUN_WITHOUT_DOCKER)")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: 'text' or 'json' (overrides config)")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "init" {
			return nil
		}
		return a.load()
	}

	root.AddCommand(
		newRunCommand(a),
		newListCommand(a),
		newPickCommand(a),
		newServeCommand(a),
		newKeyringCommand(a),
		newInitCommand(a),
	)
	return root
}
