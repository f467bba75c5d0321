package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/acolita/qemu-e2e/internal/config"
	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/mcp"
)

func newListCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cat.All())
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTEPS\tSOURCE\tDESCRIPTION")
			for _, sc := range cat.All() {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", sc.Name, len(sc.Steps), sc.Source, sc.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print scenarios as JSON")
	return cmd
}

func newPickCommand(a *app) *cobra.Command {
	var failFast bool

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Choose scenarios interactively and run them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}

			picked, err := a.prompter.PickScenarios(cat.Names())
			if err != nil {
				return err
			}
			if len(picked) == 0 {
				fmt.Fprintln(a.stdout, "Nothing selected.")
				return nil
			}

			scenarios, err := a.selectScenarios(picked, runFlags{})
			if err != nil {
				return err
			}
			return a.runScenarios(cmd.Context(), scenarios, failFast)
		},
	}
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop after the first failing scenario")
	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the scenarios as MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defaultMode, err := a.cfg.ModeValue()
			if err != nil {
				return err
			}

			// stdout carries the protocol; progress goes into the tool result.
			srv := mcp.NewServer(
				a.catalog,
				func(mode environment.Mode, out io.Writer, rep driver.Reporter) mcp.ScenarioRunner {
					return a.newRunner(mode, out, rep)
				},
				mcp.WithVersion(Version),
				mcp.WithDefaultMode(defaultMode),
			)
			return srv.Run()
		},
	}
}

func newKeyringCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage helper SSH passwords in the OS keyring",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [user@host]",
			Short: "Store the helper SSH password",
			Long: `Set prompts for the password of user@host and stores it in the OS keyring.
Without an argument the helper.ssh user and host from the config are used.`,
			Args: cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := a.keyringUser(args)
				if err != nil {
					return err
				}
				password, err := a.prompter.Password("Password for " + user)
				if err != nil {
					return err
				}
				if err := a.secrets.Set(user, password); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Stored password for %s.\n", user)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete [user@host]",
			Short: "Remove the stored helper SSH password",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := a.keyringUser(args)
				if err != nil {
					return err
				}
				if err := a.secrets.Delete(user); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Removed password for %s.\n", user)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) keyringUser(args []string) (string, error) {
	if len(args) == 1 {
		if !strings.Contains(args[0], "@") {
			return "", fmt.Errorf("expected user@host, got %q", args[0])
		}
		return args[0], nil
	}
	ssh := a.cfg.Helper.SSH
	if ssh.User == "" || ssh.Host == "" {
		return "", errors.New("helper.ssh.user and helper.ssh.host are not configured; pass user@host")
	}
	return ssh.User + "@" + ssh.Host, nil
}

func newInitCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Wrote %s.\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
