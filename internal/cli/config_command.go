package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resoundio/resound/internal/config"
)

// newConfigCommand creates the config command group
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the configuration file",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

// newConfigShowCommand creates the config show subcommand
func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE:  runConfigShowE,
	}
}

func runConfigShowE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	// The merged view: defaults, config file, environment, flags
	cfg, err := cli.loadAndValidateConfig(cmd)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	cmd.Println(string(data))
	return nil
}

// newConfigInitCommand creates the config init subcommand
func newConfigInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the user config directory",
		Args:  cobra.NoArgs,
		RunE:  runConfigInitE,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

// runConfigInitE writes the defaults without loading the current
// config first, so init --force can replace a file that no longer
// parses.
func runConfigInitE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	force, _ := cmd.Flags().GetBool("force")

	path, err := cli.configManager.InitUserConfig(force)
	if errors.Is(err, config.ErrConfigExists) {
		cmd.PrintErrf("Error: config file already exists at %s (use --force to overwrite)\n", path)
		return err
	}
	if err != nil {
		cmd.PrintErrf("Error: writing config file: %v\n", err)
		return fmt.Errorf("writing config file: %w", err)
	}

	cmd.Printf("wrote default config to %s\n", path)
	return nil
}
