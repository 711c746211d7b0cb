package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resoundio/resound/internal/output"
)

// newBackendsCommand creates the backends subcommand
func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available output backends",
		Args:  cobra.NoArgs,
		RunE:  runBackendsE,
	}
}

func runBackendsE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := cli.loadAndValidateConfig(cmd)
	if err != nil {
		return err
	}

	descriptors := output.All()
	if len(descriptors) == 0 {
		cmd.Println("no output backends available")
		return nil
	}

	// The entry play would pick when no --backend is given
	defaultName := ""
	if d, err := output.Select(cfg.Backend, cfg.BackendOrder); err == nil {
		defaultName = d.Name
	}

	for _, d := range descriptors {
		marker := ""
		if d.Name == defaultName {
			marker = "  (default)"
		}
		cmd.Printf("%-8s %s%s\n", d.Name, d.Description, marker)
	}
	return nil
}
