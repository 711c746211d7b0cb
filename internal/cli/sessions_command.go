package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resoundio/resound/internal/tracking"
)

// newSessionsCommand creates the sessions subcommand
func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent playback sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsE,
	}

	cmd.Flags().Int("limit", 20, "maximum number of sessions to show")

	return cmd
}

func runSessionsE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := cli.loadAndValidateConfig(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")

	// Listing history works even when recording is turned off
	dbPath := ""
	if cfg.Tracking != nil {
		dbPath = cfg.Tracking.DatabasePath
	}
	path := cli.configManager.ResolveTrackingDBPath(dbPath)

	db, err := tracking.NewDatabase(path)
	if err != nil {
		cmd.PrintErrf("Error: opening session journal: %v\n", err)
		return fmt.Errorf("opening session journal: %w", err)
	}
	journal := tracking.NewJournal(db)
	defer journal.Close()

	records, err := journal.Recent(limit)
	if err != nil {
		return fmt.Errorf("querying sessions: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("no playback sessions recorded")
		return nil
	}

	for _, r := range records {
		status := "interrupted"
		switch {
		case r.FinishedAt.IsZero():
			status = "unfinished"
		case r.Completed:
			status = "completed"
		}

		line := fmt.Sprintf("%s  %-24s  %-6s  %6d Hz  %10d B  %s",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			truncateName(r.Source, 24),
			r.Backend,
			r.GrantedRate,
			r.BytesWritten,
			status)
		if r.Underruns > 0 {
			line += fmt.Sprintf(" (%d underruns)", r.Underruns)
		}
		cmd.Println(line)
	}

	return nil
}

// truncateName shortens long source names, keeping the tail which holds
// the file name
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return "..." + name[len(name)-(max-3):]
}
