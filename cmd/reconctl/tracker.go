package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Inspect the change tracker's durable state",
}

var trackerDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show the change history recorded for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrackerDiff,
}

func init() {
	trackerDiffCmd.Flags().Int("limit", 20, "Maximum number of change records to show")
	trackerCmd.AddCommand(trackerDiffCmd)
}

func runTrackerDiff(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	limit, _ := cmd.Flags().GetInt("limit")

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	history, err := app.tracker.History(jobID, limit)
	if err != nil {
		return fmt.Errorf("reading change history: %w", err)
	}

	if len(history) == 0 {
		fmt.Printf("no change history recorded for %s\n", jobID)
		return nil
	}

	for _, rec := range history {
		fmt.Printf("%s  %-8s prev=%s new=%s\n", rec.ChangedAt.Format("2006-01-02T15:04:05Z07:00"), rec.Kind, rec.PrevHash, rec.NewHash)
	}
	return nil
}
