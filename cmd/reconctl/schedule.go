package main

import (
	"fmt"
	"time"

	"github.com/flowctl/reconctl/pkg/cron"
	"github.com/flowctl/reconctl/pkg/specloader"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect cron-scheduled jobs",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs from a spec file and their next fire time",
	RunE:  runScheduleList,
}

func init() {
	scheduleListCmd.Flags().StringP("file", "f", "", "Desired-spec YAML file (required)")
	_ = scheduleListCmd.MarkFlagRequired("file")
	scheduleCmd.AddCommand(scheduleListCmd)
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")

	doc, err := specloader.Load(file)
	if err != nil {
		return fmt.Errorf("loading spec file: %w", err)
	}

	for _, s := range doc.ScheduledJobSpecs() {
		schedule, err := cron.Parse(s.CronExpression)
		if err != nil {
			fmt.Printf("%-32s invalid cron: %v\n", s.JobID, err)
			continue
		}
		loc, locErr := resolveLocation(s.Timezone)
		if locErr != nil {
			fmt.Printf("%-32s invalid timezone: %v\n", s.JobID, locErr)
			continue
		}
		next, err := schedule.NextFire(time.Now().UTC(), loc)
		if err != nil {
			fmt.Printf("%-32s next fire unresolvable: %v\n", s.JobID, err)
			continue
		}
		fmt.Printf("%-32s %-20s next=%s\n", s.JobID, s.CronExpression, next.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func resolveLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
