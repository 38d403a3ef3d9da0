package main

import (
	"fmt"
	"os"

	"github.com/flowctl/reconctl/pkg/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reconctl",
	Short: "reconctl - declarative reconciliation controller for a stream-processing cluster",
	Long: `reconctl drives a Flink-style JobManager cluster toward a set of
desired job specifications: deploying, updating via savepoint, stopping,
or restarting jobs, and running cron-scheduled batch jobs on a ticking
schedule.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"reconctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (defaults applied if unset)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(trackerCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
