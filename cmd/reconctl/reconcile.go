package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowctl/reconctl/pkg/health"
	"github.com/flowctl/reconctl/pkg/jobscheduler"
	"github.com/flowctl/reconctl/pkg/metrics"
	"github.com/flowctl/reconctl/pkg/specloader"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run reconciliation against desired job specs",
}

var reconcileOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Reconcile every job spec in a file exactly once and exit",
	RunE:  runReconcileOnce,
}

var reconcileRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation engine and scheduler until interrupted",
	RunE:  runReconcileRun,
}

func init() {
	for _, c := range []*cobra.Command{reconcileOnceCmd, reconcileRunCmd} {
		c.Flags().StringP("file", "f", "", "Desired-spec YAML file (required)")
		_ = c.MarkFlagRequired("file")
	}
	reconcileRunCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics and /healthz on")
	reconcileCmd.AddCommand(reconcileOnceCmd)
	reconcileCmd.AddCommand(reconcileRunCmd)
}

func runReconcileOnce(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	doc, err := specloader.Load(file)
	if err != nil {
		return fmt.Errorf("loading spec file: %w", err)
	}

	results := app.engine.ReconcileAll(context.Background(), doc.JobSpecs())

	anyFailed := false
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "FAILED: " + r.ErrorCode + " " + r.ErrorMessage
			anyFailed = true
		}
		fmt.Printf("%-32s %-10s %s\n", r.JobID, r.ActionTaken, status)
	}

	if anyFailed {
		return fmt.Errorf("one or more jobs failed to reconcile")
	}
	return nil
}

func runReconcileRun(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	doc, err := specloader.Load(file)
	if err != nil {
		return fmt.Errorf("loading spec file: %w", err)
	}

	sched := jobscheduler.New(app.engine, time.Duration(app.cfg.Scheduler.CheckIntervalSeconds)*time.Second, app.db)
	for _, s := range doc.ScheduledJobSpecs() {
		if err := sched.Add(s); err != nil {
			return fmt.Errorf("adding scheduled job %s: %w", s.JobID, err)
		}
	}
	sched.Start()

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", health.Handler(app.engine))
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)
	fmt.Printf("health endpoint:  http://%s/healthz\n", metricsAddr)

	ticker := time.NewTicker(time.Duration(app.cfg.Scheduler.CheckIntervalSeconds) * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Println("reconctl is running. Press Ctrl+C to stop.")

	for {
		select {
		case <-ticker.C:
			results := app.engine.ReconcileAll(context.Background(), doc.JobSpecs())
			for _, r := range results {
				if !r.Success {
					fmt.Fprintf(os.Stderr, "reconciliation failed: job=%s code=%s message=%s\n", r.JobID, r.ErrorCode, r.ErrorMessage)
				}
			}
		case <-sigCh:
			fmt.Println("\nShutting down...")
			sched.Stop()
			return nil
		}
	}
}
