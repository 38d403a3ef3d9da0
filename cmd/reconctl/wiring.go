package main

import (
	"fmt"
	"time"

	"github.com/flowctl/reconctl/pkg/breaker"
	"github.com/flowctl/reconctl/pkg/clusterclient"
	"github.com/flowctl/reconctl/pkg/config"
	"github.com/flowctl/reconctl/pkg/reconciler"
	"github.com/flowctl/reconctl/pkg/statestore"
	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/tracker"
	"github.com/spf13/cobra"
)

// app bundles every collaborator a command needs, built once per
// invocation from the resolved config.
type app struct {
	cfg     config.Config
	db      *storage.DB
	tracker *tracker.Tracker
	states  *statestore.Store
	client  clusterclient.Client
	engine  *reconciler.Engine
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg = config.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.Tracker.StateFile)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	tr, err := tracker.New(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing tracker: %w", err)
	}

	states := statestore.New(db)
	var client clusterclient.Client = clusterclient.NewHTTPClient(cfg.ClusterAddr, 10*time.Second)
	client = clusterclient.NewCached(client, 1000, 30*time.Second)

	br := breaker.New(breaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.CircuitBreaker.RecoveryTimeoutSeconds) * time.Second,
	})

	engine := reconciler.New(client, br, tr, states, reconciler.Config{
		MaxConcurrentReconciliations: cfg.MaxConcurrentReconciliations,
		ReconciliationTimeout:        time.Duration(cfg.ReconciliationTimeoutSeconds) * time.Second,
		SavepointPollTimeout:         time.Duration(cfg.Scheduler.SavepointPollTimeoutSeconds) * time.Second,
	})

	return &app{cfg: cfg, db: db, tracker: tr, states: states, client: client, engine: engine}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
