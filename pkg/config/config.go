// Package config loads and validates the controller's runtime
// configuration from YAML, following the same gopkg.in/yaml.v3
// unmarshalling pattern used for resource files throughout this
// repository.
package config

import (
	"fmt"
	"os"

	"github.com/flowctl/reconctl/pkg/errs"
	"gopkg.in/yaml.v3"
)

// Config is the controller's full runtime configuration.
type Config struct {
	MaxConcurrentReconciliations int             `yaml:"max_concurrent_reconciliations"`
	ReconciliationTimeoutSeconds int             `yaml:"reconciliation_timeout_seconds"`
	CircuitBreaker               CircuitBreaker  `yaml:"circuit_breaker"`
	Scheduler                    SchedulerConfig `yaml:"scheduler"`
	Tracker                      TrackerConfig   `yaml:"tracker"`
	ClusterAddr                  string          `yaml:"cluster_addr"`
}

// CircuitBreaker holds the tuning parameters for pkg/breaker.
type CircuitBreaker struct {
	FailureThreshold        int `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds  int `yaml:"recovery_timeout_seconds"`
}

// SchedulerConfig holds the tuning parameters for pkg/jobscheduler.
type SchedulerConfig struct {
	CheckIntervalSeconds        int `yaml:"check_interval_seconds"`
	SavepointPollTimeoutSeconds int `yaml:"savepoint_poll_timeout_seconds"`
}

// TrackerConfig holds the tuning parameters for pkg/tracker.
type TrackerConfig struct {
	StateFile string `yaml:"state_file"`
}

// Default returns a Config populated with the controller's defaults.
func Default() Config {
	return Config{
		MaxConcurrentReconciliations: 10,
		ReconciliationTimeoutSeconds: 300,
		CircuitBreaker: CircuitBreaker{
			FailureThreshold:       3,
			RecoveryTimeoutSeconds: 30,
		},
		Scheduler: SchedulerConfig{
			CheckIntervalSeconds:        60,
			SavepointPollTimeoutSeconds: 120,
		},
		Tracker: TrackerConfig{
			StateFile: "reconctl.db",
		},
		ClusterAddr: "http://localhost:8081",
	}
}

// Load reads a YAML file at path, overlaying it onto Default(), and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.CodeConfigurationError, "", fmt.Errorf("reading config file: %w", err))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.CodeConfigurationError, "", fmt.Errorf("parsing config file: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field is within an acceptable range,
// returning a *errs.ControllerError with Code CodeConfigurationError on
// the first violation found.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentReconciliations <= 0:
		return errs.New(errs.CodeConfigurationError, "max_concurrent_reconciliations must be > 0")
	case c.ReconciliationTimeoutSeconds <= 0:
		return errs.New(errs.CodeConfigurationError, "reconciliation_timeout_seconds must be > 0")
	case c.CircuitBreaker.FailureThreshold <= 0:
		return errs.New(errs.CodeConfigurationError, "circuit_breaker.failure_threshold must be > 0")
	case c.CircuitBreaker.RecoveryTimeoutSeconds <= 0:
		return errs.New(errs.CodeConfigurationError, "circuit_breaker.recovery_timeout_seconds must be > 0")
	case c.Scheduler.CheckIntervalSeconds <= 0:
		return errs.New(errs.CodeConfigurationError, "scheduler.check_interval_seconds must be > 0")
	case c.Scheduler.SavepointPollTimeoutSeconds <= 0:
		return errs.New(errs.CodeConfigurationError, "scheduler.savepoint_poll_timeout_seconds must be > 0")
	case c.Tracker.StateFile == "":
		return errs.New(errs.CodeConfigurationError, "tracker.state_file must not be empty")
	case c.ClusterAddr == "":
		return errs.New(errs.CodeConfigurationError, "cluster_addr must not be empty")
	}
	return nil
}
