// Package specloader reads desired JobSpec and ScheduledJobSpec records
// from a YAML file on disk, the operator-facing input to a reconciliation
// run. Parsing a file is outside the reconciliation engine's contract;
// this package exists only to hand the engine something to reconcile.
package specloader

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/types"
	"gopkg.in/yaml.v3"
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)

// Document is the on-disk shape of a spec file: a list of immediate jobs
// and a list of cron-scheduled jobs, each using the YAML field names an
// operator would write by hand.
type Document struct {
	Jobs          []JobEntry          `yaml:"jobs"`
	ScheduledJobs []ScheduledJobEntry `yaml:"scheduled_jobs"`
}

// JobEntry is the YAML representation of types.JobSpec.
type JobEntry struct {
	JobID                      string  `yaml:"job_id"`
	JobType                    string  `yaml:"job_type"`
	ArtifactPath               string  `yaml:"artifact_path"`
	Parallelism                int     `yaml:"parallelism"`
	CheckpointIntervalMs       *int64  `yaml:"checkpoint_interval_ms,omitempty"`
	SavepointTriggerIntervalMs *int64  `yaml:"savepoint_trigger_interval_ms,omitempty"`
	RestartStrategy            string  `yaml:"restart_strategy"`
	MemoryBytes                int64   `yaml:"memory_bytes"`
	CPUCores                   float64 `yaml:"cpu_cores"`
	SavepointPath              string  `yaml:"savepoint_path,omitempty"`
}

// ScheduledJobEntry is the YAML representation of types.ScheduledJobSpec.
type ScheduledJobEntry struct {
	JobEntry          `yaml:",inline"`
	CronExpression    string `yaml:"cron"`
	Timezone          string `yaml:"timezone,omitempty"`
	MaxExecutions     *int   `yaml:"max_executions,omitempty"`
	ExecutionTimeoutS int    `yaml:"execution_timeout_seconds"`
	StartDate         string `yaml:"start_date,omitempty"`
	EndDate           string `yaml:"end_date,omitempty"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelayS       int    `yaml:"retry_delay_seconds"`
}

// Load reads and parses path into a Document, validating every entry's
// closed-enum fields and identifier pattern before returning.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, errs.Wrap(errs.CodeSpecValidationFailed, "", fmt.Errorf("reading spec file: %w", err))
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, errs.Wrap(errs.CodeSpecValidationFailed, "", fmt.Errorf("parsing spec file: %w", err))
	}

	for _, j := range doc.Jobs {
		if err := validateJobEntry(j); err != nil {
			return Document{}, err
		}
	}
	for _, s := range doc.ScheduledJobs {
		if err := validateJobEntry(s.JobEntry); err != nil {
			return Document{}, err
		}
		if s.CronExpression == "" {
			return Document{}, errs.New(errs.CodeSpecValidationFailed, "scheduled_jobs entries require a cron expression").
				WithContext(map[string]string{"job_id": s.JobID})
		}
		if _, _, err := s.parseDates(); err != nil {
			return Document{}, err
		}
	}

	return doc, nil
}

// JobSpecs converts every immediate job entry to types.JobSpec.
func (d Document) JobSpecs() []types.JobSpec {
	out := make([]types.JobSpec, 0, len(d.Jobs))
	for _, j := range d.Jobs {
		out = append(out, j.toJobSpec())
	}
	return out
}

// ScheduledJobSpecs converts every scheduled job entry to
// types.ScheduledJobSpec.
func (d Document) ScheduledJobSpecs() []types.ScheduledJobSpec {
	out := make([]types.ScheduledJobSpec, 0, len(d.ScheduledJobs))
	for _, s := range d.ScheduledJobs {
		start, end, _ := s.parseDates()
		out = append(out, types.ScheduledJobSpec{
			JobSpec:           s.toJobSpec(),
			CronExpression:    s.CronExpression,
			Timezone:          s.Timezone,
			MaxExecutions:     s.MaxExecutions,
			ExecutionTimeoutS: s.ExecutionTimeoutS,
			StartDate:         start,
			EndDate:           end,
			MaxRetries:        s.MaxRetries,
			RetryDelayS:       s.RetryDelayS,
		})
	}
	return out
}

func (j JobEntry) toJobSpec() types.JobSpec {
	return types.JobSpec{
		JobID:                      j.JobID,
		JobType:                    types.JobType(j.JobType),
		ArtifactPath:               j.ArtifactPath,
		Parallelism:                j.Parallelism,
		CheckpointIntervalMs:       j.CheckpointIntervalMs,
		SavepointTriggerIntervalMs: j.SavepointTriggerIntervalMs,
		RestartStrategy:            types.RestartStrategy(j.RestartStrategy),
		MemoryBytes:                j.MemoryBytes,
		CPUCores:                   j.CPUCores,
		SavepointPath:              j.SavepointPath,
	}
}

// parseDates parses the optional start_date/end_date RFC3339 strings,
// returning nil pointers for fields left blank.
func (s ScheduledJobEntry) parseDates() (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if s.StartDate != "" {
		t, err := time.Parse(time.RFC3339, s.StartDate)
		if err != nil {
			return nil, nil, errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("invalid start_date %q: %v", s.StartDate, err)).
				WithContext(map[string]string{"job_id": s.JobID})
		}
		start = &t
	}
	if s.EndDate != "" {
		t, err := time.Parse(time.RFC3339, s.EndDate)
		if err != nil {
			return nil, nil, errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("invalid end_date %q: %v", s.EndDate, err)).
				WithContext(map[string]string{"job_id": s.JobID})
		}
		end = &t
	}
	return start, end, nil
}

func validateJobEntry(j JobEntry) error {
	if !jobIDPattern.MatchString(j.JobID) {
		return errs.New(errs.CodeSpecValidationFailed, "job_id must match [A-Za-z0-9_-]{1,255}").
			WithContext(map[string]string{"job_id": j.JobID})
	}
	switch types.JobType(j.JobType) {
	case types.JobTypeStreaming, types.JobTypeBatch:
	default:
		return errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("unknown job_type %q", j.JobType)).
			WithContext(map[string]string{"job_id": j.JobID})
	}
	switch types.RestartStrategy(j.RestartStrategy) {
	case types.RestartStrategyFixedDelay, types.RestartStrategyExponentialDelay, types.RestartStrategyFailureRate:
	default:
		return errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("unknown restart_strategy %q", j.RestartStrategy)).
			WithContext(map[string]string{"job_id": j.JobID})
	}
	if j.Parallelism < 1 {
		return errs.New(errs.CodeSpecValidationFailed, "parallelism must be >= 1").
			WithContext(map[string]string{"job_id": j.JobID})
	}
	return nil
}
