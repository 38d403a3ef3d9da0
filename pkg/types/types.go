package types

import "time"

// JobSpec is the desired configuration for a streaming or batch job.
type JobSpec struct {
	JobID                      string
	JobType                    JobType
	ArtifactPath               string
	Parallelism                int
	CheckpointIntervalMs       *int64
	SavepointTriggerIntervalMs *int64
	RestartStrategy            RestartStrategy
	MemoryBytes                int64
	CPUCores                   float64
	SavepointPath              string
}

// JobType distinguishes streaming jobs (long-running) from batch jobs
// (expected to terminate on their own).
type JobType string

const (
	JobTypeStreaming JobType = "streaming"
	JobTypeBatch     JobType = "batch"
)

// RestartStrategy controls how a failed job is restarted by the cluster.
type RestartStrategy string

const (
	RestartStrategyFixedDelay       RestartStrategy = "fixed-delay"
	RestartStrategyExponentialDelay RestartStrategy = "exponential-delay"
	RestartStrategyFailureRate      RestartStrategy = "failure-rate"
)

// ObservedState is the cluster's reported view of a job at a point in
// time, as returned by clusterclient.Client.GetJob.
type ObservedState struct {
	JobID         string
	Phase         JobPhase
	LastSavepoint string
	ObservedAt    time.Time
}

// JobPhase is the cluster-reported lifecycle phase of a job.
type JobPhase string

const (
	JobPhaseAbsent     JobPhase = "absent"
	JobPhaseRunning    JobPhase = "running"
	JobPhaseStopped    JobPhase = "stopped"
	JobPhaseFailed     JobPhase = "failed"
	JobPhaseRestarting JobPhase = "restarting"
	JobPhaseUnknown    JobPhase = "unknown"
)

// TrackedHash is the last canonical hash observed for a job_id, used by
// the change tracker to detect desired-spec drift between reconciliation
// passes.
type TrackedHash struct {
	JobID         string
	CanonicalHash string
	FirstSeenAt   time.Time
	LastUpdatedAt time.Time
}

// ChangeRecord is an append-only entry recording a detected change to a
// job's desired spec.
type ChangeRecord struct {
	JobID         string
	NewHash       string
	PrevHash      string
	ChangedAt     time.Time
	Kind          ChangeKind
	ChangedFields []string
}

// ChangeKind classifies the nature of a detected change.
type ChangeKind string

const (
	ChangeKindCreated ChangeKind = "created"
	ChangeKindUpdated ChangeKind = "updated"
	ChangeKindDeleted ChangeKind = "deleted"
)

// ReconciliationResult is the outcome of reconciling a single job during
// one reconciliation pass.
type ReconciliationResult struct {
	JobID        string
	ActionTaken  ReconciliationAction
	Success      bool
	ErrorCode    string
	ErrorMessage string
	DurationMs   int64
	ReconciledAt time.Time
	Context      map[string]string
}

// ReconciliationAction is the action the engine decided to take for a
// job during a reconciliation pass.
type ReconciliationAction string

const (
	ActionDeploy   ReconciliationAction = "deploy"
	ActionUpdate   ReconciliationAction = "update"
	ActionStop     ReconciliationAction = "stop"
	ActionRestart  ReconciliationAction = "restart"
	ActionNoAction ReconciliationAction = "no_action"
)

// ScheduledJobSpec extends JobSpec with cron scheduling fields, owned by
// the scheduled-job manager rather than the reconciliation engine.
type ScheduledJobSpec struct {
	JobSpec

	CronExpression    string
	Timezone          string
	MaxExecutions     *int
	ExecutionTimeoutS int
	StartDate         *time.Time
	EndDate           *time.Time
	MaxRetries        int
	RetryDelayS       int
}

// ExecutionRecord is the outcome of a single scheduled-job execution
// attempt.
type ExecutionRecord struct {
	ExecutionID     string
	JobID           string
	ScheduledTime   time.Time
	ActualStartTime *time.Time
	EndTime         *time.Time
	Status          ExecutionStatus
	AttemptNumber   int
	ErrorMessage    string
	DurationMs      int64
}

// ExecutionStatus is the lifecycle state of a scheduled-job execution.
type ExecutionStatus string

const (
	ExecutionStatusPending  ExecutionStatus = "pending"
	ExecutionStatusRunning  ExecutionStatus = "running"
	ExecutionStatusSuccess  ExecutionStatus = "success"
	ExecutionStatusFailed   ExecutionStatus = "failed"
	ExecutionStatusDisabled ExecutionStatus = "disabled"
	ExecutionStatusExpired  ExecutionStatus = "expired"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)
