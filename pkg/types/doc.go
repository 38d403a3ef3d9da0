/*
Package types defines the data model shared across the reconciliation
engine and its collaborators: desired job specifications, observed
cluster state, change-tracking records, and reconciliation/execution
outcomes.

# Core Types

Desired state:
  - JobSpec: a streaming or batch job's desired configuration
  - ScheduledJobSpec: a JobSpec plus cron scheduling fields

Observed state:
  - ObservedState: the cluster's reported view of a job

Change tracking:
  - TrackedHash: the last-seen canonical hash for a job_id
  - ChangeRecord: an append-only entry recording a detected change

Outcomes:
  - ReconciliationResult: the outcome of reconciling a single job
  - ExecutionRecord: the outcome of a single scheduled-job execution

# Design

Types here are plain structs and closed string enums; behavior lives in
the packages that consume them (pkg/reconciler, pkg/tracker,
pkg/jobscheduler), not in this package. Enums follow the typed-string
const-block convention used throughout this repository:

	type JobPhase string

	const (
		JobPhaseRunning JobPhase = "running"
		JobPhaseFailed  JobPhase = "failed"
	)

All types are JSON-serializable for storage in pkg/storage and safe to
read concurrently; mutation must be synchronized by callers.
*/
package types
