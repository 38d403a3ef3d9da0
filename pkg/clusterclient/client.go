// Package clusterclient defines the capability interface the
// reconciliation engine consumes to observe and mutate job state on the
// stream-processing cluster, plus an HTTP implementation against the
// cluster's administrative REST surface.
//
// The interface shape and context.WithTimeout-per-call idiom are
// grounded on the teacher's pkg/client.Client; the transport itself is
// net/http rather than gRPC because this controller's collaborator
// speaks a REST admin API (GET /overview, /jobs/{id}, POST
// /jars/{jarId}/run, ...), not this repository's own RPC surface.
package clusterclient

import (
	"context"

	"github.com/flowctl/reconctl/pkg/types"
)

// DeployConfig is the configuration passed to Deploy.
type DeployConfig struct {
	Parallelism           int
	ProgramArgs           []string
	SavepointPath         string
	AllowNonRestoredState bool
}

// StopOptions control how Stop tears down a running job.
type StopOptions struct {
	SavepointDir string
	Drain        bool
}

// SavepointState is the lifecycle state of a triggered savepoint.
type SavepointState string

const (
	SavepointInProgress SavepointState = "in-progress"
	SavepointCompleted  SavepointState = "completed"
	SavepointFailed     SavepointState = "failed"
)

// SavepointStatus is the result of polling a triggered savepoint.
type SavepointStatus struct {
	State  SavepointState
	Ref    string // populated when State == SavepointCompleted
	Reason string // populated when State == SavepointFailed
}

// Client is the capability set the reconciliation engine requires of
// its cluster collaborator. Implementations are interchangeable as long
// as they honor this contract; the engine is tested against a fake, not
// against HTTPClient.
type Client interface {
	// Health reports whether the cluster's admin API is reachable.
	Health(ctx context.Context) (bool, error)

	// GetJob returns the cluster's observed state for jobID. It
	// returns a *errs.ControllerError with Code CodeJobNotFound if the
	// job is unknown to the cluster.
	GetJob(ctx context.Context, jobID string) (types.ObservedState, error)

	// Deploy submits artifactPath for execution and returns the
	// cluster-assigned job id.
	Deploy(ctx context.Context, artifactPath string, cfg DeployConfig) (string, error)

	// Stop gracefully stops jobID, optionally taking a savepoint
	// first, and returns its reference if one was taken.
	Stop(ctx context.Context, jobID string, opts StopOptions) (string, error)

	// TriggerSavepoint asynchronously requests a savepoint for jobID
	// under dir and returns a request id to poll with
	// SavepointStatus.
	TriggerSavepoint(ctx context.Context, jobID, dir string) (string, error)

	// SavepointStatus polls the outcome of a previously triggered
	// savepoint request.
	SavepointStatus(ctx context.Context, jobID, requestID string) (SavepointStatus, error)

	// Cancel forcibly cancels jobID without taking a savepoint.
	Cancel(ctx context.Context, jobID string) (bool, error)
}
