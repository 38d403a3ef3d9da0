package clusterclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/types"
)

// Fake is an in-memory Client for tests, following this repository's
// habit of hand-written fakes over generated mocks. Each exported call
// counter and recorded-argument slice lets a test assert exactly which
// cluster operations a reconciliation performed, matching scenarios
// like "trigger_savepoint, savepoint_status, stop, deploy, in that
// order".
type Fake struct {
	mu sync.Mutex

	Jobs            map[string]types.ObservedState
	HealthOK        bool
	FailHealth      error
	FailGetJob      error
	FailDeploy      error
	FailStop        error
	FailTrigger     error
	FailStatus      error
	SavepointResult SavepointStatus

	DeployCalls  []DeployCall
	StopCalls    []StopCall
	TriggerCalls []string
	StatusCalls  []string
	CancelCalls  []string
	nextJobSeq   int
}

// DeployCall records one Deploy invocation.
type DeployCall struct {
	ArtifactPath string
	Config       DeployConfig
}

// StopCall records one Stop invocation.
type StopCall struct {
	JobID string
	Opts  StopOptions
}

// NewFake creates a Fake with an empty job set and a healthy cluster.
func NewFake() *Fake {
	return &Fake{
		Jobs:            make(map[string]types.ObservedState),
		HealthOK:        true,
		SavepointResult: SavepointStatus{State: SavepointCompleted, Ref: "/savepoints/sp-1"},
	}
}

func (f *Fake) Health(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailHealth != nil {
		return false, f.FailHealth
	}
	return f.HealthOK, nil
}

func (f *Fake) GetJob(_ context.Context, jobID string) (types.ObservedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGetJob != nil {
		return types.ObservedState{}, f.FailGetJob
	}
	state, ok := f.Jobs[jobID]
	if !ok {
		return types.ObservedState{}, errs.New(errs.CodeJobNotFound, "job not found").WithContext(map[string]string{"job_id": jobID})
	}
	return state, nil
}

func (f *Fake) Deploy(_ context.Context, artifactPath string, cfg DeployConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeployCalls = append(f.DeployCalls, DeployCall{ArtifactPath: artifactPath, Config: cfg})
	if f.FailDeploy != nil {
		return "", f.FailDeploy
	}
	f.nextJobSeq++
	return fmt.Sprintf("cluster-job-%d", f.nextJobSeq), nil
}

func (f *Fake) Stop(_ context.Context, jobID string, opts StopOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls = append(f.StopCalls, StopCall{JobID: jobID, Opts: opts})
	if f.FailStop != nil {
		return "", f.FailStop
	}
	if state, ok := f.Jobs[jobID]; ok {
		state.Phase = types.JobPhaseStopped
		f.Jobs[jobID] = state
	}
	return "", nil
}

func (f *Fake) TriggerSavepoint(_ context.Context, jobID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TriggerCalls = append(f.TriggerCalls, jobID)
	if f.FailTrigger != nil {
		return "", f.FailTrigger
	}
	return "req-1", nil
}

func (f *Fake) SavepointStatus(_ context.Context, jobID, _ string) (SavepointStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusCalls = append(f.StatusCalls, jobID)
	if f.FailStatus != nil {
		return SavepointStatus{}, f.FailStatus
	}
	return f.SavepointResult, nil
}

func (f *Fake) Cancel(_ context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelCalls = append(f.CancelCalls, jobID)
	if state, ok := f.Jobs[jobID]; ok {
		state.Phase = types.JobPhaseStopped
		f.Jobs[jobID] = state
	}
	return true, nil
}

// SetJob sets the observed state returned for jobID by GetJob.
func (f *Fake) SetJob(jobID string, state types.ObservedState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Jobs[jobID] = state
}
