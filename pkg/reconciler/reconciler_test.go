package reconciler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flowctl/reconctl/pkg/breaker"
	"github.com/flowctl/reconctl/pkg/clusterclient"
	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/statestore"
	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/tracker"
	"github.com/flowctl/reconctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *clusterclient.Fake, *tracker.Tracker) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "reconciler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tr, err := tracker.New(db)
	require.NoError(t, err)
	states := statestore.New(db)
	fake := clusterclient.NewFake()
	br := breaker.New(breaker.Config{FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond})

	e := New(fake, br, tr, states, Config{
		MaxConcurrentReconciliations: 4,
		ReconciliationTimeout:        time.Second,
		SavepointPollTimeout:         time.Second,
	})
	return e, fake, tr
}

// S1 — deploy a new streaming job.
func TestScenarioDeployNewStreamingJob(t *testing.T) {
	e, fake, tr := newTestEngine(t)
	checkpointMs := int64(60000)
	spec := types.JobSpec{
		JobID:                "j1",
		JobType:              types.JobTypeStreaming,
		ArtifactPath:         "/a.jar",
		Parallelism:          2,
		CheckpointIntervalMs: &checkpointMs,
	}

	result := e.ReconcileJob(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.ActionDeploy, result.ActionTaken)
	assert.Len(t, fake.DeployCalls, 1)
	assert.False(t, tr.HasChanged("j1", spec))
}

// S2 — no-op on unchanged running job.
func TestScenarioNoOpOnUnchangedRunningJob(t *testing.T) {
	e, fake, tr := newTestEngine(t)
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 1}
	require.NoError(t, tr.UpdateTracker("j1", spec))
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning})

	result := e.ReconcileJob(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.ActionNoAction, result.ActionTaken)
	assert.Empty(t, fake.DeployCalls)
	assert.Empty(t, fake.StopCalls)
	assert.Empty(t, fake.TriggerCalls)
}

// S3 — streaming update with savepoint.
func TestScenarioStreamingUpdateWithSavepoint(t *testing.T) {
	e, fake, tr := newTestEngine(t)
	oldSpec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 1}
	require.NoError(t, tr.UpdateTracker("j1", oldSpec))
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning})
	fake.SavepointResult = clusterclient.SavepointStatus{State: clusterclient.SavepointCompleted, Ref: "/savepoints/sp-42"}

	newSpec := oldSpec
	newSpec.Parallelism = 4

	result := e.ReconcileJob(context.Background(), newSpec)

	assert.True(t, result.Success)
	assert.Equal(t, types.ActionUpdate, result.ActionTaken)
	require.Len(t, fake.TriggerCalls, 1)
	require.Len(t, fake.StatusCalls, 1)
	require.Len(t, fake.StopCalls, 1)
	require.Len(t, fake.DeployCalls, 1)
	assert.Equal(t, "/savepoints/sp-42", fake.DeployCalls[0].Config.SavepointPath)
	assert.False(t, tr.HasChanged("j1", newSpec))
}

// S4 — batch job change yields stop, no deploy in this cycle.
func TestScenarioBatchJobChangeYieldsStop(t *testing.T) {
	e, fake, tr := newTestEngine(t)
	oldSpec := types.JobSpec{JobID: "j2", JobType: types.JobTypeBatch, ArtifactPath: "/b.jar", Parallelism: 1}
	require.NoError(t, tr.UpdateTracker("j2", oldSpec))
	fake.SetJob("j2", types.ObservedState{JobID: "j2", Phase: types.JobPhaseRunning})

	newSpec := oldSpec
	newSpec.Parallelism = 2

	result := e.ReconcileJob(context.Background(), newSpec)

	assert.True(t, result.Success)
	assert.Equal(t, types.ActionStop, result.ActionTaken)
	assert.Len(t, fake.StopCalls, 1)
	assert.Empty(t, fake.DeployCalls)
}

// S5 — concurrent reconciliation rejection.
func TestScenarioConcurrentReconciliationRejection(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseAbsent})

	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 1}

	require.NoError(t, e.acquireExclusion("j1"))

	var wg sync.WaitGroup
	var second types.ReconciliationResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		second = e.ReconcileJob(context.Background(), spec)
	}()

	wg.Wait()
	e.releaseExclusion("j1")

	assert.False(t, second.Success)
	assert.Equal(t, string(errs.CodeConcurrentReconciliation), second.ErrorCode)
	assert.NotEmpty(t, second.Context["started_at"])
}

// S6 — circuit-open fast-fail, then recovery.
func TestScenarioCircuitOpenFastFail(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.FailGetJob = errs.New(errs.CodeFlinkClusterUnavailable, "unreachable")
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 1}

	for i := 0; i < 3; i++ {
		result := e.ReconcileJob(context.Background(), spec)
		assert.False(t, result.Success)
	}

	result := e.ReconcileJob(context.Background(), spec)
	assert.False(t, result.Success)
	assert.Equal(t, string(errs.CodeCircuitBreakerOpen), result.ErrorCode)

	time.Sleep(60 * time.Millisecond)
	fake.FailGetJob = nil
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning})

	result = e.ReconcileJob(context.Background(), spec)
	assert.True(t, result.Success)
}

// Invariant 3: reconcile_all is total and order-aligned.
func TestReconcileAllIsOrderAlignedAndTotal(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseAbsent})
	fake.FailDeploy = errs.New(errs.CodeJobDeploymentFailed, "boom")

	specs := []types.JobSpec{
		{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar"},
		{JobID: "j2", JobType: types.JobTypeStreaming, ArtifactPath: "/b.jar"},
	}
	results := e.ReconcileAll(context.Background(), specs)

	require.Len(t, results, len(specs))
	assert.Equal(t, "j1", results[0].JobID)
	assert.Equal(t, "j2", results[1].JobID)
}

// Invariant 5: active_reconciliations is cleared after every exit path.
func TestActiveReconciliationsClearedAfterCompletion(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseAbsent})
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar"}

	e.ReconcileJob(context.Background(), spec)

	assert.Empty(t, e.ActiveReconciliations())
}

// Invariant 8: successful + failed == total across batches.
func TestStatisticsSumInvariant(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseAbsent})
	fake.FailDeploy = errs.New(errs.CodeJobDeploymentFailed, "boom")

	specs := []types.JobSpec{
		{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar"},
		{JobID: "j2", JobType: types.JobTypeStreaming, ArtifactPath: "/b.jar"},
	}
	e.ReconcileAll(context.Background(), specs)

	stats := e.Statistics()
	assert.Equal(t, stats.TotalJobs, stats.Successful+stats.Failed)
}

func TestRestartUsesLastSavepointOnFailedJob(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseFailed, LastSavepoint: "/savepoints/prior"})
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar"}

	result := e.ReconcileJob(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.ActionRestart, result.ActionTaken)
	require.Len(t, fake.DeployCalls, 1)
	assert.Equal(t, "/savepoints/prior", fake.DeployCalls[0].Config.SavepointPath)
}

func TestRestartingPhaseIsNoAction(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRestarting})
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar"}

	result := e.ReconcileJob(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.ActionNoAction, result.ActionTaken)
	assert.Empty(t, fake.DeployCalls)
}
