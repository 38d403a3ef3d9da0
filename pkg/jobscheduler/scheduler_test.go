package jobscheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu        sync.Mutex
	calls     int
	result    types.ReconciliationResult
	blockedCh chan struct{}
}

func (f *fakeExecutor) ReconcileJob(_ context.Context, spec types.JobSpec) types.ReconciliationResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.blockedCh != nil {
		<-f.blockedCh
	}
	return f.result
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAddRejectsInvalidCron(t *testing.T) {
	m := New(&fakeExecutor{}, time.Second, nil)
	err := m.Add(types.ScheduledJobSpec{
		JobSpec:        types.JobSpec{JobID: "j1"},
		CronExpression: "not a cron",
	})
	assert.Error(t, err)
}

func TestFireRunsExecutorAndRecordsHistory(t *testing.T) {
	exec := &fakeExecutor{result: types.ReconciliationResult{Success: true, ActionTaken: types.ActionNoAction}}
	m := New(exec, time.Second, nil)

	require.NoError(t, m.Add(types.ScheduledJobSpec{
		JobSpec:        types.JobSpec{JobID: "j1"},
		CronExpression: "* * * * *",
		MaxRetries:     2,
		RetryDelayS:    1,
	}))

	m.fire("j1")

	assert.Equal(t, 1, exec.callCount())
	hist := m.History("j1", 10)
	require.Len(t, hist, 1)
	assert.Equal(t, types.ExecutionStatusSuccess, hist[0].Status)
}

func TestFireSkipsWhileRunning(t *testing.T) {
	exec := &fakeExecutor{
		result:    types.ReconciliationResult{Success: true},
		blockedCh: make(chan struct{}),
	}
	m := New(exec, time.Second, nil)
	require.NoError(t, m.Add(types.ScheduledJobSpec{
		JobSpec:        types.JobSpec{JobID: "j1"},
		CronExpression: "* * * * *",
	}))

	go m.fire("j1")
	// Give the goroutine time to mark the job running before a
	// concurrent fire arrives.
	time.Sleep(20 * time.Millisecond)

	m.fire("j1")
	stats := m.Statistics()
	assert.Equal(t, 1, stats.SkippedOverlaps)

	close(exec.blockedCh)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, exec.callCount())
}

func TestFireSchedulesRetryOnFailure(t *testing.T) {
	exec := &fakeExecutor{result: types.ReconciliationResult{Success: false, ErrorMessage: "boom"}}
	m := New(exec, time.Second, nil)
	require.NoError(t, m.Add(types.ScheduledJobSpec{
		JobSpec:        types.JobSpec{JobID: "j1"},
		CronExpression: "* * * * *",
		MaxRetries:     2,
		RetryDelayS:    30,
	}))

	m.fire("j1")

	m.mu.Lock()
	st := m.jobs["j1"]
	require.NotNil(t, st.pendingRetryAt)
	assert.Equal(t, 1, st.pendingRetryAttempt)
	m.mu.Unlock()
}

func TestStatisticsAccumulateAcrossExecutions(t *testing.T) {
	exec := &fakeExecutor{result: types.ReconciliationResult{Success: true}}
	m := New(exec, time.Second, nil)
	require.NoError(t, m.Add(types.ScheduledJobSpec{
		JobSpec:        types.JobSpec{JobID: "j1"},
		CronExpression: "* * * * *",
	}))

	m.fire("j1")
	m.fire("j1")

	stats := m.Statistics()
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 2, stats.SuccessfulExecutions)
}

func TestRemoveUnknownJobIsNoOp(t *testing.T) {
	m := New(&fakeExecutor{}, time.Second, nil)
	assert.NotPanics(t, func() { m.Remove("does-not-exist") })
}

func TestFirePersistsExecutionToStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "scheduler.db"))
	require.NoError(t, err)
	defer db.Close()

	exec := &fakeExecutor{result: types.ReconciliationResult{Success: true, ActionTaken: types.ActionNoAction}}
	m := New(exec, time.Second, db)
	require.NoError(t, m.Add(types.ScheduledJobSpec{
		JobSpec:        types.JobSpec{JobID: "j1"},
		CronExpression: "* * * * *",
	}))

	m.fire("j1")

	var seen []types.ExecutionRecord
	require.NoError(t, db.ForEach(storage.BucketExecutions, func(_ string, value []byte) error {
		var record types.ExecutionRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return err
		}
		seen = append(seen, record)
		return nil
	}))

	require.Len(t, seen, 1)
	assert.Equal(t, "j1", seen[0].JobID)
	assert.Equal(t, types.ExecutionStatusSuccess, seen[0].Status)
}
