// Package jobscheduler owns the set of scheduled batch job specs and,
// on a periodic tick, turns elapsed cron fires into reconciliation
// demand. The tick-loop/stopCh/mutex shape is grounded on the teacher's
// pkg/scheduler.Scheduler; the per-tick body is new, built to this
// domain's cron-driven fire/retry/history semantics instead of
// resource-based container placement.
package jobscheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowctl/reconctl/pkg/cron"
	"github.com/flowctl/reconctl/pkg/log"
	"github.com/flowctl/reconctl/pkg/metrics"
	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxHistoryPerJob bounds the retained execution ring per job_id, per
// spec.md's "last 100" requirement.
const maxHistoryPerJob = 100

// Executor runs a single scheduled job's reconciliation. pkg/reconciler
// satisfies this interface; the scheduler depends only on the
// capability, not the concrete engine, so tests can substitute a fake.
type Executor interface {
	ReconcileJob(ctx context.Context, spec types.JobSpec) types.ReconciliationResult
}

type jobState struct {
	spec                types.ScheduledJobSpec
	running             bool
	executionCount      int
	nextFire            time.Time
	pendingRetryAt      *time.Time
	pendingRetryAttempt int
	history             []types.ExecutionRecord
}

// Manager owns a set of ScheduledJobSpec and drives their executions.
type Manager struct {
	executor      Executor
	checkInterval time.Duration
	logger        zerolog.Logger
	store         *storage.DB

	mu    sync.Mutex
	jobs  map[string]*jobState
	stats Statistics

	stopCh chan struct{}
	doneCh chan struct{}
}

// Statistics is a snapshot of scheduler-wide counters.
type Statistics struct {
	TotalExecutions      int
	SuccessfulExecutions int
	FailedExecutions     int
	SkippedOverlaps      int
}

// New creates a Manager that ticks every checkInterval (default 60s if
// <= 0) and hands due executions to executor. store is an optional
// bbolt-backed journal (storage.BucketExecutions) that every completed
// execution is additionally appended to; a nil store keeps executions
// in the in-memory per-job history ring only.
func New(executor Executor, checkInterval time.Duration, store *storage.DB) *Manager {
	if checkInterval <= 0 {
		checkInterval = 60 * time.Second
	}
	return &Manager{
		executor:      executor,
		checkInterval: checkInterval,
		logger:        log.WithComponent("scheduler"),
		store:         store,
		jobs:          make(map[string]*jobState),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Add registers spec, computing its first next_fire immediately.
func (m *Manager) Add(spec types.ScheduledJobSpec) error {
	sched, err := cron.Parse(spec.CronExpression)
	if err != nil {
		return err
	}
	loc, err := resolveLocation(spec.Timezone)
	if err != nil {
		return err
	}

	next, err := sched.NextFire(time.Now().UTC(), loc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[spec.JobID] = &jobState{spec: spec, nextFire: next}
	return nil
}

// Remove deregisters jobID. Removing an unknown job is a no-op.
func (m *Manager) Remove(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
}

// Start begins the background tick loop.
func (m *Manager) Start() {
	go m.run()
}

// Stop halts the tick loop and waits for the in-flight tick, if any, to
// finish.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) tick() {
	now := time.Now().UTC()

	m.mu.Lock()
	due := make([]string, 0)
	for jobID, st := range m.jobs {
		if st.running {
			continue
		}
		if st.pendingRetryAt != nil {
			if now.Before(*st.pendingRetryAt) {
				continue
			}
		} else if now.Before(st.nextFire) {
			continue
		}
		if !m.withinWindow(st, now) {
			continue
		}
		due = append(due, jobID)
	}
	m.mu.Unlock()

	for _, jobID := range due {
		m.fire(jobID)
	}
}

// withinWindow reports whether st may still execute, accounting for
// start_date/end_date/max_executions. Must be called with mu held.
func (m *Manager) withinWindow(st *jobState, now time.Time) bool {
	if st.spec.StartDate != nil && now.Before(*st.spec.StartDate) {
		return false
	}
	if st.spec.EndDate != nil && now.After(*st.spec.EndDate) {
		return false
	}
	if st.spec.MaxExecutions != nil && st.executionCount >= *st.spec.MaxExecutions {
		return false
	}
	return true
}

// fire runs one execution of jobID's scheduled spec, skipping if an
// execution for the same job is already in flight (no-overlap policy).
func (m *Manager) fire(jobID string) {
	m.mu.Lock()
	st, ok := m.jobs[jobID]
	if !ok || st.running {
		if ok {
			m.stats.SkippedOverlaps++
		}
		m.mu.Unlock()
		return
	}
	st.running = true
	attempt := st.pendingRetryAttempt + 1
	spec := st.spec
	m.mu.Unlock()

	record := types.ExecutionRecord{
		ExecutionID:   uuid.NewString(),
		JobID:         jobID,
		ScheduledTime: time.Now().UTC(),
		Status:        types.ExecutionStatusPending,
		AttemptNumber: attempt,
	}

	start := time.Now().UTC()
	record.ActualStartTime = &start
	record.Status = types.ExecutionStatusRunning

	ctx := context.Background()
	if spec.ExecutionTimeoutS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(spec.ExecutionTimeoutS)*time.Second)
		defer cancel()
	}

	timer := metrics.NewTimer()
	result := m.executor.ReconcileJob(ctx, spec.JobSpec)
	timer.ObserveDuration(metrics.SchedulerExecutionDuration)

	end := time.Now().UTC()
	record.EndTime = &end
	record.DurationMs = end.Sub(start).Milliseconds()

	if result.Success {
		record.Status = types.ExecutionStatusSuccess
	} else {
		record.Status = types.ExecutionStatusFailed
		record.ErrorMessage = result.ErrorMessage
	}

	metrics.SchedulerExecutionsTotal.WithLabelValues(string(record.Status)).Inc()
	log.WithExecutionID(log.WithJobID(m.logger, jobID), record.ExecutionID).Info().
		Str("status", string(record.Status)).
		Int("attempt", attempt).
		Msg("scheduled execution completed")

	m.afterExecution(jobID, record, spec)
}

func (m *Manager) afterExecution(jobID string, record types.ExecutionRecord, spec types.ScheduledJobSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[jobID]
	if !ok {
		return
	}

	st.running = false
	st.executionCount++
	st.history = appendBounded(st.history, record)
	m.persistExecution(jobID, record)

	m.stats.TotalExecutions++
	if record.Status == types.ExecutionStatusSuccess {
		m.stats.SuccessfulExecutions++
		st.pendingRetryAt = nil
		st.pendingRetryAttempt = 0
	} else {
		m.stats.FailedExecutions++
		if record.AttemptNumber <= spec.MaxRetries {
			retryAt := time.Now().UTC().Add(time.Duration(spec.RetryDelayS) * time.Second)
			st.pendingRetryAt = &retryAt
			st.pendingRetryAttempt = record.AttemptNumber
			return
		}
		st.pendingRetryAt = nil
		st.pendingRetryAttempt = 0
	}

	sched, err := cron.Parse(spec.CronExpression)
	if err != nil {
		return
	}
	loc, err := resolveLocation(spec.Timezone)
	if err != nil {
		return
	}
	next, err := sched.NextFire(time.Now().UTC(), loc)
	if err != nil {
		m.logger.Warn().Str("job_id", jobID).Err(err).Msg("could not compute next fire time")
		return
	}
	st.nextFire = next
}

// persistExecution appends record to the durable execution journal, if
// one is configured. Must be called with mu held.
func (m *Manager) persistExecution(jobID string, record types.ExecutionRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.AppendOnly(storage.BucketExecutions, record); err != nil {
		log.WithJobID(m.logger, jobID).Warn().Err(err).Msg("failed to persist execution record")
	}
}

func appendBounded(history []types.ExecutionRecord, record types.ExecutionRecord) []types.ExecutionRecord {
	history = append(history, record)
	if len(history) > maxHistoryPerJob {
		history = history[len(history)-maxHistoryPerJob:]
	}
	return history
}

// History returns up to limit most-recent execution records for jobID.
func (m *Manager) History(jobID string, limit int) []types.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	hist := st.history
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]types.ExecutionRecord, len(hist))
	copy(out, hist)
	return out
}

// Statistics returns a snapshot of scheduler-wide execution counters.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func resolveLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}
