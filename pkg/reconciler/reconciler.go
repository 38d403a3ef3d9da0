// Package reconciler implements the core control loop: per job,
// observe cluster state, decide an action against the desired spec,
// execute it, and record the outcome. Bounded concurrency and the
// logger/metrics-timer shape are grounded on the teacher's
// pkg/reconciler.Reconciler; the per-job decision table and execution
// pipeline are this domain's own, built to the exact contract the
// collaborators (breaker, tracker, cluster client) expose.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowctl/reconctl/pkg/breaker"
	"github.com/flowctl/reconctl/pkg/clusterclient"
	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/log"
	"github.com/flowctl/reconctl/pkg/metrics"
	"github.com/flowctl/reconctl/pkg/statestore"
	"github.com/flowctl/reconctl/pkg/tracker"
	"github.com/flowctl/reconctl/pkg/types"
	"github.com/rs/zerolog"
)

// Config tunes the engine's concurrency and timeouts.
type Config struct {
	MaxConcurrentReconciliations int
	ReconciliationTimeout        time.Duration
	SavepointPollTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentReconciliations <= 0 {
		c.MaxConcurrentReconciliations = 10
	}
	if c.ReconciliationTimeout <= 0 {
		c.ReconciliationTimeout = 300 * time.Second
	}
	if c.SavepointPollTimeout <= 0 {
		c.SavepointPollTimeout = 120 * time.Second
	}
	return c
}

// activeEntry records when a job's in-flight reconciliation started,
// for CONCURRENT_RECONCILIATION detection and crash-recovery cleanup.
type activeEntry struct {
	startedAt time.Time
}

// Engine is the reconciliation engine. It is safe for concurrent use.
type Engine struct {
	client  clusterclient.Client
	breaker *breaker.Breaker
	tracker *tracker.Tracker
	states  *statestore.Store
	cfg     Config
	logger  zerolog.Logger

	activeMu sync.Mutex
	active   map[string]activeEntry

	statsMu sync.Mutex
	stats   Statistics
}

// Statistics is a snapshot of engine-wide counters. ReconcileAll folds
// each batch's results in under lock once the batch completes;
// ConcurrentAttempts is incremented as each exclusion is rejected.
type Statistics struct {
	TotalJobs          int
	Successful         int
	Failed             int
	ConcurrentAttempts int
	AvgDurationMs      float64
	ActionsTaken       map[types.ReconciliationAction]int
	ErrorCodes         map[errs.Code]int
	observedDurationsN int
}

func newStatistics() Statistics {
	return Statistics{
		ActionsTaken: make(map[types.ReconciliationAction]int),
		ErrorCodes:   make(map[errs.Code]int),
	}
}

// New creates an Engine. states may be nil, in which case observed
// states are not persisted.
func New(client clusterclient.Client, br *breaker.Breaker, tr *tracker.Tracker, states *statestore.Store, cfg Config) *Engine {
	return &Engine{
		client:  client,
		breaker: br,
		tracker: tr,
		states:  states,
		cfg:     cfg.withDefaults(),
		logger:  log.WithComponent("reconciler"),
		active:  make(map[string]activeEntry),
		stats:   newStatistics(),
	}
}

// ReconcileAll fans out one reconciliation per spec with bounded
// concurrency, returning a result per input in the same order.
// Individual task failures never abort the batch.
func (e *Engine) ReconcileAll(ctx context.Context, specs []types.JobSpec) []types.ReconciliationResult {
	results := make([]types.ReconciliationResult, len(specs))
	sem := make(chan struct{}, e.cfg.MaxConcurrentReconciliations)

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, spec types.JobSpec) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.reconcileJobSafe(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	e.updateBatchStatistics(results)
	return results
}

// reconcileJobSafe recovers from panics in ReconcileJob, converting
// them into a failed result — reconcile_all is total.
func (e *Engine) reconcileJobSafe(ctx context.Context, spec types.JobSpec) (result types.ReconciliationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = e.failedResult(spec.JobID, types.ActionNoAction, errs.New(errs.CodeReconciliationFailed, fmt.Sprintf("panic: %v", r)), 0)
		}
	}()
	return e.ReconcileJob(ctx, spec)
}

// ReconcileJob runs the full per-job pipeline: exclusion check,
// observation, decision, execution, cleanup.
func (e *Engine) ReconcileJob(ctx context.Context, spec types.JobSpec) types.ReconciliationResult {
	start := time.Now()
	timer := metrics.NewTimer()

	if err := e.acquireExclusion(spec.JobID); err != nil {
		return e.failedResult(spec.JobID, types.ActionNoAction, err, 0)
	}
	defer e.releaseExclusion(spec.JobID)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReconciliationTimeout)
	defer cancel()

	result := e.executePipeline(ctx, spec, start)

	timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationsTotal.WithLabelValues(string(result.ActionTaken), fmt.Sprintf("%t", result.Success)).Inc()
	metrics.CircuitBreakerState.Set(metrics.BreakerStateValue(string(e.breaker.State())))

	log.WithJobID(e.logger, spec.JobID).Info().
		Str("action", string(result.ActionTaken)).
		Bool("success", result.Success).
		Str("error_code", result.ErrorCode).
		Int64("duration_ms", result.DurationMs).
		Msg("reconciliation complete")

	return result
}

// acquireExclusion implements the exclusion-check step: if job_id is
// already active and within the timeout, fail with
// CONCURRENT_RECONCILIATION; if active but stale, clear it (crash
// recovery) and proceed.
func (e *Engine) acquireExclusion(jobID string) error {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	if entry, ok := e.active[jobID]; ok {
		if time.Since(entry.startedAt) <= e.cfg.ReconciliationTimeout {
			e.statsMu.Lock()
			e.stats.ConcurrentAttempts++
			e.statsMu.Unlock()
			return errs.New(errs.CodeConcurrentReconciliation, "reconciliation already in flight").
				WithContext(map[string]string{
					"job_id":     jobID,
					"started_at": entry.startedAt.Format(time.RFC3339),
				})
		}
		// Stale entry from a crashed task; recover.
	}

	e.active[jobID] = activeEntry{startedAt: time.Now()}
	metrics.ActiveReconciliations.Set(float64(len(e.active)))
	return nil
}

func (e *Engine) releaseExclusion(jobID string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	delete(e.active, jobID)
	metrics.ActiveReconciliations.Set(float64(len(e.active)))
}

// ActiveReconciliations returns a snapshot of job_id → started_at for
// every reconciliation currently in flight.
func (e *Engine) ActiveReconciliations() map[string]time.Time {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	out := make(map[string]time.Time, len(e.active))
	for jobID, entry := range e.active {
		out[jobID] = entry.startedAt
	}
	return out
}

// Health reports whether the engine can presently reconcile: the
// cluster must be reachable and the breaker must not be open.
func (e *Engine) Health(ctx context.Context) bool {
	if e.breaker.State() == breaker.StateOpen {
		return false
	}
	ok, err := e.client.Health(ctx)
	return err == nil && ok
}

// Statistics returns a snapshot of engine-wide counters.
func (e *Engine) Statistics() Statistics {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	snapshot := newStatistics()
	snapshot.TotalJobs = e.stats.TotalJobs
	snapshot.Successful = e.stats.Successful
	snapshot.Failed = e.stats.Failed
	snapshot.ConcurrentAttempts = e.stats.ConcurrentAttempts
	snapshot.AvgDurationMs = e.stats.AvgDurationMs
	for k, v := range e.stats.ActionsTaken {
		snapshot.ActionsTaken[k] = v
	}
	for k, v := range e.stats.ErrorCodes {
		snapshot.ErrorCodes[k] = v
	}
	return snapshot
}

func (e *Engine) updateBatchStatistics(results []types.ReconciliationResult) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	for _, r := range results {
		e.stats.TotalJobs++
		if r.Success {
			e.stats.Successful++
		} else {
			e.stats.Failed++
		}
		e.stats.ActionsTaken[r.ActionTaken]++
		if r.ErrorCode != "" {
			e.stats.ErrorCodes[errs.Code(r.ErrorCode)]++
		}
		if r.DurationMs > 0 {
			n := e.stats.observedDurationsN
			e.stats.AvgDurationMs = (e.stats.AvgDurationMs*float64(n) + float64(r.DurationMs)) / float64(n+1)
			e.stats.observedDurationsN = n + 1
		}
	}
}

func (e *Engine) failedResult(jobID string, action types.ReconciliationAction, err error, durationMs int64) types.ReconciliationResult {
	code, message, ctxMap := classify(err)
	return types.ReconciliationResult{
		JobID:        jobID,
		ActionTaken:  action,
		Success:      false,
		ErrorCode:    string(code),
		ErrorMessage: message,
		DurationMs:   durationMs,
		ReconciledAt: time.Now().UTC(),
		Context:      ctxMap,
	}
}

func classify(err error) (errs.Code, string, map[string]string) {
	if ce, ok := err.(*errs.ControllerError); ok {
		return ce.Code, ce.Message, ce.Context
	}
	return errs.CodeReconciliationFailed, err.Error(), nil
}
