package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/flowctl/reconctl/pkg/clusterclient"
	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/log"
	"github.com/flowctl/reconctl/pkg/types"
)

// executePipeline runs observation, decision, and execution for spec,
// producing the final result. The exclusion has already been acquired
// and released by the caller.
func (e *Engine) executePipeline(ctx context.Context, spec types.JobSpec, start time.Time) types.ReconciliationResult {
	observed, err := e.observe(ctx, spec.JobID)
	if err != nil {
		return e.failedResult(spec.JobID, types.ActionNoAction, err, time.Since(start).Milliseconds())
	}

	action := decide(observed, e.hasChanged(spec), spec.JobType)

	err = e.execute(ctx, action, spec, observed)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return e.failedResult(spec.JobID, action, err, durationMs)
	}

	return types.ReconciliationResult{
		JobID:        spec.JobID,
		ActionTaken:  action,
		Success:      true,
		DurationMs:   durationMs,
		ReconciledAt: time.Now().UTC(),
		Context:      map[string]string{},
	}
}

// observe calls the cluster client through the breaker and maps the
// result to an ObservedState, distinguishing breaker-open, not-found,
// and other transient cluster faults.
func (e *Engine) observe(ctx context.Context, jobID string) (types.ObservedState, error) {
	var observed types.ObservedState

	err := e.breaker.Call(func() error {
		state, getErr := e.client.GetJob(ctx, jobID)
		if getErr != nil {
			if code, ok := errs.CodeOf(getErr); ok && code == errs.CodeJobNotFound {
				observed = types.ObservedState{JobID: jobID, Phase: types.JobPhaseAbsent}
				return nil
			}
			return getErr
		}
		observed = state
		return nil
	}, isBreakerEligible)

	if err != nil {
		if code, ok := errs.CodeOf(err); ok && code == errs.CodeCircuitBreakerOpen {
			return types.ObservedState{}, err
		}
		return types.ObservedState{}, errs.Wrap(errs.CodeFlinkClusterUnavailable, jobID, err)
	}

	if e.states != nil {
		_ = e.states.Put(observed)
	}
	return observed, nil
}

// isBreakerEligible reports whether err should count against the
// breaker: only transient cluster faults do, not logical faults like
// job-not-found.
func isBreakerEligible(err error) bool {
	code, ok := errs.CodeOf(err)
	if !ok {
		return true
	}
	switch code {
	case errs.CodeJobNotFound, errs.CodeSpecValidationFailed, errs.CodeJobStateInvalid:
		return false
	default:
		return true
	}
}

// hasChanged reports whether spec differs from the tracker's last
// recorded hash. With no tracker wired, unchanged running jobs are
// treated as no_action rather than forcing spurious updates.
func (e *Engine) hasChanged(spec types.JobSpec) bool {
	if e.tracker == nil {
		return false
	}
	return e.tracker.HasChanged(spec.JobID, spec)
}

// decide implements the observed-state × desired-spec decision table.
func decide(observed types.ObservedState, changed bool, jobType types.JobType) types.ReconciliationAction {
	switch observed.Phase {
	case types.JobPhaseAbsent, types.JobPhaseUnknown:
		return types.ActionDeploy
	case types.JobPhaseFailed:
		return types.ActionRestart
	case types.JobPhaseStopped:
		return types.ActionDeploy
	case types.JobPhaseRestarting:
		return types.ActionNoAction
	case types.JobPhaseRunning:
		if !changed {
			return types.ActionNoAction
		}
		if jobType == types.JobTypeBatch {
			return types.ActionStop
		}
		return types.ActionUpdate
	default:
		return types.ActionNoAction
	}
}

// execute dispatches to the per-action handler and, on success, updates
// the tracker as the decision table requires.
func (e *Engine) execute(ctx context.Context, action types.ReconciliationAction, spec types.JobSpec, observed types.ObservedState) error {
	switch action {
	case types.ActionDeploy:
		return e.executeDeploy(ctx, spec, spec.SavepointPath)
	case types.ActionUpdate:
		return e.executeUpdate(ctx, spec)
	case types.ActionStop:
		return e.executeStop(ctx, spec)
	case types.ActionRestart:
		savepoint := observed.LastSavepoint
		return e.executeDeploy(ctx, spec, savepoint)
	case types.ActionNoAction:
		return nil
	default:
		return errs.New(errs.CodeReconciliationFailed, fmt.Sprintf("unknown action %q", action))
	}
}

func (e *Engine) executeDeploy(ctx context.Context, spec types.JobSpec, savepointPath string) error {
	cfg := clusterclient.DeployConfig{
		Parallelism:   spec.Parallelism,
		SavepointPath: savepointPath,
	}
	if _, err := e.client.Deploy(ctx, spec.ArtifactPath, cfg); err != nil {
		return errs.Wrap(errs.CodeJobDeploymentFailed, spec.JobID, err)
	}
	e.updateTrackerAfterMutation(spec)
	return nil
}

func (e *Engine) executeStop(ctx context.Context, spec types.JobSpec) error {
	if _, err := e.client.Stop(ctx, spec.JobID, clusterclient.StopOptions{}); err != nil {
		return errs.Wrap(errs.CodeFlinkAPIError, spec.JobID, err)
	}
	// stop does not update the tracker: the next cycle observes
	// "stopped" and redeploys, at which point the tracker is updated.
	return nil
}

// executeUpdate performs the streaming-only savepoint-and-redeploy
// sequence. Any step failure is surfaced without leaving the prior
// running job stopped without a follow-up deploy attempt in the same
// reconciliation: a deploy failure after a successful stop still
// returns an error, but the next reconciliation observes "stopped" and
// retries a deploy.
func (e *Engine) executeUpdate(ctx context.Context, spec types.JobSpec) error {
	savepointDir := savepointDir(spec.JobID)

	requestID, err := e.client.TriggerSavepoint(ctx, spec.JobID, savepointDir)
	if err != nil {
		return errs.Wrap(errs.CodeSavepointCreationFailed, spec.JobID, err)
	}

	ref, err := e.pollSavepoint(ctx, spec.JobID, requestID)
	if err != nil {
		return err
	}

	if _, err := e.client.Stop(ctx, spec.JobID, clusterclient.StopOptions{}); err != nil {
		return errs.Wrap(errs.CodeJobDeploymentFailed, spec.JobID, err)
	}

	if err := e.executeDeploy(ctx, spec, ref); err != nil {
		return err
	}
	return nil
}

func (e *Engine) pollSavepoint(ctx context.Context, jobID, requestID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SavepointPollTimeout)
	defer cancel()

	const pollInterval = 2 * time.Second
	for {
		status, err := e.client.SavepointStatus(ctx, jobID, requestID)
		if err != nil {
			return "", errs.Wrap(errs.CodeSavepointCreationFailed, jobID, err)
		}
		switch status.State {
		case clusterclient.SavepointCompleted:
			return status.Ref, nil
		case clusterclient.SavepointFailed:
			return "", errs.New(errs.CodeSavepointCreationFailed, status.Reason).WithContext(map[string]string{"job_id": jobID})
		}

		select {
		case <-ctx.Done():
			return "", errs.Wrap(errs.CodeReconciliationTimeout, jobID, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (e *Engine) updateTrackerAfterMutation(spec types.JobSpec) {
	if e.tracker == nil {
		return
	}
	if err := e.tracker.UpdateTracker(spec.JobID, spec); err != nil {
		log.WithJobID(e.logger, spec.JobID).Warn().Err(err).Msg("tracker write failed after successful cluster mutation")
	}
}

func savepointDir(jobID string) string {
	return fmt.Sprintf("/savepoints/%s", jobID)
}
