package clusterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/metrics"
	"github.com/flowctl/reconctl/pkg/types"
)

// HTTPClient implements Client against the cluster's REST admin
// surface, following the teacher's one-timeout-per-call idiom
// (context.WithTimeout wrapping every request, errors wrapped with
// fmt.Errorf("...: %w", err)) translated from gRPC calls to HTTP
// round-trips.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPClient creates an HTTPClient against baseURL (e.g.
// "http://jobmanager:8081") with the given per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	timer := metrics.NewTimer()
	resp, err := c.httpClient.Do(req)
	timer.ObserveDurationVec(metrics.ClusterAPIRequestDuration, method)
	if err != nil {
		metrics.ClusterAPIRequestsTotal.WithLabelValues(method, "error").Inc()
		return 0, fmt.Errorf("calling cluster API %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	metrics.ClusterAPIRequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response from %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// Health calls GET /config as a liveness probe, matching the teacher's
// pattern of a cheap always-available endpoint for health checks.
func (c *HTTPClient) Health(ctx context.Context) (bool, error) {
	status, err := c.do(ctx, http.MethodGet, "/config", nil, nil)
	if err != nil {
		return false, errs.Wrap(errs.CodeFlinkClusterUnavailable, "", err)
	}
	return status < 300, nil
}

type jobOverview struct {
	JobID         string `json:"jid"`
	State         string `json:"state"`
	LastSavepoint string `json:"last-savepoint,omitempty"`
}

// GetJob calls GET /jobs/{id}.
func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (types.ObservedState, error) {
	var overview jobOverview
	status, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, &overview)
	if err != nil {
		return types.ObservedState{}, errs.Wrap(errs.CodeFlinkClusterUnavailable, jobID, err)
	}
	if status == http.StatusNotFound {
		return types.ObservedState{}, errs.New(errs.CodeJobNotFound, "job not found on cluster").WithContext(map[string]string{"job_id": jobID})
	}
	if status >= 300 {
		return types.ObservedState{}, errs.New(errs.CodeFlinkAPIError, fmt.Sprintf("unexpected status %d", status)).WithContext(map[string]string{"job_id": jobID})
	}

	return types.ObservedState{
		JobID:         jobID,
		Phase:         mapPhase(overview.State),
		LastSavepoint: overview.LastSavepoint,
		ObservedAt:    time.Now().UTC(),
	}, nil
}

func mapPhase(clusterState string) types.JobPhase {
	switch clusterState {
	case "RUNNING":
		return types.JobPhaseRunning
	case "FINISHED", "CANCELED", "CANCELLED":
		return types.JobPhaseStopped
	case "FAILED":
		return types.JobPhaseFailed
	case "RESTARTING":
		return types.JobPhaseRestarting
	case "":
		return types.JobPhaseAbsent
	default:
		return types.JobPhaseUnknown
	}
}

type runJobRequest struct {
	ProgramArgs           []string `json:"programArgs,omitempty"`
	Parallelism           int      `json:"parallelism,omitempty"`
	SavepointPath         string   `json:"savepointPath,omitempty"`
	AllowNonRestoredState bool     `json:"allowNonRestoredState,omitempty"`
}

type runJobResponse struct {
	JobID string `json:"jobid"`
}

// Deploy calls POST /jars/{jarId}/run.
func (c *HTTPClient) Deploy(ctx context.Context, artifactPath string, cfg DeployConfig) (string, error) {
	req := runJobRequest{
		ProgramArgs:           cfg.ProgramArgs,
		Parallelism:           cfg.Parallelism,
		SavepointPath:         cfg.SavepointPath,
		AllowNonRestoredState: cfg.AllowNonRestoredState,
	}
	var resp runJobResponse
	status, err := c.do(ctx, http.MethodPost, "/jars/"+artifactPath+"/run", req, &resp)
	if err != nil {
		return "", errs.Wrap(errs.CodeJobDeploymentFailed, "", err)
	}
	if status >= 300 {
		return "", errs.New(errs.CodeJobDeploymentFailed, fmt.Sprintf("deploy rejected with status %d", status))
	}
	return resp.JobID, nil
}

type stopJobRequest struct {
	TargetDirectory string `json:"targetDirectory,omitempty"`
	Drain           bool   `json:"drain"`
}

type stopJobResponse struct {
	RequestID string `json:"request-id"`
}

// Stop calls POST /jobs/{id}/stop, then polls the same savepoint-status
// endpoint Update uses until the triggered savepoint completes or fails.
func (c *HTTPClient) Stop(ctx context.Context, jobID string, opts StopOptions) (string, error) {
	req := stopJobRequest{TargetDirectory: opts.SavepointDir, Drain: opts.Drain}
	var resp stopJobResponse
	status, err := c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/stop", req, &resp)
	if err != nil {
		return "", errs.Wrap(errs.CodeFlinkAPIError, jobID, err)
	}
	if status >= 300 {
		return "", errs.New(errs.CodeFlinkAPIError, fmt.Sprintf("stop rejected with status %d", status)).WithContext(map[string]string{"job_id": jobID})
	}
	if opts.SavepointDir == "" || resp.RequestID == "" {
		return "", nil
	}

	final, err := c.pollSavepoint(ctx, jobID, resp.RequestID)
	if err != nil {
		return "", err
	}
	if final.State == SavepointFailed {
		return "", errs.New(errs.CodeSavepointCreationFailed, final.Reason).WithContext(map[string]string{"job_id": jobID})
	}
	return final.Ref, nil
}

type savepointTriggerResponse struct {
	RequestID string `json:"request-id"`
}

// TriggerSavepoint calls POST /jobs/{id}/savepoints.
func (c *HTTPClient) TriggerSavepoint(ctx context.Context, jobID, dir string) (string, error) {
	req := map[string]interface{}{"target-directory": dir, "cancel-job": false}
	var resp savepointTriggerResponse
	status, err := c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/savepoints", req, &resp)
	if err != nil {
		return "", errs.Wrap(errs.CodeSavepointCreationFailed, jobID, err)
	}
	if status >= 300 {
		return "", errs.New(errs.CodeSavepointCreationFailed, fmt.Sprintf("trigger rejected with status %d", status)).WithContext(map[string]string{"job_id": jobID})
	}
	return resp.RequestID, nil
}

type savepointStatusResponse struct {
	Status struct {
		ID string `json:"id"`
	} `json:"status"`
	Operation struct {
		Location     string `json:"location"`
		FailureCause string `json:"failure-cause"`
	} `json:"operation"`
}

// SavepointStatus calls GET /jobs/{id}/savepoints/{requestId}.
func (c *HTTPClient) SavepointStatus(ctx context.Context, jobID, requestID string) (SavepointStatus, error) {
	var resp savepointStatusResponse
	status, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/savepoints/"+requestID, nil, &resp)
	if err != nil {
		return SavepointStatus{}, errs.Wrap(errs.CodeSavepointCreationFailed, jobID, err)
	}
	if status >= 300 {
		return SavepointStatus{}, errs.New(errs.CodeSavepointCreationFailed, fmt.Sprintf("status poll rejected with status %d", status)).WithContext(map[string]string{"job_id": jobID})
	}

	switch resp.Status.ID {
	case "IN_PROGRESS":
		return SavepointStatus{State: SavepointInProgress}, nil
	case "COMPLETED":
		if resp.Operation.FailureCause != "" {
			return SavepointStatus{State: SavepointFailed, Reason: resp.Operation.FailureCause}, nil
		}
		return SavepointStatus{State: SavepointCompleted, Ref: resp.Operation.Location}, nil
	default:
		return SavepointStatus{State: SavepointInProgress}, nil
	}
}

func (c *HTTPClient) pollSavepoint(ctx context.Context, jobID, requestID string) (SavepointStatus, error) {
	const pollInterval = 2 * time.Second
	for {
		status, err := c.SavepointStatus(ctx, jobID, requestID)
		if err != nil {
			return SavepointStatus{}, err
		}
		if status.State != SavepointInProgress {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return SavepointStatus{}, errs.Wrap(errs.CodeReconciliationTimeout, jobID, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Cancel calls PATCH /jobs/{id}.
func (c *HTTPClient) Cancel(ctx context.Context, jobID string) (bool, error) {
	status, err := c.do(ctx, http.MethodPatch, "/jobs/"+jobID, nil, nil)
	if err != nil {
		return false, errs.Wrap(errs.CodeFlinkAPIError, jobID, err)
	}
	return status < 300, nil
}
