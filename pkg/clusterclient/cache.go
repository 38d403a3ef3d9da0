package clusterclient

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/flowctl/reconctl/pkg/metrics"
	"github.com/flowctl/reconctl/pkg/types"
)

// CachedClient wraps a Client with a short-TTL cache over GetJob,
// grounded on the original controller's job_status_cache (a 30s-TTL
// LRU sitting in front of repeated status lookups in
// src/core/performance.py's PerformanceOptimizer) and on this
// repository's own use of github.com/hashicorp/golang-lru/v2 for
// bounded in-memory caching (see estuary-flow's SNI cache). Every
// mutating call invalidates the cached entry for the affected job so a
// deploy/stop/restart is never masked by a stale read.
type CachedClient struct {
	Client
	cache *lru.LRU[string, types.ObservedState]
}

// NewCached wraps client with a GetJob cache holding up to size
// entries for ttl. A zero or negative size is treated as 1, so the
// cache always holds at least one entry.
func NewCached(client Client, size int, ttl time.Duration) *CachedClient {
	if size <= 0 {
		size = 1
	}
	return &CachedClient{
		Client: client,
		cache:  lru.NewLRU[string, types.ObservedState](size, nil, ttl),
	}
}

// GetJob returns the cached observed state for jobID if present and
// unexpired, otherwise delegates to the wrapped client and caches the
// result.
func (c *CachedClient) GetJob(ctx context.Context, jobID string) (types.ObservedState, error) {
	if state, ok := c.cache.Get(jobID); ok {
		metrics.ClusterClientCacheTotal.WithLabelValues("hit").Inc()
		return state, nil
	}
	metrics.ClusterClientCacheTotal.WithLabelValues("miss").Inc()

	state, err := c.Client.GetJob(ctx, jobID)
	if err != nil {
		return types.ObservedState{}, err
	}
	c.cache.Add(jobID, state)
	return state, nil
}

// Deploy delegates to the wrapped client and purges the whole cache,
// since Deploy is keyed by artifact path rather than the domain job
// id the cache is keyed by, so there is no single entry to target;
// a stale "absent" or "stopped" entry left behind would otherwise
// mask the newly deployed job until its TTL expires.
func (c *CachedClient) Deploy(ctx context.Context, artifactPath string, cfg DeployConfig) (string, error) {
	jobID, err := c.Client.Deploy(ctx, artifactPath, cfg)
	if err == nil {
		c.cache.Purge()
	}
	return jobID, err
}

// Stop delegates to the wrapped client and invalidates jobID's cached
// state.
func (c *CachedClient) Stop(ctx context.Context, jobID string, opts StopOptions) (string, error) {
	ref, err := c.Client.Stop(ctx, jobID, opts)
	c.cache.Remove(jobID)
	return ref, err
}

// Cancel delegates to the wrapped client and invalidates jobID's
// cached state.
func (c *CachedClient) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := c.Client.Cancel(ctx, jobID)
	c.cache.Remove(jobID)
	return ok, err
}
