// Package health exposes the controller's own liveness over HTTP: a
// single endpoint reporting whether the reconciliation engine can
// presently reach the cluster and how many reconciliations are active,
// styled after the teacher's pkg/health checker/Result shape but
// repurposed from checking workload containers to checking the
// controller process itself.
package health

import (
	"context"
	"time"
)

// Reporter is the subset of reconciler.Engine that the health endpoint
// needs, named as a capability interface so this package does not
// import pkg/reconciler.
type Reporter interface {
	Health(ctx context.Context) bool
	ActiveReconciliations() map[string]time.Time
}

// Result is the outcome of one self-health evaluation.
type Result struct {
	Healthy               bool      `json:"healthy"`
	ActiveReconciliations int       `json:"active_reconciliations"`
	CheckedAt             time.Time `json:"checked_at"`
}

// Check evaluates r's current health.
func Check(ctx context.Context, r Reporter) Result {
	return Result{
		Healthy:               r.Health(ctx),
		ActiveReconciliations: len(r.ActiveReconciliations()),
		CheckedAt:             time.Now().UTC(),
	}
}
