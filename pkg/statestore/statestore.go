// Package statestore provides an optional, durable (job_id → last known
// observed state) collaborator used for diagnostics and restart
// decisions. It is layered on the same pkg/storage bucket convention as
// pkg/tracker, kept as a distinct bucket (state_store) since its
// lifecycle — overwritten on every reconciliation, never append-only —
// differs from the tracker's change history.
package statestore

import (
	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/types"
)

// Store persists the last observed state per job_id.
type Store struct {
	db *storage.DB
}

// New wraps db for state-store access. db's buckets, including
// state_store, are created by storage.Open.
func New(db *storage.DB) *Store {
	return &Store{db: db}
}

// Put records state as the last known observed state for its JobID.
func (s *Store) Put(state types.ObservedState) error {
	if err := s.db.Put(storage.BucketStateStore, state.JobID, state); err != nil {
		return errs.Wrap(errs.CodeStateStoreError, state.JobID, err)
	}
	return nil
}

// Get returns the last known observed state for jobID, and whether one
// was found.
func (s *Store) Get(jobID string) (types.ObservedState, bool, error) {
	var state types.ObservedState
	found, err := s.db.Get(storage.BucketStateStore, jobID, &state)
	if err != nil {
		return types.ObservedState{}, false, errs.Wrap(errs.CodeStateStoreError, jobID, err)
	}
	return state, found, nil
}

// Delete removes the last known observed state for jobID.
func (s *Store) Delete(jobID string) error {
	if err := s.db.Delete(storage.BucketStateStore, jobID); err != nil {
		return errs.Wrap(errs.CodeStateStoreError, jobID, err)
	}
	return nil
}
