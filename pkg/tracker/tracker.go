// Package tracker computes deterministic spec hashes and maintains a
// durable, append-only history of detected desired-spec changes, styled
// after the teacher's pkg/storage bucket-per-entity convention but
// generalized to this domain's tracked_specs/change_history collections.
package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowctl/reconctl/pkg/errs"
	"github.com/flowctl/reconctl/pkg/metrics"
	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Tracker is the durable change tracker: an in-memory cache of the last
// known hash per job_id, backed by a transactional store and an
// append-only change history.
type Tracker struct {
	db *storage.DB

	mu    sync.Mutex
	cache map[string]types.TrackedHash
}

// New opens db and reloads the in-memory cache from tracked_specs.
func New(db *storage.DB) (*Tracker, error) {
	t := &Tracker{db: db, cache: make(map[string]types.TrackedHash)}
	if err := t.reload(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) reload() error {
	return t.db.ForEach(storage.BucketTrackedSpecs, func(key string, value []byte) error {
		var th types.TrackedHash
		if err := unmarshalInto(value, &th); err != nil {
			return fmt.Errorf("reloading tracked hash for %s: %w", key, err)
		}
		t.cache[th.JobID] = th
		return nil
	})
}

// HasChanged reports whether spec's canonical hash differs from the
// last recorded hash for spec.JobID, or whether no prior hash exists at
// all.
func (t *Tracker) HasChanged(jobID string, spec types.JobSpec) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior, ok := t.cache[jobID]
	if !ok {
		return true
	}
	return prior.CanonicalHash != Hash(spec)
}

// UpdateTracker upserts (job_id, hash, now) into both the in-memory
// cache and the durable store, preserving the original FirstSeenAt on
// update.
func (t *Tracker) UpdateTracker(jobID string, spec types.JobSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(jobID, spec)
}

func (t *Tracker) updateLocked(jobID string, spec types.JobSpec) error {
	now := time.Now().UTC()
	hash := Hash(spec)

	th, existed := t.cache[jobID]
	if !existed {
		th = types.TrackedHash{JobID: jobID, FirstSeenAt: now}
	}
	th.CanonicalHash = hash
	th.LastUpdatedAt = now

	if err := t.db.Put(storage.BucketTrackedSpecs, jobID, th); err != nil {
		return errs.Wrap(errs.CodeStateStoreError, jobID, err)
	}
	t.cache[jobID] = th
	return nil
}

// DetectChanges diffs the in-memory cache against currentSpecs, keyed
// by job_id, yielding a ChangeRecord per created/updated/deleted job.
// It does not mutate the cache or the durable store; callers decide
// whether and when to RecordChange the results.
func (t *Tracker) DetectChanges(currentSpecs []types.JobSpec) []types.ChangeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	seen := make(map[string]bool, len(currentSpecs))
	var changes []types.ChangeRecord

	for _, spec := range currentSpecs {
		seen[spec.JobID] = true
		newHash := Hash(spec)
		prior, existed := t.cache[spec.JobID]

		switch {
		case !existed:
			changes = append(changes, types.ChangeRecord{
				JobID:     spec.JobID,
				NewHash:   newHash,
				ChangedAt: now,
				Kind:      types.ChangeKindCreated,
			})
		case prior.CanonicalHash != newHash:
			prevHash := prior.CanonicalHash
			changes = append(changes, types.ChangeRecord{
				JobID:     spec.JobID,
				NewHash:   newHash,
				PrevHash:  prevHash,
				ChangedAt: now,
				Kind:      types.ChangeKindUpdated,
			})
		}
	}

	for jobID, prior := range t.cache {
		if !seen[jobID] {
			prevHash := prior.CanonicalHash
			changes = append(changes, types.ChangeRecord{
				JobID:     jobID,
				PrevHash:  prevHash,
				ChangedAt: now,
				Kind:      types.ChangeKindDeleted,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].JobID < changes[j].JobID })
	return changes
}

// RecordChange appends change to the durable, ordered change history.
func (t *Tracker) RecordChange(change types.ChangeRecord) error {
	if err := t.db.AppendOnly(storage.BucketChangeHistory, change); err != nil {
		return errs.Wrap(errs.CodeStateStoreError, change.JobID, err)
	}
	metrics.ChangesDetectedTotal.WithLabelValues(string(change.Kind)).Inc()
	return nil
}

// BatchUpdateTracker upserts every spec in specs in a single
// transaction against the durable store, then refreshes the in-memory
// cache.
func (t *Tracker) BatchUpdateTracker(specs []types.JobSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	updated := make(map[string]types.TrackedHash, len(specs))

	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(storage.BucketTrackedSpecs)
		for _, spec := range specs {
			th, existed := t.cache[spec.JobID]
			if !existed {
				th = types.TrackedHash{JobID: spec.JobID, FirstSeenAt: now}
			}
			th.CanonicalHash = Hash(spec)
			th.LastUpdatedAt = now

			data, err := marshalJSON(th)
			if err != nil {
				return fmt.Errorf("marshaling tracked hash for %s: %w", spec.JobID, err)
			}
			if err := b.Put([]byte(spec.JobID), data); err != nil {
				return err
			}
			updated[spec.JobID] = th
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.CodeStateStoreError, "", err)
	}

	for jobID, th := range updated {
		t.cache[jobID] = th
	}
	return nil
}

// History lists up to limit change records for jobID in this process's
// durable history, most recent first. It is exposed for operator
// diagnostics (reconctl tracker diff).
func (t *Tracker) History(jobID string, limit int) ([]types.ChangeRecord, error) {
	var all []types.ChangeRecord
	err := t.db.ForEach(storage.BucketChangeHistory, func(_ string, value []byte) error {
		var rec types.ChangeRecord
		if err := unmarshalInto(value, &rec); err != nil {
			return err
		}
		if rec.JobID == jobID {
			all = append(all, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeStateStoreError, jobID, err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ChangedAt.After(all[j].ChangedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
