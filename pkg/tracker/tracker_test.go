package tracker

import (
	"path/filepath"
	"testing"

	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tr, err := New(db)
	require.NoError(t, err)
	return tr
}

func TestHasChangedTrueWithNoPriorHash(t *testing.T) {
	tr := newTestTracker(t)
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 1}

	require.True(t, tr.HasChanged("j1", spec))
}

func TestUpdateThenHasChangedIsFalse(t *testing.T) {
	tr := newTestTracker(t)
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 1}

	require.NoError(t, tr.UpdateTracker("j1", spec))
	require.False(t, tr.HasChanged("j1", spec))
}

func TestUpdatePreservesFirstSeenAt(t *testing.T) {
	tr := newTestTracker(t)
	spec := types.JobSpec{JobID: "j1", ArtifactPath: "/a.jar", Parallelism: 1}

	require.NoError(t, tr.UpdateTracker("j1", spec))
	firstSeen := tr.cache["j1"].FirstSeenAt

	spec.Parallelism = 2
	require.NoError(t, tr.UpdateTracker("j1", spec))

	require.True(t, tr.cache["j1"].FirstSeenAt.Equal(firstSeen))
	require.NotEqual(t, firstSeen, tr.cache["j1"].LastUpdatedAt)
}

func TestDetectChangesClassifiesCreatedUpdatedDeleted(t *testing.T) {
	tr := newTestTracker(t)

	existing := types.JobSpec{JobID: "existing", ArtifactPath: "/a.jar", Parallelism: 1}
	toDelete := types.JobSpec{JobID: "to-delete", ArtifactPath: "/b.jar", Parallelism: 1}
	require.NoError(t, tr.UpdateTracker("existing", existing))
	require.NoError(t, tr.UpdateTracker("to-delete", toDelete))

	updatedExisting := existing
	updatedExisting.Parallelism = 5
	newSpec := types.JobSpec{JobID: "new", ArtifactPath: "/c.jar", Parallelism: 1}

	changes := tr.DetectChanges([]types.JobSpec{updatedExisting, newSpec})

	byJobID := make(map[string]types.ChangeRecord)
	for _, c := range changes {
		byJobID[c.JobID] = c
	}

	require.Equal(t, types.ChangeKindUpdated, byJobID["existing"].Kind)
	require.Equal(t, types.ChangeKindCreated, byJobID["new"].Kind)
	require.Equal(t, types.ChangeKindDeleted, byJobID["to-delete"].Kind)
}

func TestTrackerSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tracker.db")

	db, err := storage.Open(dbPath)
	require.NoError(t, err)

	tr, err := New(db)
	require.NoError(t, err)

	spec := types.JobSpec{JobID: "j1", ArtifactPath: "/a.jar", Parallelism: 1}
	require.NoError(t, tr.UpdateTracker("j1", spec))
	require.NoError(t, db.Close())

	db2, err := storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	tr2, err := New(db2)
	require.NoError(t, err)
	require.False(t, tr2.HasChanged("j1", spec))
}

func TestBatchUpdateTrackerIsAtomic(t *testing.T) {
	tr := newTestTracker(t)
	specs := []types.JobSpec{
		{JobID: "j1", ArtifactPath: "/a.jar", Parallelism: 1},
		{JobID: "j2", ArtifactPath: "/b.jar", Parallelism: 1},
	}

	require.NoError(t, tr.BatchUpdateTracker(specs))
	require.False(t, tr.HasChanged("j1", specs[0]))
	require.False(t, tr.HasChanged("j2", specs[1]))
}
