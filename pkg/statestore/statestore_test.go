package statestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/flowctl/reconctl/pkg/storage"
	"github.com/flowctl/reconctl/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)

	_, found, err := s.Get("j1")
	require.NoError(t, err)
	require.False(t, found)

	state := types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning, ObservedAt: time.Now().UTC()}
	require.NoError(t, s.Put(state))

	got, found, err := s.Get("j1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.JobPhaseRunning, got.Phase)

	require.NoError(t, s.Delete("j1"))
	_, found, err = s.Get("j1")
	require.NoError(t, err)
	require.False(t, found)
}
