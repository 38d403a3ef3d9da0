package clusterclient

import (
	"context"
	"testing"
	"time"

	"github.com/flowctl/reconctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedClientServesGetJobFromCacheWithinTTL(t *testing.T) {
	fake := NewFake()
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning})
	cached := NewCached(fake, 10, time.Minute)

	first, err := cached.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobPhaseRunning, first.Phase)

	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseFailed})

	second, err := cached.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobPhaseRunning, second.Phase, "cached entry should still be served")
}

func TestCachedClientExpiresAfterTTL(t *testing.T) {
	fake := NewFake()
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning})
	cached := NewCached(fake, 10, 10*time.Millisecond)

	_, err := cached.GetJob(context.Background(), "j1")
	require.NoError(t, err)

	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseFailed})
	time.Sleep(20 * time.Millisecond)

	second, err := cached.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobPhaseFailed, second.Phase, "expired entry should be refetched")
}

func TestCachedClientInvalidatesOnMutation(t *testing.T) {
	fake := NewFake()
	fake.SetJob("j1", types.ObservedState{JobID: "j1", Phase: types.JobPhaseRunning})
	cached := NewCached(fake, 10, time.Minute)

	_, err := cached.GetJob(context.Background(), "j1")
	require.NoError(t, err)

	_, err = cached.Stop(context.Background(), "j1", StopOptions{})
	require.NoError(t, err)

	fresh, err := cached.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobPhaseStopped, fresh.Phase, "Stop should invalidate the cached entry")
}
