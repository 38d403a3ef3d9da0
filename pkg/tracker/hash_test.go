package tracker

import (
	"testing"

	"github.com/flowctl/reconctl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int64) *int64 { return &v }

func TestHashStableAcrossFieldConstructionOrder(t *testing.T) {
	a := types.JobSpec{
		JobID:           "j1",
		JobType:         types.JobTypeStreaming,
		ArtifactPath:    "/a.jar",
		Parallelism:     2,
		RestartStrategy: types.RestartStrategyFixedDelay,
		MemoryBytes:     1024,
		CPUCores:        0.5,
	}
	b := types.JobSpec{
		CPUCores:        0.5,
		MemoryBytes:     1024,
		RestartStrategy: types.RestartStrategyFixedDelay,
		Parallelism:     2,
		ArtifactPath:    "/a.jar",
		JobType:         types.JobTypeStreaming,
		JobID:           "j1",
	}

	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashChangesWithSemanticField(t *testing.T) {
	base := types.JobSpec{JobID: "j1", JobType: types.JobTypeStreaming, ArtifactPath: "/a.jar", Parallelism: 2}
	changed := base
	changed.Parallelism = 3

	assert.NotEqual(t, Hash(base), Hash(changed))
}

func TestHashInsensitiveToOptionalFieldPointerIdentity(t *testing.T) {
	a := types.JobSpec{JobID: "j1", CheckpointIntervalMs: intPtr(60000)}
	b := types.JobSpec{JobID: "j1", CheckpointIntervalMs: intPtr(60000)}

	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDeterministicAcrossRepeatedCalls(t *testing.T) {
	spec := types.JobSpec{JobID: "j1", JobType: types.JobTypeBatch, ArtifactPath: "/b.jar", Parallelism: 1}

	first := Hash(spec)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Hash(spec))
	}
}
