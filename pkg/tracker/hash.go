package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/flowctl/reconctl/pkg/types"
)

// Hash computes the canonical hash of spec: a SHA-256 digest over a
// deterministic JSON encoding with sorted keys, normalized (string-name)
// enum values, and created_at/last_updated_at and any non-semantic
// fields excluded. Two specs that differ only in excluded fields or map
// key order must produce the same hash; JobSpec carries no map-typed
// fields or timestamps, so canonicalization here is purely "emit every
// semantically relevant field under a stable key name".
func Hash(spec types.JobSpec) string {
	canonical := canonicalize(spec)

	// encoding/json sorts map[string]interface{} keys alphabetically,
	// which gives us the "sorted keys" requirement for free without a
	// hand-rolled canonical encoder.
	data, err := json.Marshal(canonical)
	if err != nil {
		// canonicalize only ever produces JSON-safe scalar values;
		// a marshal failure here would be a programming error.
		panic(fmt.Sprintf("tracker: canonical spec failed to marshal: %v", err))
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize builds the normalized representation hashed by Hash.
// Optional pointer fields are omitted entirely when nil rather than
// encoded as null, so a spec gains no hash-visible history from having
// once carried a value that was later cleared.
func canonicalize(spec types.JobSpec) map[string]interface{} {
	m := map[string]interface{}{
		"job_id":           spec.JobID,
		"job_type":         string(spec.JobType),
		"artifact_path":    spec.ArtifactPath,
		"parallelism":      spec.Parallelism,
		"restart_strategy": string(spec.RestartStrategy),
		"memory_bytes":     spec.MemoryBytes,
		"cpu_cores":        spec.CPUCores,
		"savepoint_path":   spec.SavepointPath,
	}
	if spec.CheckpointIntervalMs != nil {
		m["checkpoint_interval_ms"] = *spec.CheckpointIntervalMs
	}
	if spec.SavepointTriggerIntervalMs != nil {
		m["savepoint_trigger_interval_ms"] = *spec.SavepointTriggerIntervalMs
	}
	return m
}
