package batch

import (
	"fmt"
	"hash/fnv"
	"path"
)

// Partitioner picks the output directory for a result row given its
// partition-key columns (scenario_id, and optionally a time slice), per
// spec.md §6's "partitioned by user-specified columns (commonly
// scenario_id, time)". Adapted from the teacher's pkg/partition.HashPartition
// — same FNV-hash-mod-bucket-count technique — generalized from a uint64
// node ID to an arbitrary string partition key, since scenario_id is a
// string, not a node ID.
type Partitioner struct {
	bucketCount int
}

// NewPartitioner builds a hash partitioner with bucketCount output
// directories. bucketCount<=0 is treated as 1 (no sub-partitioning below
// the stage/column directory).
func NewPartitioner(bucketCount int) *Partitioner {
	if bucketCount <= 0 {
		bucketCount = 1
	}
	return &Partitioner{bucketCount: bucketCount}
}

// Bucket returns which output bucket a given partition key hashes to.
func (p *Partitioner) Bucket(key string) int {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(p.bucketCount))
}

// Dir builds the directory path for one result row: stage/scenario_id=.../
// optionally time=.../bucket=N, Hive-style partition directory naming.
func (p *Partitioner) Dir(stage, scenarioID, timeSlice string) string {
	parts := []string{stage, fmt.Sprintf("scenario_id=%s", scenarioID)}
	if timeSlice != "" {
		parts = append(parts, fmt.Sprintf("time=%s", timeSlice))
	}
	parts = append(parts, fmt.Sprintf("bucket=%d", p.Bucket(scenarioID)))
	return path.Join(parts...)
}
