package partition

import "hash/fnv"

// Count is the fixed number of logical partitions. Fixed for the life of
// a deployment; changing it remaps every (user, mission) pair.
const Count = 256

// For returns the partition ID for a (user, mission) pair. Stable and
// deterministic: the same pair always maps to the same partition, which is
// what preserves per-pair event ordering across parallel shard workers.
// Uses FNV-32a (stdlib, fast, well-distributed).
func For(userID, missionID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(missionID))
	return int(h.Sum32()) % Count
}
