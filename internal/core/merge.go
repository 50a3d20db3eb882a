package core

// MergeSnapshot folds delta into existing. Every key of existing that delta
// does not name is kept; every key of delta is taken from delta. Amounts are
// overwritten, never summed: {Food: 300} merged with {Food: 500} is
// {Food: 500}. A nil existing yields a copy of delta.
//
// Neither argument is modified.
func MergeSnapshot(existing Snapshot, delta Delta) Snapshot {
	merged := existing.Clone()
	for category, amount := range delta {
		merged[category] = amount
	}
	return merged
}

// MergeAllocations applies the same key-wise overwrite to allocations.
func MergeAllocations(existing, update Allocations) Allocations {
	return Allocations(MergeSnapshot(Snapshot(existing), Delta(update)))
}
