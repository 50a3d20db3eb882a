package core

import (
	"reflect"
	"testing"
)

func TestMergeSnapshot_DeltaTakesPrecedence(t *testing.T) {
	existing := Snapshot{"Food": 300, "Rent": 200, "Fun": 50}
	delta := Delta{"Food": 500, "Travel": 80}

	got := MergeSnapshot(existing, delta)

	for k, v := range delta {
		if got[k] != v {
			t.Errorf("merged[%q] = %v, want delta value %v", k, got[k], v)
		}
	}
	for k, v := range existing {
		if _, overridden := delta[k]; overridden {
			continue
		}
		if got[k] != v {
			t.Errorf("merged[%q] = %v, want existing value %v", k, got[k], v)
		}
	}
	if len(got) != 4 {
		t.Fatalf("merged has %d keys, want 4: %v", len(got), got)
	}
}

func TestMergeSnapshot_OverwritesInsteadOfSumming(t *testing.T) {
	got := MergeSnapshot(Snapshot{"Food": 300}, Delta{"Food": 500})
	if got["Food"] != 500 {
		t.Fatalf("Food = %v, want 500 (overwrite, not 800)", got["Food"])
	}
}

func TestMergeSnapshot_EmptyExisting(t *testing.T) {
	delta := Delta{"Food": 300, "Rent": 200}
	for _, existing := range []Snapshot{nil, {}} {
		got := MergeSnapshot(existing, delta)
		if !reflect.DeepEqual(map[string]float64(got), map[string]float64(delta)) {
			t.Fatalf("merge(%v, D) = %v, want %v", existing, got, delta)
		}
	}
}

func TestMergeSnapshot_Idempotent(t *testing.T) {
	existing := Snapshot{"Food": 300, "Rent": 200}
	delta := Delta{"Food": 10, "Gym": 40}

	once := MergeSnapshot(existing, delta)
	twice := MergeSnapshot(once, delta)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent: once=%v twice=%v", once, twice)
	}
}

func TestMergeSnapshot_DoesNotMutateInputs(t *testing.T) {
	existing := Snapshot{"Food": 300}
	delta := Delta{"Food": 500, "Rent": 1}

	merged := MergeSnapshot(existing, delta)
	merged["Extra"] = 1

	if len(existing) != 1 || existing["Food"] != 300 {
		t.Fatalf("existing mutated: %v", existing)
	}
	if len(delta) != 2 {
		t.Fatalf("delta mutated: %v", delta)
	}
}

func TestMergeSnapshot_Scenarios(t *testing.T) {
	var s Snapshot
	s = MergeSnapshot(s, Delta{"Food": 300})
	if !reflect.DeepEqual(s, Snapshot{"Food": 300}) {
		t.Fatalf("scenario A: %v", s)
	}
	s = MergeSnapshot(s, Delta{"Rent": 200})
	if !reflect.DeepEqual(s, Snapshot{"Food": 300, "Rent": 200}) {
		t.Fatalf("scenario B: %v", s)
	}
	s = MergeSnapshot(s, Delta{"Food": 500})
	if !reflect.DeepEqual(s, Snapshot{"Food": 500, "Rent": 200}) {
		t.Fatalf("scenario C: %v", s)
	}
}

func TestMergeAllocations(t *testing.T) {
	got := MergeAllocations(Allocations{"Rent": 1000}, Allocations{"Food": 400})
	want := Allocations{"Rent": 1000, "Food": 400}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeAllocations = %v, want %v", got, want)
	}
}
