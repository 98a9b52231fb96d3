package idhash

import "testing"

func TestComputeRunID(t *testing.T) {
	id := ComputeRunID("shadow-legacy", "sonic", 4028276, 4100000)

	if len(id) != 64 {
		t.Errorf("ComputeRunID() length = %d, want 64", len(id))
	}

	// Deterministic: same inputs, same ID.
	if again := ComputeRunID("shadow-legacy", "sonic", 4028276, 4100000); again != id {
		t.Errorf("ComputeRunID() not deterministic: %s != %s", again, id)
	}
}

func TestComputeRunID_Uniqueness(t *testing.T) {
	base := ComputeRunID("shadow-legacy", "sonic", 1000, 2000)

	variants := []string{
		ComputeRunID("shadow-exchange", "sonic", 1000, 2000),
		ComputeRunID("shadow-legacy", "ethereum", 1000, 2000),
		ComputeRunID("shadow-legacy", "sonic", 1001, 2000),
		ComputeRunID("shadow-legacy", "sonic", 1000, 2001),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base ID", i)
		}
	}
}
