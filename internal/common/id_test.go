package common

import "testing"

func TestNewULIDIsSortableAndUnique(t *testing.T) {
	prev := ""
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewULID()
		if err != nil {
			t.Fatalf("NewULID() error = %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("len(id) = %d, want 26", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %s after %s", id, prev)
		}
		seen[id] = true
		prev = id
	}
}
