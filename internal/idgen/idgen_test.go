package idgen

import "testing"

func TestHex(t *testing.T) {
	id := Hex(16)
	if len(id) != 32 {
		t.Errorf("Hex(16) length = %d, want 32", len(id))
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := Hex(8)
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
