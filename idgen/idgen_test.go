package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7 not increasing: %q after %q", id, prev)
		}
		prev = id
	}
	if _, err := Parse(prev); err != nil {
		t.Errorf("Parse(%q): %v", prev, err)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("step_", UUIDv7())()
	if !strings.HasPrefix(id, "step_") {
		t.Errorf("missing prefix: %q", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "step_")); err != nil {
		t.Errorf("suffix is not a UUID: %v", err)
	}
}

func TestSequential(t *testing.T) {
	gen := Sequential("s")
	if a, b := gen(), gen(); a != "s1" || b != "s2" {
		t.Errorf("got %q %q, want s1 s2", a, b)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error")
	}
}
