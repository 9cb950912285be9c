package register

import "testing"

func TestIndexRoundTrip(t *testing.T) {
	for i := 0; i < Count; i++ {
		name := Name(i)
		got, ok := Index(name)
		if !ok || got != i {
			t.Fatalf("Index(%q) = (%d, %v), want (%d, true)", name, got, ok, i)
		}
	}
}

func TestIndexCaseInsensitive(t *testing.T) {
	got, ok := Index("R0")
	if !ok || got != 0 {
		t.Fatalf("Index(R0) = (%d, %v), want (0, true)", got, ok)
	}
}

func TestIndexUnknown(t *testing.T) {
	if _, ok := Index("zz"); ok {
		t.Fatal("expected unknown register name to fail")
	}
}
