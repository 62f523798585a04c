package registry

import "testing"

func TestRegistryGetKnown(t *testing.T) {
	r := New(map[string]int{"a": 1, "b": 2}, "a")
	v, err := r.Get("b")
	if err != nil || v != 2 {
		t.Fatalf("expected (2, nil), got (%d, %v)", v, err)
	}
}

func TestRegistryGetFallsBack(t *testing.T) {
	r := New(map[string]int{"a": 1, "b": 2}, "a")
	v, err := r.Get("missing")
	if err != nil || v != 1 {
		t.Fatalf("expected fallback (1, nil), got (%d, %v)", v, err)
	}
}

func TestRegistryGetErrorsWithoutFallback(t *testing.T) {
	r := New(map[string]int{"a": 1}, "nonexistent")
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error when neither name nor fallback is registered")
	}
}

func TestRegistryHasAndNames(t *testing.T) {
	r := New(map[string]int{"a": 1, "b": 2}, "a")
	if !r.Has("a") || r.Has("z") {
		t.Fatal("Has returned wrong result")
	}
	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
}
