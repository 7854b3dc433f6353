package lut

import (
	"errors"
	"testing"
)

func TestLinearArrayLength(t *testing.T) {
	r := NewRegistry()
	for _, name := range r.Names() {
		arr, err := r.ToLinearArray(name, false)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(arr) != 1024 {
			t.Errorf("%s: expected 1024 floats, got %d", name, len(arr))
		}
	}
}

func TestReverseTwiceIsIdentity(t *testing.T) {
	r := NewRegistry()
	fwd, err := r.ToLinearArray("viridis", false)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := r.ToLinearArray("viridis", true)
	if err != nil {
		t.Fatal(err)
	}

	// Reversing the reversed view entry-by-entry must reproduce fwd.
	for i := 0; i < Stops; i++ {
		for c := 0; c < 4; c++ {
			if fwd[i*4+c] != rev[(Stops-1-i)*4+c] {
				t.Fatalf("stop %d channel %d: %f vs %f", i, c, fwd[i*4+c], rev[(Stops-1-i)*4+c])
			}
		}
	}
}

func TestUnknownName(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("no-such-lut"); !errors.Is(err, ErrLUTNotFound) {
		t.Errorf("expected ErrLUTNotFound, got %v", err)
	}
	if _, err := r.ToLinearArray("no-such-lut", true); !errors.Is(err, ErrLUTNotFound) {
		t.Errorf("expected ErrLUTNotFound, got %v", err)
	}
}

func TestRegisterResamples(t *testing.T) {
	r := NewRegistry()
	// Two stops: black to red.
	tbl, err := r.Register("custom", []float32{0, 0, 0, 1, 1, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Colors) != 1024 {
		t.Fatalf("expected 1024 floats after normalization, got %d", len(tbl.Colors))
	}
	if tbl.Colors[0] != 0 || tbl.Colors[1023] != 1 {
		t.Errorf("endpoints wrong: first r=%f last a=%f", tbl.Colors[0], tbl.Colors[1023])
	}
	mid := tbl.Colors[128*4]
	if mid < 0.4 || mid > 0.6 {
		t.Errorf("midpoint red should interpolate near 0.5, got %f", mid)
	}
}

func TestNamesSortedAndComplete(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	if len(names) < 9 {
		t.Fatalf("expected at least 9 built-in tables, got %d", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %q before %q", names[i-1], names[i])
		}
	}
}
