package preset

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBuiltInsAreProtected(t *testing.T) {
	m := NewManager(nil)

	if err := m.Save("GrayScott", "Worms", map[string]any{"feed_rate": 0.01}); !errors.Is(err, ErrBuiltInProtected) {
		t.Errorf("save over built-in: expected ErrBuiltInProtected, got %v", err)
	}
	if err := m.Delete("GrayScott", "Worms"); !errors.Is(err, ErrBuiltInProtected) {
		t.Errorf("delete built-in: expected ErrBuiltInProtected, got %v", err)
	}

	// The built-in must be unchanged afterwards.
	s, err := m.Load("GrayScott", "Worms")
	if err != nil {
		t.Fatal(err)
	}
	if s["feed_rate"] != 0.078 {
		t.Errorf("built-in mutated: feed_rate = %v", s["feed_rate"])
	}
}

func TestWormsSettings(t *testing.T) {
	m := NewManager(nil)
	s, err := m.Load("GrayScott", "Worms")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"feed_rate":                0.078,
		"kill_rate":                0.061,
		"diffusion_rate_u":         0.16,
		"diffusion_rate_v":         0.08,
		"timestep":                 1.0,
		"max_timestep":             2.0,
		"stability_factor":         0.8,
		"enable_adaptive_timestep": false,
	}
	for k, v := range want {
		if s[k] != v {
			t.Errorf("%s = %v, want %v", k, s[k], v)
		}
	}
}

func TestBuiltInCoverage(t *testing.T) {
	m := NewManager(nil)

	gs := m.List("GrayScott")
	for _, name := range []string{
		"Brain Coral", "Fingerprint", "Mitosis", "Ripples",
		"Soliton Collapse", "U-Skate World", "Undulating", "Worms", "Custom",
	} {
		if !contains(gs, name) {
			t.Errorf("GrayScott missing built-in %q", name)
		}
	}

	moire := m.List("Moire")
	for _, name := range []string{"Default", "Classic Moiré", "Psychedelic", "Subtle"} {
		if !contains(moire, name) {
			t.Errorf("Moire missing built-in %q", name)
		}
	}

	for _, kind := range []string{"SlimeMold", "Fluids", "VoronoiCA", "Ecosystem"} {
		if !contains(m.List(kind), "Default") {
			t.Errorf("%s missing Default preset", kind)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "presets"), nil)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)

	settings := map[string]any{"feed_rate": 0.03, "kill_rate": 0.06}
	if err := m.Save("GrayScott", "My Coral", settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Load("GrayScott", "My Coral")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["feed_rate"] != 0.03 {
		t.Errorf("feed_rate = %v", got["feed_rate"])
	}

	if !contains(m.List("GrayScott"), "My Coral") {
		t.Error("saved preset missing from list")
	}

	if err := m.Delete("GrayScott", "My Coral"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Load("GrayScott", "My Coral"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUnknownPreset(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Load("GrayScott", "Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
