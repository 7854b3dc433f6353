package sims

import (
	"errors"
	"strings"
	"testing"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

func testRig(t *testing.T) (*gpu.Device, *gpu.Queue, gpu.SurfaceConfig, *lut.Table) {
	t.Helper()
	dev := gpu.NewDevice(256 << 20)
	q := gpu.NewQueue()
	cfg := gpu.SurfaceConfig{Width: 128, Height: 128, Format: "rgba8unorm", PresentMode: "fifo"}
	table, err := lut.NewRegistry().Get(lut.DefaultName)
	if err != nil {
		t.Fatalf("default lut: %v", err)
	}
	return dev, q, cfg, table
}

func buildSim(t *testing.T, kind engine.Kind, settings engine.Settings) engine.Simulation {
	t.Helper()
	dev, q, cfg, table := testRig(t)
	f, err := BuildRegistry().Lookup(kind)
	if err != nil {
		t.Fatalf("no factory for %s: %v", kind, err)
	}
	sim, err := f.New(dev, q, cfg, settings, table)
	if err != nil {
		t.Fatalf("new %s: %v", kind, err)
	}
	t.Cleanup(sim.Dispose)
	return sim
}

func TestRegistryCoversAllKinds(t *testing.T) {
	r := BuildRegistry()
	for _, kind := range engine.AllKinds {
		if _, err := r.Lookup(kind); err != nil {
			t.Errorf("kind %s has no factory: %v", kind, err)
		}
	}
	if got, want := len(r.Kinds()), len(engine.AllKinds); got != want {
		t.Errorf("registry has %d kinds, want %d", got, want)
	}
}

func TestEveryVariantStepsAndRenders(t *testing.T) {
	dev, q, cfg, table := testRig(t)
	frame := &gpu.Frame{Width: cfg.Width, Height: cfg.Height, Pixels: make([]byte, cfg.Width*cfg.Height*4)}
	r := BuildRegistry()
	for _, kind := range engine.AllKinds {
		f, _ := r.Lookup(kind)
		sim, err := f.New(dev, q, cfg, nil, table)
		if err != nil {
			t.Fatalf("%s: new: %v", kind, err)
		}
		for i := 0; i < 3; i++ {
			if err := sim.Step(q, 1.0/60, engine.CursorState{}, engine.NewCamera()); err != nil {
				t.Fatalf("%s: step %d: %v", kind, i, err)
			}
		}
		if err := sim.Render(q, frame, engine.NewCamera()); err != nil {
			t.Fatalf("%s: render: %v", kind, err)
		}
		if _, err := sim.SnapshotState(); err != nil {
			t.Fatalf("%s: snapshot: %v", kind, err)
		}
		sim.Dispose()
	}
}

func TestDefaultsRoundTripThroughFactory(t *testing.T) {
	dev, q, cfg, table := testRig(t)
	r := BuildRegistry()
	for _, kind := range engine.AllKinds {
		f, _ := r.Lookup(kind)
		sim, err := f.New(dev, q, cfg, f.Defaults(), table)
		if err != nil {
			t.Fatalf("%s: defaults rejected: %v", kind, err)
		}
		sim.Dispose()
	}
}

func TestGrayScottRejectsBadSettings(t *testing.T) {
	dev, q, cfg, table := testRig(t)
	cases := []engine.Settings{
		{"feed_rate": -0.1},
		{"kill_rate": 1.5},
		{"timestep": 0.0},
		{"stability_factor": 0.0},
		{"max_timestep": 0.5, "timestep": 1.0},
		{"no_such_field": 1},
	}
	for _, c := range cases {
		if _, err := newGrayScott(dev, q, cfg, c, table); err == nil {
			t.Errorf("settings %v: want error, got nil", c)
		}
	}
}

func TestDecodeErrorsNameTheField(t *testing.T) {
	sim := buildSim(t, engine.GrayScott, nil)
	cases := []struct {
		patch engine.Settings
		field string
	}{
		{engine.Settings{"no_such_field": 1}, "no_such_field"},
		{engine.Settings{"feed_rate": "fast"}, "feed_rate"},
	}
	for _, c := range cases {
		err := sim.UpdateSettings(c.patch)
		var inv *engine.InvalidSettingsError
		if !errors.As(err, &inv) {
			t.Fatalf("patch %v: want InvalidSettingsError, got %v", c.patch, err)
		}
		if inv.Field != c.field {
			t.Errorf("patch %v: field = %q, want %q", c.patch, inv.Field, c.field)
		}
	}
}

func TestGrayScottUpdateSettingsValidates(t *testing.T) {
	sim := buildSim(t, engine.GrayScott, nil)
	if err := sim.UpdateSettings(engine.Settings{"feed_rate": 0.03}); err != nil {
		t.Fatalf("valid patch: %v", err)
	}
	got := sim.Settings()["feed_rate"].(float64)
	if got != 0.03 {
		t.Errorf("feed_rate = %v, want 0.03", got)
	}

	err := sim.UpdateSettings(engine.Settings{"feed_rate": 2.0})
	var inv *engine.InvalidSettingsError
	if !errors.As(err, &inv) {
		t.Fatalf("want InvalidSettingsError, got %v", err)
	}
	if inv.Field != "feed_rate" {
		t.Errorf("field = %q, want feed_rate", inv.Field)
	}
	// Failed patch must not disturb current settings.
	if got := sim.Settings()["feed_rate"].(float64); got != 0.03 {
		t.Errorf("feed_rate after rejected patch = %v, want 0.03", got)
	}
}

func TestFluidsRunsExactlyConfiguredJacobiPasses(t *testing.T) {
	dev, q, cfg, table := testRig(t)
	for _, iters := range []int{1, 15, 30, 120} {
		sim, err := newFluids(dev, q, cfg, engine.Settings{"pressure_iterations": iters}, table)
		if err != nil {
			t.Fatalf("iters=%d: %v", iters, err)
		}
		if err := sim.Step(q, 1.0/60, engine.CursorState{}, engine.NewCamera()); err != nil {
			t.Fatalf("iters=%d: step: %v", iters, err)
		}
		got := sim.(*fluidsSim).LastPressureIterations()
		if got != iters {
			t.Errorf("iters=%d: solver ran %d passes", iters, got)
		}
		sim.Dispose()
	}
}

func TestFluidsResetTrailsClearsDyeOnly(t *testing.T) {
	sim := buildSim(t, engine.Fluids, nil)
	f := sim.(*fluidsSim)
	if err := sim.ResetTrails(); err != nil {
		t.Fatalf("reset trails: %v", err)
	}
	for _, v := range f.dye.Current().Data() {
		if v != 0 {
			t.Fatal("dye not cleared")
		}
	}
}

func TestParseRulestring(t *testing.T) {
	birth, survive, err := parseRulestring("B3/S23")
	if err != nil {
		t.Fatal(err)
	}
	if !birth[3] || birth[2] {
		t.Errorf("birth = %v", birth)
	}
	if !survive[2] || !survive[3] || survive[4] {
		t.Errorf("survive = %v", survive)
	}

	if _, _, err := parseRulestring("b36/s23"); err != nil {
		t.Errorf("lowercase rulestring rejected: %v", err)
	}
	for _, bad := range []string{"", "B3", "3/23", "B3/S9", "S23/B3", "B3/S23/X"} {
		if _, _, err := parseRulestring(bad); err == nil {
			t.Errorf("%q: want error", bad)
		}
	}
}

func TestVoronoiBorderWidthClamps(t *testing.T) {
	sim := buildSim(t, engine.VoronoiCA, nil)
	v := sim.(engine.VoronoiControls)

	cases := []struct{ in, want float64 }{
		{-5, 0},
		{0, 0},
		{2.5, 2.5},
		{1000, 1000},
		{1500, 1000},
	}
	for _, c := range cases {
		if got := v.SetBorderWidth(c.in); got != c.want {
			t.Errorf("SetBorderWidth(%v) = %v, want %v", c.in, got, c.want)
		}
		if got := v.BorderWidth(); got != c.want {
			t.Errorf("BorderWidth() after %v = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestVoronoiPostProcessingState(t *testing.T) {
	sim := buildSim(t, engine.VoronoiCA, nil)
	v := sim.(engine.VoronoiControls)

	if err := v.SetPostProcessing("blur_filter", true, map[string]float64{"radius": 3, "sigma": 1.2}); err != nil {
		t.Fatalf("enable blur: %v", err)
	}
	state := v.PostProcessingState()
	blur, ok := state["blur_filter"]
	if !ok {
		t.Fatal("blur_filter missing from state")
	}
	if blur["enabled"] != true || blur["radius"] != 3.0 || blur["sigma"] != 1.2 {
		t.Errorf("blur state = %v", blur)
	}

	if err := v.SetPostProcessing("blur_filter", false, nil); err != nil {
		t.Fatalf("disable blur: %v", err)
	}
	if v.PostProcessingState()["blur_filter"]["enabled"] != false {
		t.Error("blur still enabled")
	}

	if err := v.SetPostProcessing("bloom", true, nil); !errors.Is(err, engine.ErrUnsupported) {
		t.Errorf("unknown effect: got %v, want ErrUnsupported", err)
	}
	if err := v.SetPostProcessing("blur_filter", true, map[string]float64{"radius": -1}); err == nil {
		t.Error("negative radius accepted")
	}
}

func TestSlimeMoldAgentCountRealloc(t *testing.T) {
	sim := buildSim(t, engine.SlimeMold, engine.Settings{"agent_count": 500})
	s := sim.(engine.SlimeControls)
	if got := s.AgentCount(); got != 500 {
		t.Fatalf("agent count = %d, want 500", got)
	}
	if err := s.SetAgentCount(2000); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if got := s.AgentCount(); got != 2000 {
		t.Errorf("agent count after grow = %d, want 2000", got)
	}
	if err := s.SetAgentCount(0); err == nil {
		t.Error("zero agent count accepted")
	}
	if got := s.AgentCount(); got != 2000 {
		t.Errorf("agent count after rejected patch = %d, want 2000", got)
	}
}

func TestGradientDisplayModes(t *testing.T) {
	sim := buildSim(t, engine.Gradient, nil)
	g := sim.(engine.GradientControls)

	if got := g.DisplayMode(); got != 0 {
		t.Fatalf("default display mode = %d, want 0", got)
	}
	if err := g.SetDisplayMode(1); err != nil {
		t.Fatalf("set dithered: %v", err)
	}
	if got := g.DisplayMode(); got != 1 {
		t.Errorf("display mode = %d, want 1", got)
	}
	if err := g.SetDisplayMode(2); err == nil {
		t.Error("mode 2 accepted")
	}
}

func TestEcosystemSpeciesVisibilityToggle(t *testing.T) {
	sim := buildSim(t, engine.Ecosystem, nil)
	e := sim.(engine.EcosystemControls)

	vis := e.SpeciesVisibility()
	if len(vis) != 9 {
		t.Fatalf("visibility entries = %d, want 9", len(vis))
	}
	for k, v := range vis {
		if !v {
			t.Errorf("%s starts hidden", k)
		}
	}

	if err := e.ToggleSpeciesVisibility(1, 2); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if e.SpeciesVisibility()["herbivore_3"] {
		t.Error("herbivore_3 still visible after toggle")
	}
	// Toggling twice is the identity.
	if err := e.ToggleSpeciesVisibility(1, 2); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if !e.SpeciesVisibility()["herbivore_3"] {
		t.Error("herbivore_3 not restored")
	}

	if err := e.ToggleSpeciesVisibility(3, 0); err == nil {
		t.Error("role 3 accepted")
	}
	if err := e.ToggleSpeciesVisibility(0, -1); err == nil {
		t.Error("variant -1 accepted")
	}
}

func TestEcosystemPopulationData(t *testing.T) {
	sim := buildSim(t, engine.Ecosystem, engine.Settings{
		"initial_producers":  90,
		"initial_herbivores": 30,
		"initial_predators":  9,
	})
	e := sim.(engine.EcosystemControls)

	pop := e.PopulationData()
	if len(pop) != 9 {
		t.Fatalf("population entries = %d, want 9", len(pop))
	}
	var producers, herbivores, predators int
	for k, n := range pop {
		switch {
		case strings.HasPrefix(k, "producer"):
			producers += n
		case strings.HasPrefix(k, "herbivore"):
			herbivores += n
		case strings.HasPrefix(k, "predator"):
			predators += n
		default:
			t.Errorf("unexpected species key %q", k)
		}
	}
	if producers != 90 || herbivores != 30 || predators != 9 {
		t.Errorf("populations = %d/%d/%d, want 90/30/9", producers, herbivores, predators)
	}
}

func TestResetFlavorSupport(t *testing.T) {
	// Trail resets only exist where a trail buffer does; agent resets
	// only where discrete agents do.
	dev, q, cfg, table := testRig(t)
	r := BuildRegistry()

	wantTrails := map[engine.Kind]bool{
		engine.SlimeMold: true, engine.Fluids: true, engine.Flow: true, engine.Wanderers: true,
	}
	wantAgents := map[engine.Kind]bool{
		engine.SlimeMold: true, engine.VoronoiCA: true, engine.ParticleLife: true,
		engine.Flow: true, engine.Pellets: true, engine.PrimordialParticles: true,
		engine.SpaceColonization: true, engine.Wanderers: true, engine.Ecosystem: true,
	}
	for _, kind := range engine.AllKinds {
		f, _ := r.Lookup(kind)
		sim, err := f.New(dev, q, cfg, nil, table)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if got := sim.ResetTrails() == nil; got != wantTrails[kind] {
			t.Errorf("%s: ResetTrails supported=%v, want %v", kind, got, wantTrails[kind])
		}
		if got := sim.ResetAgents() == nil; got != wantAgents[kind] {
			t.Errorf("%s: ResetAgents supported=%v, want %v", kind, got, wantAgents[kind])
		}
		if err := sim.ResetState(); err != nil {
			t.Errorf("%s: ResetState: %v", kind, err)
		}
		sim.Dispose()
	}
}

func TestSnapshotCarriesKindAndSettings(t *testing.T) {
	sim := buildSim(t, engine.GrayScott, engine.Settings{"feed_rate": 0.0780, "kill_rate": 0.0610})
	blob, err := sim.SnapshotState()
	if err != nil {
		t.Fatal(err)
	}
	doc := string(blob)
	for _, want := range []string{"kind: GrayScott", "feed_rate: 0.078", "kill_rate: 0.061"} {
		if !strings.Contains(doc, want) {
			t.Errorf("snapshot missing %q:\n%s", want, doc)
		}
	}
}

func TestWrapAndTorus(t *testing.T) {
	if got := wrap(1.25); got != 0.25 {
		t.Errorf("wrap(1.25) = %v", got)
	}
	if got := wrap(-0.25); got != 0.75 {
		t.Errorf("wrap(-0.25) = %v", got)
	}
	if got := torus(0.9); got != -0.1 && got != -0.09999999999999998 {
		t.Errorf("torus(0.9) = %v", got)
	}
	if got := torus(-0.9); got < 0 {
		t.Errorf("torus(-0.9) = %v, want positive short path", got)
	}
}
