package command

import (
	"errors"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
	"github.com/san-kum/fluxlab/internal/preset"
	"github.com/san-kum/fluxlab/internal/sims"
)

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	ctx, err := gpu.Acquire(gpu.AcquireOptions{Width: 96, Height: 96})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mgr := engine.NewManager(ctx, lut.NewRegistry(), preset.NewManager(nil), sims.BuildRegistry(), nil)
	return New(mgr, nil)
}

func mustDispatch(t *testing.T, d *Dispatcher, name, payload string) string {
	t.Helper()
	out, err := d.Dispatch(name, []byte(payload))
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return out
}

func TestUnknownCommand(t *testing.T) {
	d := testDispatcher(t)
	if _, err := d.Dispatch("make_coffee", nil); err == nil {
		t.Fatal("unknown command accepted")
	}
}

func TestCheckGPUContextReady(t *testing.T) {
	d := testDispatcher(t)
	if out := mustDispatch(t, d, "check_gpu_context_ready", ""); out != "true" {
		t.Errorf("ready = %q, want true", out)
	}
}

func TestLoadSimulationLifecycle(t *testing.T) {
	d := testDispatcher(t)

	if out := mustDispatch(t, d, "load_simulation", `{"kind":"GrayScott"}`); out != "ok" {
		t.Errorf("load = %q", out)
	}
	// Case-insensitive kind names.
	mustDispatch(t, d, "load_simulation", `{"kind":"slimemold"}`)

	if _, err := d.Dispatch("load_simulation", []byte(`{"kind":"Galaxy"}`)); !errors.Is(err, engine.ErrUnknownKind) {
		t.Errorf("want ErrUnknownKind, got %v", err)
	}

	mustDispatch(t, d, "reset_simulation", "")
	mustDispatch(t, d, "reset_trails", "")
	mustDispatch(t, d, "reset_agents", "")
	mustDispatch(t, d, "unload_simulation", "")

	if _, err := d.Dispatch("reset_simulation", nil); !errors.Is(err, engine.ErrNoSimulation) {
		t.Errorf("reset after unload: %v", err)
	}
}

func TestLoadSimulationWithBuiltInPreset(t *testing.T) {
	d := testDispatcher(t)
	mustDispatch(t, d, "load_simulation", `{"kind":"GrayScott","preset":"Worms"}`)

	snap := mustDispatch(t, d, "get_simulation_snapshot", "")
	for _, want := range []string{"feed_rate: 0.078", "kill_rate: 0.061"} {
		if !strings.Contains(snap, want) {
			t.Errorf("snapshot missing %q:\n%s", want, snap)
		}
	}
}

func TestGradientDisplayModeCommand(t *testing.T) {
	d := testDispatcher(t)

	// Wrong kind first: the error names the owning kind.
	mustDispatch(t, d, "load_simulation", `{"kind":"GrayScott"}`)
	_, err := d.Dispatch("set_gradient_display_mode", []byte(`{"mode":1}`))
	if !errors.Is(err, engine.ErrWrongSimulation) {
		t.Fatalf("want ErrWrongSimulation, got %v", err)
	}
	if !strings.Contains(err.Error(), "only available for Gradient") {
		t.Errorf("error %q lacks kind hint", err)
	}

	mustDispatch(t, d, "load_simulation", `{"kind":"Gradient"}`)
	if out := mustDispatch(t, d, "set_gradient_display_mode", `{"mode":1}`); out != "dithered" {
		t.Errorf("mode 1 = %q, want dithered", out)
	}
	if out := mustDispatch(t, d, "set_gradient_display_mode", `{"mode":0}`); out != "smooth" {
		t.Errorf("mode 0 = %q, want smooth", out)
	}
	if _, err := d.Dispatch("set_gradient_display_mode", []byte(`{"mode":7}`)); err == nil {
		t.Error("mode 7 accepted")
	}
}

func TestVoronoiCommands(t *testing.T) {
	d := testDispatcher(t)
	mustDispatch(t, d, "load_simulation", `{"kind":"VoronoiCA"}`)

	if out := mustDispatch(t, d, "update_voronoi_ca_border_width", `{"width":1500}`); out != "1000" {
		t.Errorf("clamped width = %q, want 1000", out)
	}
	if out := mustDispatch(t, d, "update_voronoi_ca_border_width", `{"width":-3}`); out != "0" {
		t.Errorf("clamped width = %q, want 0", out)
	}

	out := mustDispatch(t, d, "update_voronoi_ca_post_processing_state",
		`{"effect":"blur_filter","enabled":true,"params":{"radius":2,"sigma":0.8}}`)
	var state map[string]map[string]any
	if err := jsoniter.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	blur := state["blur_filter"]
	if blur["enabled"] != true || blur["radius"] != 2.0 || blur["sigma"] != 0.8 {
		t.Errorf("blur state = %v", blur)
	}

	if _, err := d.Dispatch("update_voronoi_ca_post_processing_state",
		[]byte(`{"effect":"bloom","enabled":true}`)); !errors.Is(err, engine.ErrUnsupported) {
		t.Errorf("unknown effect: %v", err)
	}
}

func TestAgentCountCommand(t *testing.T) {
	d := testDispatcher(t)
	mustDispatch(t, d, "load_simulation", `{"kind":"SlimeMold"}`)

	if out := mustDispatch(t, d, "update_agent_count", `{"count":1234}`); out != "1234" {
		t.Errorf("agent count = %q, want 1234", out)
	}
	if _, err := d.Dispatch("update_agent_count", []byte(`{"count":0}`)); err == nil {
		t.Error("zero count accepted")
	}

	mustDispatch(t, d, "load_simulation", `{"kind":"Moire"}`)
	if _, err := d.Dispatch("update_agent_count", []byte(`{"count":10}`)); !errors.Is(err, engine.ErrWrongSimulation) {
		t.Errorf("want ErrWrongSimulation, got %v", err)
	}
}

func TestEcosystemCommands(t *testing.T) {
	d := testDispatcher(t)
	mustDispatch(t, d, "load_simulation", `{"kind":"Ecosystem"}`)

	pop := mustDispatch(t, d, "get_ecosystem_population_data", "")
	var counts map[string]int
	if err := jsoniter.Unmarshal([]byte(pop), &counts); err != nil {
		t.Fatalf("population payload: %v", err)
	}
	if len(counts) != 9 {
		t.Errorf("population entries = %d, want 9", len(counts))
	}

	mustDispatch(t, d, "toggle_species_visibility", `{"role":2,"variant":0}`)
	vis := mustDispatch(t, d, "get_species_visibility_state", "")
	var visible map[string]bool
	if err := jsoniter.Unmarshal([]byte(vis), &visible); err != nil {
		t.Fatalf("visibility payload: %v", err)
	}
	if visible["predator_1"] {
		t.Error("predator_1 still visible after toggle")
	}

	if _, err := d.Dispatch("toggle_species_visibility", []byte(`{"role":9,"variant":0}`)); err == nil {
		t.Error("role 9 accepted")
	}
}

func TestGUICommands(t *testing.T) {
	d := testDispatcher(t)

	if out := mustDispatch(t, d, "get_gui_state", ""); out != "true" {
		t.Errorf("initial gui state = %q", out)
	}
	if out := mustDispatch(t, d, "toggle_gui", ""); out != "hidden" {
		t.Errorf("toggle = %q, want hidden", out)
	}
	if out := mustDispatch(t, d, "get_gui_state", ""); out != "false" {
		t.Errorf("gui state = %q, want false", out)
	}
	if out := mustDispatch(t, d, "toggle_gui", ""); out != "visible" {
		t.Errorf("toggle = %q, want visible", out)
	}
}

func TestFPSLimitCommand(t *testing.T) {
	d := testDispatcher(t)
	mustDispatch(t, d, "set_fps_limit", `{"enabled":true,"limit":30}`)
	limit := d.FPSLimit()
	if !limit.Enabled || limit.FPS != 30 {
		t.Errorf("limit = %+v, want enabled/30", limit)
	}
	if _, err := d.Dispatch("set_fps_limit", []byte(`{"enabled":true,"limit":0}`)); err == nil {
		t.Error("zero limit accepted")
	}
}

func TestPresetCommands(t *testing.T) {
	d := testDispatcher(t)

	out := mustDispatch(t, d, "list_presets", `{"kind":"GrayScott"}`)
	var names []string
	if err := jsoniter.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("list payload: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "Worms" {
			found = true
		}
	}
	if !found {
		t.Errorf("built-in Worms missing from %v", names)
	}

	mustDispatch(t, d, "load_simulation", `{"kind":"GrayScott"}`)
	mustDispatch(t, d, "load_preset", `{"name":"Mitosis"}`)

	// Built-ins are immutable.
	if _, err := d.Dispatch("save_preset", []byte(`{"name":"Worms"}`)); !errors.Is(err, preset.ErrBuiltInProtected) {
		t.Errorf("overwriting built-in: %v", err)
	}
	if _, err := d.Dispatch("delete_preset", []byte(`{"kind":"GrayScott","name":"Worms"}`)); !errors.Is(err, preset.ErrBuiltInProtected) {
		t.Errorf("deleting built-in: %v", err)
	}
	if _, err := d.Dispatch("load_preset", []byte(`{"name":"no-such"}`)); !errors.Is(err, preset.ErrNotFound) {
		t.Errorf("missing preset: %v", err)
	}
}

func TestLUTCommands(t *testing.T) {
	d := testDispatcher(t)

	out := mustDispatch(t, d, "list_luts", "")
	if !strings.Contains(out, `"viridis"`) || !strings.Contains(out, `"inferno"`) {
		t.Errorf("lut list = %s", out)
	}

	mustDispatch(t, d, "set_active_lut", `{"name":"inferno","reversed":false}`)
	mustDispatch(t, d, "set_lut_reversed", `{"reversed":true}`)

	if _, err := d.Dispatch("set_active_lut", []byte(`{"name":"nope"}`)); !errors.Is(err, lut.ErrLUTNotFound) {
		t.Errorf("unknown lut: %v", err)
	}
}

func TestCursorAndCameraCommands(t *testing.T) {
	d := testDispatcher(t)

	mustDispatch(t, d, "update_cursor", `{"x":0.4,"y":0.6,"mode":1,"radius":0.1,"strength":2}`)
	mustDispatch(t, d, "set_cursor_mode", `{"mode":2}`)
	mustDispatch(t, d, "reset_cursor", "")
	if _, err := d.Dispatch("update_cursor", []byte(`{"mode":5}`)); err == nil {
		t.Error("mode 5 accepted")
	}

	mustDispatch(t, d, "pan_camera", `{"dx":0.1,"dy":-0.1}`)
	mustDispatch(t, d, "zoom_camera", `{"factor":2,"x":0.5,"y":0.5}`)
	mustDispatch(t, d, "reset_camera", "")
	if _, err := d.Dispatch("zoom_camera", []byte(`{"factor":0}`)); err == nil {
		t.Error("zero zoom factor accepted")
	}
}

func TestUpdateSettingsCommand(t *testing.T) {
	d := testDispatcher(t)
	mustDispatch(t, d, "load_simulation", `{"kind":"GrayScott"}`)

	mustDispatch(t, d, "update_settings", `{"kind":"GrayScott","settings":{"feed_rate":0.03}}`)

	_, err := d.Dispatch("update_settings", []byte(`{"kind":"GrayScott","settings":{"feed_rate":99}}`))
	var inv *engine.InvalidSettingsError
	if !errors.As(err, &inv) {
		t.Errorf("want InvalidSettingsError, got %v", err)
	}

	if _, err := d.Dispatch("update_settings", []byte(`{"kind":"Fluids","settings":{}}`)); !errors.Is(err, engine.ErrWrongSimulation) {
		t.Errorf("kind mismatch: %v", err)
	}
}
