// Package command routes named UI commands to manager operations. Every
// command resolves to exactly one manager call and returns a payload
// string (plain or JSON) or an error; serialization comes from the
// manager's lock, not from the dispatcher.
package command

import (
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/pacer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler executes one command against the manager.
type Handler func(payload []byte) (string, error)

// Dispatcher owns the name → handler table. Safe for concurrent Dispatch;
// each handler serializes through the manager.
type Dispatcher struct {
	mgr      *engine.Manager
	log      *zap.Logger
	handlers map[string]Handler
}

// New builds the full command table over the given manager.
func New(mgr *engine.Manager, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{mgr: mgr, log: log, handlers: map[string]Handler{}}

	// Lifecycle.
	d.handlers["check_gpu_context_ready"] = d.checkGPUContextReady
	d.handlers["load_simulation"] = d.loadSimulation
	d.handlers["unload_simulation"] = d.unloadSimulation
	d.handlers["reset_simulation"] = d.resetSimulation
	d.handlers["reset_trails"] = d.resetTrails
	d.handlers["reset_agents"] = d.resetAgents
	d.handlers["toggle_pause"] = d.togglePause

	// Rendering controls.
	d.handlers["set_gradient_display_mode"] = d.setGradientDisplayMode
	d.handlers["update_voronoi_ca_post_processing_state"] = d.updateVoronoiPostProcessing
	d.handlers["update_voronoi_ca_border_width"] = d.updateVoronoiBorderWidth

	// Presets.
	d.handlers["list_presets"] = d.listPresets
	d.handlers["save_preset"] = d.savePreset
	d.handlers["load_preset"] = d.loadPreset
	d.handlers["delete_preset"] = d.deletePreset

	// LUTs.
	d.handlers["list_luts"] = d.listLUTs
	d.handlers["set_active_lut"] = d.setActiveLUT
	d.handlers["set_lut_reversed"] = d.setLUTReversed

	// Camera.
	d.handlers["pan_camera"] = d.panCamera
	d.handlers["zoom_camera"] = d.zoomCamera
	d.handlers["reset_camera"] = d.resetCamera

	// Interaction.
	d.handlers["update_cursor"] = d.updateCursor
	d.handlers["set_cursor_mode"] = d.setCursorMode
	d.handlers["reset_cursor"] = d.resetCursor

	// Settings.
	d.handlers["update_settings"] = d.updateSettings
	d.handlers["get_simulation_snapshot"] = d.getSnapshot

	// Utility.
	d.handlers["toggle_gui"] = d.toggleGUI
	d.handlers["get_gui_state"] = d.getGUIState
	d.handlers["set_fps_limit"] = d.setFPSLimit

	// Simulation-specific.
	d.handlers["update_agent_count"] = d.updateAgentCount
	d.handlers["toggle_species_visibility"] = d.toggleSpeciesVisibility
	d.handlers["get_ecosystem_population_data"] = d.getEcosystemPopulation
	d.handlers["get_species_visibility_state"] = d.getSpeciesVisibility

	return d
}

// Commands lists the recognized command names, unordered.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

// Dispatch resolves and runs one command. Failures are logged with the
// command name, active kind and a correlation id before being returned.
func (d *Dispatcher) Dispatch(name string, payload []byte) (string, error) {
	h, ok := d.handlers[name]
	if !ok {
		err := fmt.Errorf("unknown command %q", name)
		d.log.Warn("command rejected", zap.String("command", name), zap.Error(err))
		return "", err
	}
	out, err := h(payload)
	if err != nil {
		kind, _ := d.mgr.ActiveKind()
		d.log.Warn("command failed",
			zap.String("command", name),
			zap.String("kind", string(kind)),
			zap.String("correlation_id", uuid.NewString()),
			zap.Error(err))
		return "", err
	}
	return out, nil
}

func decode(payload []byte, into any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	return nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Lifecycle

func (d *Dispatcher) checkGPUContextReady([]byte) (string, error) {
	return encode(d.mgr.GPU().Ready())
}

func (d *Dispatcher) loadSimulation(payload []byte) (string, error) {
	var req struct {
		Kind   string `json:"kind"`
		Preset string `json:"preset"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	kind, err := engine.ParseKind(req.Kind)
	if err != nil {
		return "", err
	}
	if err := d.mgr.Load(kind, req.Preset); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) unloadSimulation([]byte) (string, error) {
	d.mgr.Unload()
	return "ok", nil
}

func (d *Dispatcher) resetSimulation([]byte) (string, error) {
	if err := d.mgr.ResetSimulation(); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) resetTrails([]byte) (string, error) {
	if err := d.mgr.ResetTrails(); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) resetAgents([]byte) (string, error) {
	if err := d.mgr.ResetAgents(); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) togglePause([]byte) (string, error) {
	running, err := d.mgr.TogglePause()
	if err != nil {
		return "", err
	}
	if running {
		return "running", nil
	}
	return "paused", nil
}

// Rendering controls

func (d *Dispatcher) setGradientDisplayMode(payload []byte) (string, error) {
	var req struct {
		Mode int `json:"mode"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	err := d.mgr.WithGradient(func(g engine.GradientControls) error {
		return g.SetDisplayMode(req.Mode)
	})
	if err != nil {
		return "", err
	}
	if req.Mode == 1 {
		return "dithered", nil
	}
	return "smooth", nil
}

func (d *Dispatcher) updateVoronoiPostProcessing(payload []byte) (string, error) {
	var req struct {
		Effect  string             `json:"effect"`
		Enabled bool               `json:"enabled"`
		Params  map[string]float64 `json:"params"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	var state map[string]map[string]any
	err := d.mgr.WithVoronoi(func(v engine.VoronoiControls) error {
		if err := v.SetPostProcessing(req.Effect, req.Enabled, req.Params); err != nil {
			return err
		}
		state = v.PostProcessingState()
		return nil
	})
	if err != nil {
		return "", err
	}
	return encode(state)
}

func (d *Dispatcher) updateVoronoiBorderWidth(payload []byte) (string, error) {
	var req struct {
		Width float64 `json:"width"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	var clamped float64
	err := d.mgr.WithVoronoi(func(v engine.VoronoiControls) error {
		clamped = v.SetBorderWidth(req.Width)
		return nil
	})
	if err != nil {
		return "", err
	}
	return encode(clamped)
}

// Presets

func (d *Dispatcher) listPresets(payload []byte) (string, error) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	kind, err := engine.ParseKind(req.Kind)
	if err != nil {
		return "", err
	}
	return encode(d.mgr.Presets().List(string(kind)))
}

func (d *Dispatcher) savePreset(payload []byte) (string, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if req.Name == "" {
		return "", engine.InvalidSetting("name", "preset name is required")
	}
	if err := d.mgr.SavePreset(req.Name); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) loadPreset(payload []byte) (string, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if err := d.mgr.ApplyPreset(req.Name); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) deletePreset(payload []byte) (string, error) {
	var req struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	kind, err := engine.ParseKind(req.Kind)
	if err != nil {
		return "", err
	}
	if err := d.mgr.Presets().Delete(string(kind), req.Name); err != nil {
		return "", err
	}
	return "ok", nil
}

// LUTs

func (d *Dispatcher) listLUTs([]byte) (string, error) {
	return encode(d.mgr.LUTs().Names())
}

func (d *Dispatcher) setActiveLUT(payload []byte) (string, error) {
	var req struct {
		Name     string `json:"name"`
		Reversed bool   `json:"reversed"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if err := d.mgr.SetLUT(req.Name, req.Reversed); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) setLUTReversed(payload []byte) (string, error) {
	var req struct {
		Reversed bool `json:"reversed"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	name, _ := d.mgr.ActiveLUT()
	if err := d.mgr.SetLUT(name, req.Reversed); err != nil {
		return "", err
	}
	return "ok", nil
}

// Camera

func (d *Dispatcher) panCamera(payload []byte) (string, error) {
	var req struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	d.mgr.PanCamera(req.DX, req.DY)
	return "ok", nil
}

func (d *Dispatcher) zoomCamera(payload []byte) (string, error) {
	var req struct {
		Factor float64 `json:"factor"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if req.Factor <= 0 {
		return "", engine.InvalidSetting("factor", "must be positive")
	}
	d.mgr.ZoomCamera(req.Factor, req.X, req.Y)
	return "ok", nil
}

func (d *Dispatcher) resetCamera([]byte) (string, error) {
	d.mgr.ResetCamera()
	return "ok", nil
}

// Interaction

func (d *Dispatcher) updateCursor(payload []byte) (string, error) {
	var req struct {
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Mode     int     `json:"mode"`
		Radius   float64 `json:"radius"`
		Strength float64 `json:"strength"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if req.Mode < 0 || req.Mode > 2 {
		return "", engine.InvalidSetting("mode", "must be 0, 1 or 2")
	}
	d.mgr.SetCursor(req.X, req.Y, engine.CursorMode(req.Mode), req.Radius, req.Strength)
	return "ok", nil
}

func (d *Dispatcher) setCursorMode(payload []byte) (string, error) {
	var req struct {
		Mode int `json:"mode"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if req.Mode < 0 || req.Mode > 2 {
		return "", engine.InvalidSetting("mode", "must be 0, 1 or 2")
	}
	d.mgr.SetCursorMode(engine.CursorMode(req.Mode))
	return "ok", nil
}

func (d *Dispatcher) resetCursor([]byte) (string, error) {
	d.mgr.ResetCursor()
	return "ok", nil
}

// Settings

func (d *Dispatcher) updateSettings(payload []byte) (string, error) {
	var req struct {
		Kind     string         `json:"kind"`
		Settings map[string]any `json:"settings"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	kind, err := engine.ParseKind(req.Kind)
	if err != nil {
		return "", err
	}
	if err := d.mgr.UpdateSettings(kind, engine.Settings(req.Settings)); err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) getSnapshot([]byte) (string, error) {
	blob, err := d.mgr.Snapshot()
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// Utility

func (d *Dispatcher) toggleGUI([]byte) (string, error) {
	return d.mgr.ToggleGUI(), nil
}

func (d *Dispatcher) getGUIState([]byte) (string, error) {
	return encode(d.mgr.GUIVisible())
}

func (d *Dispatcher) setFPSLimit(payload []byte) (string, error) {
	var req struct {
		Enabled bool `json:"enabled"`
		Limit   int  `json:"limit"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if err := d.mgr.SetFPSLimit(req.Enabled, req.Limit); err != nil {
		return "", err
	}
	return "ok", nil
}

// FPSLimit exposes the stored pacing policy to the frame loop.
func (d *Dispatcher) FPSLimit() pacer.Limit {
	enabled, fps := d.mgr.FPSLimit()
	return pacer.Limit{Enabled: enabled, FPS: fps}
}

// Simulation-specific

func (d *Dispatcher) updateAgentCount(payload []byte) (string, error) {
	var req struct {
		Count int `json:"count"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	var count int
	err := d.mgr.WithSlime(func(s engine.SlimeControls) error {
		if err := s.SetAgentCount(req.Count); err != nil {
			return err
		}
		count = s.AgentCount()
		return nil
	})
	if err != nil {
		return "", err
	}
	return encode(count)
}

func (d *Dispatcher) toggleSpeciesVisibility(payload []byte) (string, error) {
	var req struct {
		Role    int `json:"role"`
		Variant int `json:"variant"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	err := d.mgr.WithEcosystem(func(e engine.EcosystemControls) error {
		return e.ToggleSpeciesVisibility(req.Role, req.Variant)
	})
	if err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *Dispatcher) getEcosystemPopulation([]byte) (string, error) {
	var counts map[string]int
	err := d.mgr.WithEcosystem(func(e engine.EcosystemControls) error {
		counts = e.PopulationData()
		return nil
	})
	if err != nil {
		return "", err
	}
	return encode(counts)
}

func (d *Dispatcher) getSpeciesVisibility([]byte) (string, error) {
	var visible map[string]bool
	err := d.mgr.WithEcosystem(func(e engine.EcosystemControls) error {
		visible = e.SpeciesVisibility()
		return nil
	})
	if err != nil {
		return "", err
	}
	return encode(visible)
}
