package engine

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
	"github.com/san-kum/fluxlab/internal/menu"
	"github.com/san-kum/fluxlab/internal/preset"
)

// Manager is the single owner of the active simulation. Every mutating
// operation takes the manager lock; GPU locks are always acquired after
// it, never before.
type Manager struct {
	mu sync.Mutex

	gpu      *gpu.Context
	luts     *lut.Registry
	presets  *preset.Manager
	registry *Registry
	menu     *menu.Renderer
	log      *zap.Logger

	active Simulation

	cursor CursorState
	camera CameraState
	timing *TimingState

	guiVisible  bool
	fpsEnabled  bool
	fpsLimit    int
	lutName     string
	lutReversed bool
}

// NewManager wires the shared collaborators. The GUI starts visible and
// the FPS cap starts disabled at 60.
func NewManager(ctx *gpu.Context, luts *lut.Registry, presets *preset.Manager, registry *Registry, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		gpu:      ctx,
		luts:     luts,
		presets:  presets,
		registry: registry,
		menu:     menu.New(luts, lut.DefaultName),
		log:      log,
		cursor:   CursorState{Radius: 0.05, Strength: 1},
		camera:   NewCamera(),
		timing:   NewTiming(),

		guiVisible: true,
		fpsLimit:   60,
		lutName:    lut.DefaultName,
	}
}

// GPU exposes the context for the frame loop and resize path.
func (m *Manager) GPU() *gpu.Context { return m.gpu }

// Timing exposes the frame clock used by the pacer.
func (m *Manager) Timing() *TimingState { return m.timing }

// Presets exposes the preset manager; all calls still go through command
// handlers holding the manager lock.
func (m *Manager) Presets() *preset.Manager { return m.presets }

// LUTs exposes the shared read-only registry.
func (m *Manager) LUTs() *lut.Registry { return m.luts }

// ActiveKind reports the active simulation's kind, if any.
func (m *Manager) ActiveKind() (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.Kind(), true
}

// Load disposes the current simulation (if any) and instantiates the
// requested kind, seeded from the named preset or factory defaults. On
// preset failure the previous simulation is retained.
func (m *Manager) Load(kind Kind, presetName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	factory, err := m.registry.Lookup(kind)
	if err != nil {
		return err
	}

	settings := factory.Defaults()
	if presetName != "" {
		patch, err := m.presets.Load(string(kind), presetName)
		if err != nil {
			m.log.Warn("preset load failed",
				zap.String("kind", string(kind)),
				zap.String("preset", presetName),
				zap.Error(err))
			return err
		}
		for k, v := range patch {
			settings[k] = v
		}
	}

	table, err := m.lutTable()
	if err != nil {
		return err
	}

	sim, err := factory.New(m.gpu.Device(), m.gpu.Queue(), m.gpu.Surface().Config(), settings, table)
	if err != nil {
		return fmt.Errorf("load %s: %w", kind, err)
	}

	if m.active != nil {
		m.active.Dispose()
	}
	m.active = sim
	m.cursor.Reset()
	m.log.Info("simulation loaded",
		zap.String("kind", string(kind)),
		zap.String("preset", presetName))
	return nil
}

// Unload disposes the active simulation and returns to the main menu.
func (m *Manager) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Dispose()
		m.active = nil
	}
}

func (m *Manager) lutTable() (*lut.Table, error) {
	t, err := m.luts.Get(m.lutName)
	if err != nil {
		return nil, err
	}
	if m.lutReversed == t.Reversed {
		return t, nil
	}
	return &lut.Table{Name: t.Name, Colors: t.Colors, Reversed: m.lutReversed}, nil
}

// StepAndRender is the only per-frame entry. With no active simulation it
// renders the main menu. Frame order: uniforms (cursor mirror) → compute
// step → render encode; a simulation never observes its own render output
// within the same frame.
func (m *Manager) StepAndRender(dt float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, err := m.gpu.Frame()
	if err != nil {
		return err
	}

	if m.active == nil {
		m.menu.Render(frame, dt)
		return nil
	}

	m.active.SetCursor(m.cursor)
	if err := m.active.Step(m.gpu.Queue(), dt, m.cursor, m.camera); err != nil {
		return fmt.Errorf("step %s: %w", m.active.Kind(), err)
	}
	if err := m.active.Render(m.gpu.Queue(), frame, m.camera); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRenderFailed, m.active.Kind(), err)
	}
	return nil
}

// Resize reconfigures the surface and the active simulation's
// size-dependent resources.
func (m *Manager) Resize(w, h int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gpu.Resize(w, h); err != nil {
		return err
	}
	if m.active == nil {
		return nil
	}
	return m.active.Resize(m.gpu.Device(), m.gpu.Queue(), m.gpu.Surface().Config())
}

// TogglePause flips the running flag; returns the new running state.
func (m *Manager) TogglePause() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return false, ErrNoSimulation
	}
	m.active.SetRunning(!m.active.Running())
	return m.active.Running(), nil
}

// ToggleGUI flips visibility and returns "visible" or "hidden".
func (m *Manager) ToggleGUI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guiVisible = !m.guiVisible
	if m.guiVisible {
		return "visible"
	}
	return "hidden"
}

func (m *Manager) GUIVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guiVisible
}

// SetFPSLimit stores the pacing policy read by the frame scheduler.
func (m *Manager) SetFPSLimit(enabled bool, limit int) error {
	if limit <= 0 {
		return InvalidSetting("fps_limit", "must be positive")
	}
	m.mu.Lock()
	m.fpsEnabled = enabled
	m.fpsLimit = limit
	m.mu.Unlock()
	return nil
}

func (m *Manager) FPSLimit() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fpsEnabled, m.fpsLimit
}

// ResetTrails zeroes trail and dye fields, keeping agent state.
func (m *Manager) ResetTrails() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoSimulation
	}
	return m.active.ResetTrails()
}

// ResetAgents reseeds agent positions, keeping trails.
func (m *Manager) ResetAgents() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoSimulation
	}
	return m.active.ResetAgents()
}

// ResetSimulation rebuilds the active kind with its current settings,
// equivalent to a fresh Load.
func (m *Manager) ResetSimulation() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoSimulation
	}

	kind := m.active.Kind()
	factory, err := m.registry.Lookup(kind)
	if err != nil {
		return err
	}
	table, err := m.lutTable()
	if err != nil {
		return err
	}
	sim, err := factory.New(m.gpu.Device(), m.gpu.Queue(), m.gpu.Surface().Config(), m.active.Settings(), table)
	if err != nil {
		return fmt.Errorf("reset %s: %w", kind, err)
	}
	running := m.active.Running()
	m.active.Dispose()
	sim.SetRunning(running)
	m.active = sim
	return nil
}

// UpdateSettings forwards a patch to the active simulation of the given
// kind.
func (m *Manager) UpdateSettings(kind Kind, patch Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Kind() != kind {
		return fmt.Errorf("%w: settings patch addressed to %s", ErrWrongSimulation, kind)
	}
	return m.active.UpdateSettings(patch)
}

// ApplyPreset patches the active simulation with the named preset.
func (m *Manager) ApplyPreset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoSimulation
	}
	patch, err := m.presets.Load(string(m.active.Kind()), name)
	if err != nil {
		return err
	}
	return m.active.UpdateSettings(Settings(patch))
}

// SavePreset persists the active simulation's settings under name.
func (m *Manager) SavePreset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoSimulation
	}
	return m.presets.Save(string(m.active.Kind()), name, m.active.Settings())
}

// SetLUT binds the named color table, optionally reversed, and pushes it
// to the active simulation. On failure the previous table is retained.
func (m *Manager) SetLUT(name string, reversed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.luts.Get(name)
	if err != nil {
		return err
	}
	m.lutName = name
	m.lutReversed = reversed
	if m.active != nil {
		view := t
		if reversed != t.Reversed {
			view = &lut.Table{Name: t.Name, Colors: t.Colors, Reversed: reversed}
		}
		m.active.SetLUT(view)
	}
	return nil
}

// ActiveLUT reports the bound table name and reversed flag.
func (m *Manager) ActiveLUT() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lutName, m.lutReversed
}

// SetCursor merges the latest cursor update; only the newest state per
// frame reaches the simulation.
func (m *Manager) SetCursor(x, y float64, mode CursorMode, radius, strength float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor.X, m.cursor.Y = x, y
	m.cursor.Mode = mode
	if radius > 0 {
		m.cursor.Radius = radius
	}
	if strength > 0 {
		m.cursor.Strength = strength
	}
}

// SetCursorMode updates only the mode, keeping position and shape.
func (m *Manager) SetCursorMode(mode CursorMode) {
	m.mu.Lock()
	m.cursor.Mode = mode
	m.mu.Unlock()
}

// ResetCursor deactivates the cursor, keeping radius and strength.
func (m *Manager) ResetCursor() {
	m.mu.Lock()
	m.cursor.Reset()
	m.mu.Unlock()
}

func (m *Manager) Cursor() CursorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// CursorFromScreen converts window coordinates to world space using the
// current camera and surface extent.
func (m *Manager) CursorFromScreen(sx, sy float64) (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.gpu.Surface().Config()
	return m.camera.ScreenToWorld(sx, sy, cfg.Width, cfg.Height)
}

// Camera accessors.

func (m *Manager) Camera() CameraState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *Manager) PanCamera(dx, dy float64) {
	m.mu.Lock()
	m.camera.Pan(dx, dy)
	m.mu.Unlock()
}

func (m *Manager) ZoomCamera(factor, wx, wy float64) {
	m.mu.Lock()
	m.camera.ZoomAt(factor, wx, wy)
	m.mu.Unlock()
}

func (m *Manager) ResetCamera() {
	m.mu.Lock()
	m.camera.Reset()
	m.mu.Unlock()
}

// Snapshot serializes the active simulation's persistent state.
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoSimulation
	}
	return m.active.SnapshotState()
}

// Typed capability views. Each runs fn with the manager lock held, so
// mutations through the view never interleave with the frame loop. Absent
// or mismatched kinds fail with ErrWrongSimulation; fn must not call back
// into the manager.

func (m *Manager) WithGradient(fn func(GradientControls) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.active.(GradientControls)
	if !ok {
		return fmt.Errorf("%w: only available for Gradient", ErrWrongSimulation)
	}
	return fn(c)
}

func (m *Manager) WithVoronoi(fn func(VoronoiControls) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.active.(VoronoiControls)
	if !ok {
		return fmt.Errorf("%w: only available for VoronoiCA", ErrWrongSimulation)
	}
	return fn(c)
}

func (m *Manager) WithSlime(fn func(SlimeControls) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.active.(SlimeControls)
	if !ok {
		return fmt.Errorf("%w: only available for SlimeMold", ErrWrongSimulation)
	}
	return fn(c)
}

func (m *Manager) WithEcosystem(fn func(EcosystemControls) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.active.(EcosystemControls)
	if !ok {
		return fmt.Errorf("%w: only available for Ecosystem", ErrWrongSimulation)
	}
	return fn(c)
}

// Fatal reports whether err should halt the frame loop.
func Fatal(err error) bool {
	return errors.Is(err, gpu.ErrOutOfMemory) || errors.Is(err, gpu.ErrDeviceLost)
}
