package engine

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
	"github.com/san-kum/fluxlab/internal/preset"
)

// fakeSim records lifecycle calls so manager behavior can be asserted
// without real compute.
type fakeSim struct {
	kind     Kind
	settings Settings
	running  bool
	disposed bool
	steps    int
	renders  int

	stepErr   error
	renderErr error
}

func (f *fakeSim) Kind() Kind { return f.kind }

func (f *fakeSim) Step(q *gpu.Queue, dt float64, cursor CursorState, camera CameraState) error {
	f.steps++
	return f.stepErr
}

func (f *fakeSim) Render(q *gpu.Queue, frame *gpu.Frame, camera CameraState) error {
	f.renders++
	return f.renderErr
}

func (f *fakeSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error { return nil }

func (f *fakeSim) UpdateSettings(patch Settings) error {
	for k, v := range patch {
		f.settings[k] = v
	}
	return nil
}

func (f *fakeSim) Settings() Settings       { return f.settings.Clone() }
func (f *fakeSim) SetLUT(t *lut.Table)      {}
func (f *fakeSim) SetCursor(c CursorState)  {}
func (f *fakeSim) ResetTrails() error       { return ErrUnsupported }
func (f *fakeSim) ResetAgents() error       { return ErrUnsupported }
func (f *fakeSim) ResetState() error        { return nil }
func (f *fakeSim) SnapshotState() ([]byte, error) {
	return []byte("kind: " + string(f.kind)), nil
}
func (f *fakeSim) Running() bool     { return f.running }
func (f *fakeSim) SetRunning(v bool) { f.running = v }
func (f *fakeSim) Dispose()          { f.disposed = true }

func fakeRegistry(kinds ...Kind) (*Registry, map[Kind]**fakeSim) {
	r := NewRegistry()
	built := make(map[Kind]**fakeSim, len(kinds))
	for _, kind := range kinds {
		kind := kind
		slot := new(*fakeSim)
		built[kind] = slot
		r.Register(kind, Factory{
			New: func(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings Settings, table *lut.Table) (Simulation, error) {
				s := &fakeSim{kind: kind, settings: settings.Clone(), running: true}
				*slot = s
				return s, nil
			},
			Defaults: func() Settings { return Settings{"knob": 1.0} },
		})
	}
	return r, built
}

func testManager(t *testing.T, kinds ...Kind) (*Manager, map[Kind]**fakeSim) {
	t.Helper()
	ctx, err := gpu.Acquire(gpu.AcquireOptions{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	registry, built := fakeRegistry(kinds...)
	m := NewManager(ctx, lut.NewRegistry(), preset.NewManager(nil), registry, nil)
	return m, built
}

func TestLoadActivatesRequestedKind(t *testing.T) {
	m, _ := testManager(t, GrayScott, SlimeMold)

	if _, ok := m.ActiveKind(); ok {
		t.Fatal("fresh manager has an active simulation")
	}
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	kind, ok := m.ActiveKind()
	if !ok || kind != GrayScott {
		t.Errorf("active kind = %v/%v, want GrayScott", kind, ok)
	}
}

func TestLoadDisposesPreviousSimulation(t *testing.T) {
	m, built := testManager(t, GrayScott, SlimeMold)

	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	first := *built[GrayScott]
	if err := m.Load(SlimeMold, ""); err != nil {
		t.Fatal(err)
	}
	if !first.disposed {
		t.Error("previous simulation not disposed on switch")
	}
	if kind, _ := m.ActiveKind(); kind != SlimeMold {
		t.Errorf("active kind = %v, want SlimeMold", kind)
	}
}

func TestLoadWithMissingPresetKeepsPrevious(t *testing.T) {
	m, built := testManager(t, GrayScott, SlimeMold)

	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	err := m.Load(SlimeMold, "no-such-preset")
	if !errors.Is(err, preset.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if (*built[GrayScott]).disposed {
		t.Error("previous simulation disposed on failed load")
	}
	if kind, _ := m.ActiveKind(); kind != GrayScott {
		t.Errorf("active kind = %v, want GrayScott retained", kind)
	}
}

func TestLoadUnknownKind(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	if err := m.Load(Kind("Galaxy"), ""); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("want ErrUnknownKind, got %v", err)
	}
}

func TestStepAndRenderOrdersComputeBeforeDraw(t *testing.T) {
	m, built := testManager(t, GrayScott)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.StepAndRender(1.0 / 60); err != nil {
		t.Fatalf("frame: %v", err)
	}
	sim := *built[GrayScott]
	if sim.steps != 1 || sim.renders != 1 {
		t.Errorf("steps=%d renders=%d, want 1/1", sim.steps, sim.renders)
	}
}

func TestStepAndRenderWithoutSimulationDrawsMenu(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	// Menu frames must not error when nothing is loaded.
	if err := m.StepAndRender(1.0 / 60); err != nil {
		t.Fatalf("menu frame: %v", err)
	}
}

func TestRenderFailureIsWrapped(t *testing.T) {
	m, built := testManager(t, GrayScott)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	(*built[GrayScott]).renderErr = errors.New("encoder exploded")
	err := m.StepAndRender(1.0 / 60)
	if !errors.Is(err, ErrRenderFailed) {
		t.Errorf("want ErrRenderFailed, got %v", err)
	}
}

func TestResetSimulationRebuildsWithCurrentSettings(t *testing.T) {
	m, built := testManager(t, GrayScott)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	first := *built[GrayScott]
	if err := m.UpdateSettings(GrayScott, Settings{"knob": 7.0}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.TogglePause(); err != nil { // now paused
		t.Fatal(err)
	}

	if err := m.ResetSimulation(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	second := *built[GrayScott]
	if second == first {
		t.Fatal("reset did not rebuild the simulation")
	}
	if !first.disposed {
		t.Error("old simulation not disposed")
	}
	if got := second.settings["knob"]; got != 7.0 {
		t.Errorf("settings not carried across reset: knob = %v", got)
	}
	if second.Running() {
		t.Error("paused state not preserved across reset")
	}
}

func TestUpdateSettingsKindMismatch(t *testing.T) {
	m, _ := testManager(t, GrayScott, SlimeMold)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	err := m.UpdateSettings(SlimeMold, Settings{"knob": 2.0})
	if !errors.Is(err, ErrWrongSimulation) {
		t.Errorf("want ErrWrongSimulation, got %v", err)
	}
}

func TestToggleGUIIsAnInvolution(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	if !m.GUIVisible() {
		t.Fatal("GUI must start visible")
	}
	if got := m.ToggleGUI(); got != "hidden" {
		t.Errorf("first toggle = %q, want hidden", got)
	}
	if got := m.ToggleGUI(); got != "visible" {
		t.Errorf("second toggle = %q, want visible", got)
	}
	if !m.GUIVisible() {
		t.Error("double toggle changed state")
	}
}

func TestFPSLimitStoredNotStepped(t *testing.T) {
	m, built := testManager(t, GrayScott)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.SetFPSLimit(true, 30); err != nil {
		t.Fatal(err)
	}
	enabled, limit := m.FPSLimit()
	if !enabled || limit != 30 {
		t.Errorf("fps limit = %v/%d, want true/30", enabled, limit)
	}
	// Changing the cap must not touch the simulation.
	if (*built[GrayScott]).steps != 0 {
		t.Error("fps limit change stepped the simulation")
	}
	if err := m.SetFPSLimit(true, 0); err == nil {
		t.Error("zero limit accepted")
	}
}

func TestCapabilityAccessorsRejectOtherKinds(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		call func() error
		want string
	}{
		{func() error {
			return m.WithGradient(func(GradientControls) error { return nil })
		}, "only available for Gradient"},
		{func() error {
			return m.WithVoronoi(func(VoronoiControls) error { return nil })
		}, "only available for VoronoiCA"},
		{func() error {
			return m.WithSlime(func(SlimeControls) error { return nil })
		}, "only available for SlimeMold"},
		{func() error {
			return m.WithEcosystem(func(EcosystemControls) error { return nil })
		}, "only available for Ecosystem"},
	}
	for _, c := range cases {
		err := c.call()
		if !errors.Is(err, ErrWrongSimulation) {
			t.Errorf("want ErrWrongSimulation, got %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("error %q does not mention %q", err, c.want)
		}
	}
}

// fakeSlimeSim adds agent-count controls with an overlap detector: enter
// flags any call that begins while another is still inside the critical
// region.
type fakeSlimeSim struct {
	fakeSim
	agents  int
	busy    int32
	overlap int32
}

func (f *fakeSlimeSim) enter() {
	if !atomic.CompareAndSwapInt32(&f.busy, 0, 1) {
		atomic.StoreInt32(&f.overlap, 1)
		return
	}
	time.Sleep(50 * time.Microsecond)
	atomic.StoreInt32(&f.busy, 0)
}

func (f *fakeSlimeSim) Step(q *gpu.Queue, dt float64, cursor CursorState, camera CameraState) error {
	f.enter()
	return f.fakeSim.Step(q, dt, cursor, camera)
}

func (f *fakeSlimeSim) SetAgentCount(count int) error {
	f.enter()
	f.agents = count
	return nil
}

func (f *fakeSlimeSim) AgentCount() int { return f.agents }

func TestControlViewsSerializeWithFrameLoop(t *testing.T) {
	ctx, err := gpu.Acquire(gpu.AcquireOptions{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	sim := &fakeSlimeSim{fakeSim: fakeSim{kind: SlimeMold, running: true}}
	r := NewRegistry()
	r.Register(SlimeMold, Factory{
		New: func(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings Settings, table *lut.Table) (Simulation, error) {
			sim.settings = settings.Clone()
			return sim, nil
		},
		Defaults: func() Settings { return Settings{} },
	})
	m := NewManager(ctx, lut.NewRegistry(), preset.NewManager(nil), r, nil)
	if err := m.Load(SlimeMold, ""); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = m.StepAndRender(0.016)
		}
	}()
	for i := 0; i < 200; i++ {
		err := m.WithSlime(func(s SlimeControls) error {
			return s.SetAgentCount(i + 1)
		})
		if err != nil {
			t.Fatalf("agent count update: %v", err)
		}
	}
	<-done

	if atomic.LoadInt32(&sim.overlap) == 1 {
		t.Fatal("agent count mutation interleaved with a frame step")
	}
	if sim.agents != 200 {
		t.Errorf("agent count = %d, want 200", sim.agents)
	}
}

func TestCursorResetKeepsShape(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	m.SetCursor(0.3, 0.7, CursorAttract, 0.2, 4)
	m.ResetCursor()
	c := m.Cursor()
	if c.Mode != CursorInactive || c.X != 0 || c.Y != 0 {
		t.Errorf("cursor not deactivated: %+v", c)
	}
	if c.Radius != 0.2 || c.Strength != 4 {
		t.Errorf("radius/strength not preserved: %+v", c)
	}
}

func TestCursorResetOnLoad(t *testing.T) {
	m, _ := testManager(t, GrayScott, SlimeMold)
	if err := m.Load(GrayScott, ""); err != nil {
		t.Fatal(err)
	}
	m.SetCursor(0.5, 0.5, CursorRepel, 0.1, 2)
	if err := m.Load(SlimeMold, ""); err != nil {
		t.Fatal(err)
	}
	if c := m.Cursor(); c.Mode != CursorInactive {
		t.Errorf("cursor mode survives a load: %+v", c)
	}
}

func TestOperationsWithoutSimulation(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	if _, err := m.TogglePause(); !errors.Is(err, ErrNoSimulation) {
		t.Errorf("TogglePause: %v", err)
	}
	if err := m.ResetTrails(); !errors.Is(err, ErrNoSimulation) {
		t.Errorf("ResetTrails: %v", err)
	}
	if err := m.ResetSimulation(); !errors.Is(err, ErrNoSimulation) {
		t.Errorf("ResetSimulation: %v", err)
	}
	if _, err := m.Snapshot(); !errors.Is(err, ErrNoSimulation) {
		t.Errorf("Snapshot: %v", err)
	}
}

func TestSetLUTUnknownNameRetainsPrevious(t *testing.T) {
	m, _ := testManager(t, GrayScott)
	if err := m.SetLUT("inferno", true); err != nil {
		t.Fatalf("set lut: %v", err)
	}
	if err := m.SetLUT("not-a-table", false); !errors.Is(err, lut.ErrLUTNotFound) {
		t.Fatalf("want ErrLUTNotFound, got %v", err)
	}
	name, reversed := m.ActiveLUT()
	if name != "inferno" || !reversed {
		t.Errorf("active lut = %s/%v, want inferno/true", name, reversed)
	}
}

func TestFatalClassifiesDeviceErrors(t *testing.T) {
	if !Fatal(gpu.ErrDeviceLost) || !Fatal(gpu.ErrOutOfMemory) {
		t.Error("device loss and OOM must be fatal")
	}
	if Fatal(gpu.ErrSurfaceLost) {
		t.Error("surface loss is recoverable, not fatal")
	}
	if Fatal(errors.New("anything else")) {
		t.Error("ordinary errors are not fatal")
	}
}
