// Package app hosts the runtime in an ebiten window: it pumps input into
// the manager, drives the frame loop through the pacer and presents the
// rendered surface.
package app

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"github.com/san-kum/fluxlab/internal/command"
	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/pacer"
)

// kindKeys maps number-row keys to simulation kinds in presentation order.
var kindKeys = []ebiten.Key{
	ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4,
	ebiten.KeyDigit5, ebiten.KeyDigit6, ebiten.KeyDigit7, ebiten.KeyDigit8,
	ebiten.KeyDigit9, ebiten.KeyDigit0, ebiten.KeyMinus, ebiten.KeyEqual,
	ebiten.KeyBackspace,
}

// Game adapts the simulation runtime to the ebiten.Game interface.
type Game struct {
	mgr  *engine.Manager
	cmds *command.Dispatcher
	pace *pacer.Pacer
	log  *zap.Logger

	screen *ebiten.Image
	w, h   int

	lutCycle       int
	lastMX, lastMY int
	halted         error
}

// delta reports the movement since the stored position and updates it.
func delta(x, y int, lastX, lastY *int) (float64, float64) {
	dx, dy := float64(x-*lastX), float64(y-*lastY)
	*lastX, *lastY = x, y
	return dx, dy
}

// New wires the runtime into a window host.
func New(mgr *engine.Manager, cmds *command.Dispatcher, log *zap.Logger) *Game {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := mgr.GPU().Surface().Config()
	return &Game{
		mgr:  mgr,
		cmds: cmds,
		pace: pacer.New(),
		log:  log,
		w:    cfg.Width,
		h:    cfg.Height,
	}
}

// Run opens the window and blocks until exit or a fatal device error.
func (g *Game) Run(title string) error {
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(g.w, g.h)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return g.halted
}

// Update pumps input and advances one frame. Returning a non-nil error
// stops the loop; device loss and OOM are the only fatal conditions.
func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if _, ok := g.mgr.ActiveKind(); ok {
			g.mgr.Unload()
			return nil
		}
		return ebiten.Termination
	}
	g.pumpKeys()
	g.pumpMouse()

	dt := g.pace.BeginFrame()
	err := g.mgr.StepAndRender(dt)
	if errors.Is(err, gpu.ErrSurfaceLost) {
		// One reconfigure-and-retry; a second loss falls through as a
		// render failure for this frame.
		g.log.Warn("surface lost, reconfiguring", zap.Error(err))
		if rerr := g.mgr.Resize(g.w, g.h); rerr == nil {
			err = g.mgr.StepAndRender(0)
		}
	}
	if err != nil {
		if engine.Fatal(err) {
			g.log.Error("halting frame loop", zap.Error(err))
			g.halted = err
			return fmt.Errorf("frame loop: %w", err)
		}
		g.log.Warn("frame dropped", zap.Error(err))
	}
	g.pace.EndFrame(g.cmds.FPSLimit())
	return nil
}

func (g *Game) pumpKeys() {
	for i, key := range kindKeys {
		if i < len(engine.AllKinds) && inpututil.IsKeyJustPressed(key) {
			g.dispatch("load_simulation", fmt.Sprintf(`{"kind":%q}`, engine.AllKinds[i]))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.dispatch("toggle_pause", "")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyG) {
		g.dispatch("toggle_gui", "")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyT) {
		g.dispatch("reset_trails", "")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyA) {
		g.dispatch("reset_agents", "")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.dispatch("reset_simulation", "")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		g.dispatch("reset_camera", "")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyL) {
		names := g.mgr.LUTs().Names()
		if len(names) > 0 {
			g.lutCycle = (g.lutCycle + 1) % len(names)
			g.dispatch("set_active_lut", fmt.Sprintf(`{"name":%q}`, names[g.lutCycle]))
		}
	}
}

func (g *Game) pumpMouse() {
	mx, my := ebiten.CursorPosition()
	wx, wy := g.mgr.CursorFromScreen(float64(mx), float64(my))

	mode := engine.CursorInactive
	switch {
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		mode = engine.CursorAttract
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight):
		mode = engine.CursorRepel
	}
	cur := g.mgr.Cursor()
	g.mgr.SetCursor(wx, wy, mode, cur.Radius, cur.Strength)

	if _, wheelY := ebiten.Wheel(); wheelY != 0 {
		factor := 1.1
		if wheelY < 0 {
			factor = 1 / 1.1
		}
		g.mgr.ZoomCamera(factor, wx, wy)
	}
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle) {
		dx, dy := delta(mx, my, &g.lastMX, &g.lastMY)
		cam := g.mgr.Camera()
		g.mgr.PanCamera(-dx/float64(g.w)/cam.Zoom, -dy/float64(g.h)/cam.Zoom)
	} else {
		g.lastMX, g.lastMY = mx, my
	}
}

func (g *Game) dispatch(name, payload string) {
	if _, err := g.cmds.Dispatch(name, []byte(payload)); err != nil {
		g.log.Debug("hotkey command failed", zap.String("command", name), zap.Error(err))
	}
}

// Draw blits the software-rendered surface into the window.
func (g *Game) Draw(screen *ebiten.Image) {
	frame, err := g.mgr.GPU().Frame()
	if err != nil {
		return
	}
	if g.screen == nil || g.screen.Bounds().Dx() != frame.Width || g.screen.Bounds().Dy() != frame.Height {
		g.screen = ebiten.NewImage(frame.Width, frame.Height)
	}
	g.screen.WritePixels(frame.Pixels)
	screen.DrawImage(g.screen, nil)
}

// Layout resizes the surface with the window.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth > 0 && outsideHeight > 0 && (outsideWidth != g.w || outsideHeight != g.h) {
		if err := g.mgr.Resize(outsideWidth, outsideHeight); err != nil {
			g.log.Warn("resize failed", zap.Error(err))
		} else {
			g.w, g.h = outsideWidth, outsideHeight
		}
	}
	return g.w, g.h
}
