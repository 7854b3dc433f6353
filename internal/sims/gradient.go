package sims

import (
	"math"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const (
	gradientSmooth   = 0
	gradientDithered = 1
)

type gradientSettings struct {
	DisplayMode int `settings:"display_mode" yaml:"display_mode"`
}

func gradientDefaults() engine.Settings {
	return settingsMap(&gradientSettings{DisplayMode: gradientSmooth})
}

func (s *gradientSettings) validate() error {
	if s.DisplayMode != gradientSmooth && s.DisplayMode != gradientDithered {
		return engine.InvalidSetting("display_mode", "must be 0 (smooth) or 1 (dithered)")
	}
	return nil
}

// bayer4 is the ordered-dither threshold matrix, normalized at use.
var bayer4 = [4][4]float64{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// gradientSim renders the bound LUT as a full-screen ramp, either smooth
// or ordered-dithered. A single render pass; no simulation state.
type gradientSim struct {
	base
	settings gradientSettings
}

func newGradient(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := gradientSettings{}
	decodePatch(gradientDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &gradientSim{base: newBase(engine.Gradient, table), settings: s}, nil
}

func (g *gradientSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	g.camera = camera
	return nil
}

func (g *gradientSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		w, h := frame.Width, frame.Height
		dithered := g.settings.DisplayMode == gradientDithered
		for py := 0; py < h; py++ {
			for px := 0; px < w; px++ {
				wx, _ := camera.ScreenToWorld(float64(px), float64(py), w, h)
				v := clamp01(wx)
				if dithered {
					// Quantize to 16 levels, pushed by the Bayer threshold.
					t := (bayer4[py%4][px%4] + 0.5) / 16
					v = clamp01(math.Floor(v*15+t) / 15)
				}
				r, gg, b := shade(g.colors, v)
				o := (py*w + px) * 4
				frame.Pixels[o+0] = r
				frame.Pixels[o+1] = gg
				frame.Pixels[o+2] = b
				frame.Pixels[o+3] = 255
			}
		}
	})
	return nil
}

func (g *gradientSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	return nil
}

func (g *gradientSim) UpdateSettings(patch engine.Settings) error {
	next := g.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	g.settings = next
	return nil
}

func (g *gradientSim) Settings() engine.Settings { return settingsMap(&g.settings) }

// SetDisplayMode implements engine.GradientControls.
func (g *gradientSim) SetDisplayMode(mode int) error {
	return g.UpdateSettings(engine.Settings{"display_mode": mode})
}

func (g *gradientSim) DisplayMode() int { return g.settings.DisplayMode }

func (g *gradientSim) ResetState() error { return nil }

func (g *gradientSim) SnapshotState() ([]byte, error) {
	return g.snapshot(&g.settings, nil)
}
