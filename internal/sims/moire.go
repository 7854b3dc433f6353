package sims

import (
	"math"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

type moireSettings struct {
	Speed     float64 `settings:"speed" yaml:"speed"`
	Scale     float64 `settings:"scale" yaml:"scale"`
	Rotation  float64 `settings:"rotation" yaml:"rotation"`
	Intensity float64 `settings:"intensity" yaml:"intensity"`
}

func moireDefaults() engine.Settings {
	return settingsMap(&moireSettings{Speed: 0.5, Scale: 8, Rotation: 0.2, Intensity: 1})
}

func (s *moireSettings) validate() error {
	switch {
	case s.Scale <= 0:
		return engine.InvalidSetting("scale", "must be positive")
	case s.Intensity < 0 || s.Intensity > 1:
		return engine.InvalidSetting("intensity", "must be in [0,1]")
	}
	return nil
}

// moireSim is purely uniform-driven: two rotated ring gratings interfere
// in the render pass. The only simulation state is elapsed time.
type moireSim struct {
	base
	settings moireSettings
	time     float64
}

func newMoire(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := moireSettings{}
	decodePatch(moireDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &moireSim{base: newBase(engine.Moire, table), settings: s}, nil
}

func (m *moireSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !m.running {
		return nil
	}
	m.camera = camera
	m.time += dt * m.settings.Speed
	return nil
}

func (m *moireSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		w, h := frame.Width, frame.Height
		scale := m.settings.Scale * 2 * math.Pi
		angle := m.time * m.settings.Rotation
		sin, cos := math.Sincos(angle)
		intensity := m.settings.Intensity

		for py := 0; py < h; py++ {
			for px := 0; px < w; px++ {
				wx, wy := camera.ScreenToWorld(float64(px), float64(py), w, h)
				x, y := wx-0.5, wy-0.5

				r1 := math.Hypot(x, y)
				rx := x*cos - y*sin
				ry := x*sin + y*cos
				r2 := math.Hypot(rx-0.05, ry)

				v := (math.Sin(r1*scale) * math.Sin(r2*scale+m.time)) * 0.5
				v = (v + 0.5) * intensity

				r, g, b := shade(m.colors, v)
				o := (py*w + px) * 4
				frame.Pixels[o+0] = r
				frame.Pixels[o+1] = g
				frame.Pixels[o+2] = b
				frame.Pixels[o+3] = 255
			}
		}
	})
	return nil
}

func (m *moireSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	// Uniform-driven; nothing size-dependent to rebuild.
	return nil
}

func (m *moireSim) UpdateSettings(patch engine.Settings) error {
	next := m.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	m.settings = next
	return nil
}

func (m *moireSim) Settings() engine.Settings { return settingsMap(&m.settings) }

func (m *moireSim) ResetState() error {
	m.time = 0
	return nil
}

func (m *moireSim) SnapshotState() ([]byte, error) {
	return m.snapshot(&m.settings, map[string]any{"time": m.time})
}
