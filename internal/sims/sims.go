// Package sims implements the simulation variants behind the engine
// contract. Each variant owns its settings, state and device buffers;
// shared plumbing (LUT sampling, field rendering, settings decoding,
// snapshots) lives here.
package sims

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

// BuildRegistry wires every variant factory into an engine registry.
func BuildRegistry() *engine.Registry {
	r := engine.NewRegistry()
	r.Register(engine.GrayScott, engine.Factory{New: newGrayScott, Defaults: grayScottDefaults})
	r.Register(engine.SlimeMold, engine.Factory{New: newSlimeMold, Defaults: slimeMoldDefaults})
	r.Register(engine.Fluids, engine.Factory{New: newFluids, Defaults: fluidsDefaults})
	r.Register(engine.VoronoiCA, engine.Factory{New: newVoronoi, Defaults: voronoiDefaults})
	r.Register(engine.Moire, engine.Factory{New: newMoire, Defaults: moireDefaults})
	r.Register(engine.Gradient, engine.Factory{New: newGradient, Defaults: gradientDefaults})
	r.Register(engine.ParticleLife, engine.Factory{New: newParticleLife, Defaults: particleLifeDefaults})
	r.Register(engine.Flow, engine.Factory{New: newFlow, Defaults: flowDefaults})
	r.Register(engine.Pellets, engine.Factory{New: newPellets, Defaults: pelletsDefaults})
	r.Register(engine.PrimordialParticles, engine.Factory{New: newPrimordial, Defaults: primordialDefaults})
	r.Register(engine.SpaceColonization, engine.Factory{New: newSpaceColonization, Defaults: spaceColonizationDefaults})
	r.Register(engine.Wanderers, engine.Factory{New: newWanderers, Defaults: wanderersDefaults})
	r.Register(engine.Ecosystem, engine.Factory{New: newEcosystem, Defaults: ecosystemDefaults})
	return r
}

// base carries the state every variant shares. Variants embed it and
// override the reset flavors they support.
type base struct {
	kind     engine.Kind
	running  bool
	disposed bool

	cursor engine.CursorState
	camera engine.CameraState

	colors      []float32 // 1024 floats, reversed flag already applied
	lutName     string
	lutReversed bool
}

func newBase(kind engine.Kind, table *lut.Table) base {
	b := base{kind: kind, running: true, camera: engine.NewCamera()}
	if table != nil {
		b.colors = table.Linear()
		b.lutName = table.Name
		b.lutReversed = table.Reversed
	}
	return b
}

func (b *base) Kind() engine.Kind { return b.kind }
func (b *base) Running() bool     { return b.running }
func (b *base) SetRunning(v bool) { b.running = v }

func (b *base) SetLUT(t *lut.Table) {
	if t == nil {
		return
	}
	b.colors = t.Linear()
	b.lutName = t.Name
	b.lutReversed = t.Reversed
}

func (b *base) SetCursor(c engine.CursorState) { b.cursor = c }

func (b *base) Dispose() {
	b.disposed = true
	b.running = false
}

// Default reset flavors: unsupported unless the variant overrides.
func (b *base) ResetTrails() error { return engine.ErrUnsupported }
func (b *base) ResetAgents() error { return engine.ErrUnsupported }

// snapshot serializes the persistent state bundle shared by all variants.
func (b *base) snapshot(settings any, flags map[string]any) ([]byte, error) {
	doc := struct {
		Kind     string                 `yaml:"kind"`
		Settings any                    `yaml:"settings"`
		Camera   map[string]float64     `yaml:"camera"`
		Cursor   map[string]float64     `yaml:"cursor"`
		LUT      map[string]any         `yaml:"lut"`
		Flags    map[string]any         `yaml:"flags,omitempty"`
	}{
		Kind:     string(b.kind),
		Settings: settings,
		Camera:   map[string]float64{"x": b.camera.X, "y": b.camera.Y, "zoom": b.camera.Zoom},
		Cursor: map[string]float64{
			"mode": float64(b.cursor.Mode), "x": b.cursor.X, "y": b.cursor.Y,
			"radius": b.cursor.Radius, "strength": b.cursor.Strength,
		},
		LUT:   map[string]any{"name": b.lutName, "reversed": b.lutReversed},
		Flags: flags,
	}
	return yaml.Marshal(&doc)
}

// decodePatch applies a settings patch onto a typed settings struct.
// Unknown fields are rejected so typos surface as InvalidSettings.
func decodePatch(patch engine.Settings, into any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           into,
		TagName:          "settings",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(patch)); err != nil {
		return engine.InvalidSetting(patchErrField(err), err.Error())
	}
	return nil
}

// patchErrField names the key behind a decode failure. Unused-key errors
// list the keys directly; conversion errors quote the field name.
func patchErrField(err error) string {
	msg := err.Error()
	var merr *mapstructure.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		msg = merr.Errors[0]
	}
	if _, rest, ok := strings.Cut(msg, "invalid keys: "); ok {
		field, _, _ := strings.Cut(rest, ",")
		return strings.TrimSpace(field)
	}
	if _, rest, ok := strings.Cut(msg, "'"); ok {
		if field, _, ok := strings.Cut(rest, "'"); ok && field != "" {
			return field
		}
	}
	return "patch"
}

// settingsMap round-trips a typed settings struct into the generic form.
func settingsMap(s any) engine.Settings {
	out := engine.Settings{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "settings",
	})
	if err != nil {
		return out
	}
	_ = dec.Decode(s)
	return out
}

// shade samples the LUT for a normalized value.
func shade(colors []float32, v float64) (byte, byte, byte) {
	if len(colors) < 1024 {
		g := byte(clamp01(v) * 255)
		return g, g, g
	}
	idx := int(clamp01(v)*255) * 4
	return byte(colors[idx] * 255), byte(colors[idx+1] * 255), byte(colors[idx+2] * 255)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrap keeps a coordinate in [0,1).
func wrap(v float64) float64 {
	v = math.Mod(v, 1)
	if v < 0 {
		v++
	}
	return v
}

// renderField blits a scalar grid through the LUT into the frame, applying
// the camera view transform. Grid addressing wraps toroidally.
func renderField(frame *gpu.Frame, field []float32, gw, gh int, colors []float32, cam engine.CameraState) {
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 || gw <= 0 || gh <= 0 {
		return
	}
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			wx, wy := cam.ScreenToWorld(float64(px), float64(py), w, h)
			gx := int(wrap(wx) * float64(gw))
			gy := int(wrap(wy) * float64(gh))
			if gx >= gw {
				gx = gw - 1
			}
			if gy >= gh {
				gy = gh - 1
			}
			r, g, b := shade(colors, float64(field[gy*gw+gx]))
			o := (py*w + px) * 4
			frame.Pixels[o+0] = r
			frame.Pixels[o+1] = g
			frame.Pixels[o+2] = b
			frame.Pixels[o+3] = 255
		}
	}
}

// clearFrame fills the frame with the LUT's zero color.
func clearFrame(frame *gpu.Frame, colors []float32) {
	r, g, b := shade(colors, 0)
	for i := 0; i < len(frame.Pixels); i += 4 {
		frame.Pixels[i+0] = r
		frame.Pixels[i+1] = g
		frame.Pixels[i+2] = b
		frame.Pixels[i+3] = 255
	}
}

// plot draws one world-space point into the frame if visible.
func plot(frame *gpu.Frame, cam engine.CameraState, wx, wy, v float64, colors []float32) {
	w, h := frame.Width, frame.Height
	// Invert the view transform: world → screen.
	sx := ((wx - cam.X - 0.5) * cam.Zoom * float64(w)) + float64(w)/2
	sy := ((wy - cam.Y - 0.5) * cam.Zoom * float64(h)) + float64(h)/2
	px, py := int(sx), int(sy)
	if px < 0 || px >= w || py < 0 || py >= h {
		return
	}
	r, g, b := shade(colors, v)
	o := (py*w + px) * 4
	frame.Pixels[o+0] = r
	frame.Pixels[o+1] = g
	frame.Pixels[o+2] = b
	frame.Pixels[o+3] = 255
}

// gridExtent derives a simulation grid size from the surface config,
// capped so state buffers stay well inside the device budget.
func gridExtent(cfg gpu.SurfaceConfig, max int) (int, int) {
	w, h := cfg.Width, cfg.Height
	if w <= 0 {
		w = 256
	}
	if h <= 0 {
		h = 256
	}
	for w > max || h > max {
		w /= 2
		h /= 2
	}
	if w < 16 {
		w = 16
	}
	if h < 16 {
		h = 16
	}
	return w, h
}

func fieldErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
