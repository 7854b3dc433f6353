package sims

import (
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

type fluidsSettings struct {
	PressureIterations int     `settings:"pressure_iterations" yaml:"pressure_iterations"`
	Viscosity          float64 `settings:"viscosity" yaml:"viscosity"`
	DyeDecay           float64 `settings:"dye_decay" yaml:"dye_decay"`
	ForceStrength      float64 `settings:"force_strength" yaml:"force_strength"`
}

func fluidsDefaults() engine.Settings {
	return settingsMap(&fluidsSettings{
		PressureIterations: 30,
		Viscosity:          0.0001,
		DyeDecay:           0.995,
		ForceStrength:      4.0,
	})
}

func (s *fluidsSettings) validate() error {
	switch {
	case s.PressureIterations < 1 || s.PressureIterations > 500:
		return engine.InvalidSetting("pressure_iterations", "must be in [1,500]")
	case s.Viscosity < 0:
		return engine.InvalidSetting("viscosity", "must be non-negative")
	case s.DyeDecay <= 0 || s.DyeDecay > 1:
		return engine.InvalidSetting("dye_decay", "must be in (0,1]")
	}
	return nil
}

// fluidsSim is an incompressible solver on a collocated grid:
// semi-Lagrangian advection, divergence, N Jacobi pressure iterations,
// projection, dye advection last.
type fluidsSim struct {
	base
	settings fluidsSettings
	dev      *gpu.Device

	gw, gh   int
	velX     *gpu.PingPong
	velY     *gpu.PingPong
	pressure *gpu.PingPong
	dye      *gpu.PingPong
	div      *gpu.Buffer

	lastPressureIters int
	rng               *rand.Rand
}

func newFluids(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := fluidsSettings{}
	decodePatch(fluidsDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	gw, gh := gridExtent(cfg, 256)
	f := &fluidsSim{
		base:     newBase(engine.Fluids, table),
		settings: s,
		dev:      dev,
		gw:       gw,
		gh:       gh,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	n := gw * gh
	var err error
	alloc := func(label string) *gpu.PingPong {
		if err != nil {
			return nil
		}
		var p *gpu.PingPong
		p, err = gpu.NewPingPong(dev, n, gpu.UsageStorage, label)
		return p
	}
	f.velX = alloc("fluid vel x")
	f.velY = alloc("fluid vel y")
	f.pressure = alloc("fluid pressure")
	f.dye = alloc("fluid dye")
	if err == nil {
		f.div, err = dev.NewBuffer(n, gpu.UsageStorage, "fluid divergence")
	}
	if err != nil {
		f.release()
		return nil, err
	}
	f.seedDye()
	return f, nil
}

func (f *fluidsSim) release() {
	for _, p := range []*gpu.PingPong{f.velX, f.velY, f.pressure, f.dye} {
		if p != nil {
			p.Release()
		}
	}
	if f.div != nil {
		f.div.Release()
	}
}

func (f *fluidsSim) seedDye() {
	d := f.dye.Current().Data()
	for i := range d {
		d[i] = 0
	}
	// A few dye blobs so the field is visible before interaction.
	for b := 0; b < 4; b++ {
		cx := f.rng.Intn(f.gw)
		cy := f.rng.Intn(f.gh)
		r := f.gw / 10
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if dx*dx+dy*dy > r*r {
					continue
				}
				d[((cy+dy+f.gh)%f.gh)*f.gw+(cx+dx+f.gw)%f.gw] = 1
			}
		}
	}
	f.dye.Inactive().CopyFrom(f.dye.Current())
}

// bilinear samples a grid at fractional toroidal coordinates.
func bilinear(g []float32, gw, gh int, x, y float64) float32 {
	x = wrap(x/float64(gw)) * float64(gw)
	y = wrap(y/float64(gh)) * float64(gh)
	x0, y0 := int(x), int(y)
	x1, y1 := (x0+1)%gw, (y0+1)%gh
	if x0 >= gw {
		x0 = gw - 1
	}
	if y0 >= gh {
		y0 = gh - 1
	}
	fx, fy := float32(x-float64(x0)), float32(y-float64(y0))
	top := g[y0*gw+x0]*(1-fx) + g[y0*gw+x1]*fx
	bot := g[y1*gw+x0]*(1-fx) + g[y1*gw+x1]*fx
	return top*(1-fy) + bot*fy
}

func (f *fluidsSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !f.running {
		return nil
	}
	f.camera = camera
	gw, gh := f.gw, f.gh
	adt := dt * float64(gw) // advection step in cell units

	q.Submit(func() {
		ux, uy := f.velX.Current().Data(), f.velY.Current().Data()
		nx, ny := f.velX.Inactive().Data(), f.velY.Inactive().Data()

		// Advect velocity through itself.
		visc := float32(1 - clamp(f.settings.Viscosity*dt*100, 0, 0.5))
		f.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				for x := 0; x < gw; x++ {
					i := y*gw + x
					px := float64(x) - float64(ux[i])*adt
					py := float64(y) - float64(uy[i])*adt
					nx[i] = bilinear(ux, gw, gh, px, py) * visc
					ny[i] = bilinear(uy, gw, gh, px, py) * visc
				}
			}
		})

		// Cursor force.
		if cursor.Mode != engine.CursorInactive && cursor.Radius > 0 {
			cx := wrap(cursor.X) * float64(gw)
			cy := wrap(cursor.Y) * float64(gh)
			r := cursor.Radius * float64(gw)
			sign := float32(1)
			if cursor.Mode == engine.CursorRepel {
				sign = -1
			}
			force := float32(f.settings.ForceStrength*cursor.Strength*dt) * sign
			for y := 0; y < gh; y++ {
				for x := 0; x < gw; x++ {
					dx := float64(x) - cx
					dy := float64(y) - cy
					d2 := dx*dx + dy*dy
					if d2 > r*r || d2 < 1e-9 {
						continue
					}
					i := y*gw + x
					// Attract pulls toward the cursor, repel pushes away.
					nx[i] -= float32(dx/(r)) * force
					ny[i] -= float32(dy/(r)) * force
				}
			}
		}
		f.velX.Swap()
		f.velY.Swap()

		// Divergence of the advected field.
		ux, uy = f.velX.Current().Data(), f.velY.Current().Data()
		div := f.div.Data()
		f.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				up := ((y - 1 + gh) % gh) * gw
				down := ((y + 1) % gh) * gw
				row := y * gw
				for x := 0; x < gw; x++ {
					left := (x - 1 + gw) % gw
					right := (x + 1) % gw
					div[row+x] = 0.5 * (ux[row+right] - ux[row+left] + uy[down+x] - uy[up+x])
				}
			}
		})

		// Jacobi pressure solve: exactly settings.pressure_iterations
		// passes over the ping-pong pair.
		f.pressure.Zero()
		iters := f.settings.PressureIterations
		for it := 0; it < iters; it++ {
			pc := f.pressure.Current().Data()
			pn := f.pressure.Inactive().Data()
			f.dev.Each(gh, func(y0, y1 int) {
				for y := y0; y < y1; y++ {
					up := ((y - 1 + gh) % gh) * gw
					down := ((y + 1) % gh) * gw
					row := y * gw
					for x := 0; x < gw; x++ {
						left := (x - 1 + gw) % gw
						right := (x + 1) % gw
						i := row + x
						pn[i] = (pc[row+left] + pc[row+right] + pc[up+x] + pc[down+x] - div[i]) * 0.25
					}
				}
			})
			f.pressure.Swap()
		}
		f.lastPressureIters = iters

		// Projection: subtract the pressure gradient.
		p := f.pressure.Current().Data()
		f.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				up := ((y - 1 + gh) % gh) * gw
				down := ((y + 1) % gh) * gw
				row := y * gw
				for x := 0; x < gw; x++ {
					left := (x - 1 + gw) % gw
					right := (x + 1) % gw
					i := row + x
					ux[i] -= 0.5 * (p[row+right] - p[row+left])
					uy[i] -= 0.5 * (p[down+x] - p[up+x])
				}
			}
		})

		// Dye advection last.
		dc := f.dye.Current().Data()
		dn := f.dye.Inactive().Data()
		decay := float32(f.settings.DyeDecay)
		f.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				for x := 0; x < gw; x++ {
					i := y*gw + x
					px := float64(x) - float64(ux[i])*adt
					py := float64(y) - float64(uy[i])*adt
					dn[i] = bilinear(dc, gw, gh, px, py) * decay
				}
			}
		})
		f.dye.Swap()
	})
	return nil
}

// LastPressureIterations reports the Jacobi pass count of the most recent
// step.
func (f *fluidsSim) LastPressureIterations() int { return f.lastPressureIters }

func (f *fluidsSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		renderField(frame, f.dye.Current().Data(), f.gw, f.gh, f.colors, camera)
	})
	return nil
}

// Resize clears all fields into the new extent; velocity state is not
// meaningful across a reshape.
func (f *fluidsSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	nw, nh := gridExtent(cfg, 256)
	if nw == f.gw && nh == f.gh {
		return nil
	}
	old := *f
	next, err := newFluids(dev, q, cfg, settingsMap(&f.settings), nil)
	if err != nil {
		return err
	}
	nf := next.(*fluidsSim)
	old.release()
	f.velX, f.velY, f.pressure, f.dye, f.div = nf.velX, nf.velY, nf.pressure, nf.dye, nf.div
	f.gw, f.gh = nf.gw, nf.gh
	f.seedDye()
	return nil
}

func (f *fluidsSim) UpdateSettings(patch engine.Settings) error {
	next := f.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	f.settings = next
	return nil
}

func (f *fluidsSim) Settings() engine.Settings { return settingsMap(&f.settings) }

// ResetTrails clears the dye, keeping the velocity field.
func (f *fluidsSim) ResetTrails() error {
	f.dye.Zero()
	return nil
}

func (f *fluidsSim) ResetState() error {
	f.velX.Zero()
	f.velY.Zero()
	f.pressure.Zero()
	f.seedDye()
	return nil
}

func (f *fluidsSim) SnapshotState() ([]byte, error) {
	return f.snapshot(&f.settings, map[string]any{
		"pressure_iterations_last_step": f.lastPressureIters,
	})
}

func (f *fluidsSim) Dispose() {
	f.release()
	f.base.Dispose()
}
