package sims

import (
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

// grayScottSettings are the reaction-diffusion parameters. None of them
// change buffer sizes; the grid follows the surface extent.
type grayScottSettings struct {
	FeedRate               float64 `settings:"feed_rate" yaml:"feed_rate"`
	KillRate               float64 `settings:"kill_rate" yaml:"kill_rate"`
	DiffusionRateU         float64 `settings:"diffusion_rate_u" yaml:"diffusion_rate_u"`
	DiffusionRateV         float64 `settings:"diffusion_rate_v" yaml:"diffusion_rate_v"`
	Timestep               float64 `settings:"timestep" yaml:"timestep"`
	MaxTimestep            float64 `settings:"max_timestep" yaml:"max_timestep"`
	StabilityFactor        float64 `settings:"stability_factor" yaml:"stability_factor"`
	EnableAdaptiveTimestep bool    `settings:"enable_adaptive_timestep" yaml:"enable_adaptive_timestep"`
}

func grayScottDefaults() engine.Settings {
	return settingsMap(&grayScottSettings{
		FeedRate:        0.055,
		KillRate:        0.062,
		DiffusionRateU:  0.16,
		DiffusionRateV:  0.08,
		Timestep:        1.0,
		MaxTimestep:     2.0,
		StabilityFactor: 0.8,
	})
}

func (s *grayScottSettings) validate() error {
	switch {
	case s.FeedRate < 0 || s.FeedRate > 1:
		return engine.InvalidSetting("feed_rate", "must be in [0,1]")
	case s.KillRate < 0 || s.KillRate > 1:
		return engine.InvalidSetting("kill_rate", "must be in [0,1]")
	case s.DiffusionRateU <= 0 || s.DiffusionRateV <= 0:
		return engine.InvalidSetting("diffusion_rate_u", "diffusion rates must be positive")
	case s.Timestep <= 0:
		return engine.InvalidSetting("timestep", "must be positive")
	case s.MaxTimestep < s.Timestep:
		return engine.InvalidSetting("max_timestep", "must be >= timestep")
	case s.StabilityFactor <= 0 || s.StabilityFactor > 1:
		return engine.InvalidSetting("stability_factor", "must be in (0,1]")
	}
	return nil
}

// grayScottSim runs two-species reaction-diffusion on a toroidal grid.
// Both scalar fields live in ping-pong pairs; one step reads the current
// sides and writes the inactive sides, then swaps.
type grayScottSim struct {
	base
	settings grayScottSettings
	dev      *gpu.Device

	gw, gh int
	u, v   *gpu.PingPong
	rng    *rand.Rand
}

func newGrayScott(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := grayScottSettings{}
	decodePatch(engine.Settings(grayScottDefaults()), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	gw, gh := gridExtent(cfg, 512)
	g := &grayScottSim{
		base:     newBase(engine.GrayScott, table),
		settings: s,
		dev:      dev,
		gw:       gw,
		gh:       gh,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if g.u, err = gpu.NewPingPong(dev, gw*gh, gpu.UsageStorage, "grayscott u"); err != nil {
		return nil, err
	}
	if g.v, err = gpu.NewPingPong(dev, gw*gh, gpu.UsageStorage, "grayscott v"); err != nil {
		g.u.Release()
		return nil, err
	}
	g.seed()
	return g, nil
}

// seed fills U with substrate and drops a noisy square of V in the middle.
func (g *grayScottSim) seed() {
	u := g.u.Current().Data()
	v := g.v.Current().Data()
	for i := range u {
		u[i] = 1
		v[i] = 0
	}
	cx, cy, r := g.gw/2, g.gh/2, g.gw/16
	for y := cy - r; y < cy+r; y++ {
		for x := cx - r; x < cx+r; x++ {
			if g.rng.Float32() < 0.8 {
				v[((y+g.gh)%g.gh)*g.gw+(x+g.gw)%g.gw] = 1
			}
		}
	}
	g.u.Inactive().CopyFrom(g.u.Current())
	g.v.Inactive().CopyFrom(g.v.Current())
}

// effectiveTimestep applies the adaptive bound when enabled.
func (g *grayScottSim) effectiveTimestep(dt float64) float64 {
	ts := g.settings.Timestep
	if !g.settings.EnableAdaptiveTimestep {
		return ts
	}
	// Scale with the real frame delta, never past the stability bound.
	bound := g.settings.MaxTimestep * g.settings.StabilityFactor
	return clamp(ts*dt*60, ts*0.25, bound)
}

func (g *grayScottSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !g.running {
		return nil
	}
	g.camera = camera
	ts := float32(g.effectiveTimestep(dt))
	feed := float32(g.settings.FeedRate)
	kill := float32(g.settings.KillRate)
	du := float32(g.settings.DiffusionRateU)
	dvv := float32(g.settings.DiffusionRateV)

	q.Submit(func() {
		uc := g.u.Current().Data()
		vc := g.v.Current().Data()
		un := g.u.Inactive().Data()
		vn := g.v.Inactive().Data()
		gw, gh := g.gw, g.gh

		g.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				up := ((y-1+gh)%gh)*gw
				down := ((y+1)%gh)*gw
				row := y * gw
				for x := 0; x < gw; x++ {
					left := (x - 1 + gw) % gw
					right := (x + 1) % gw
					i := row + x

					lapU := uc[up+x] + uc[down+x] + uc[row+left] + uc[row+right] - 4*uc[i]
					lapV := vc[up+x] + vc[down+x] + vc[row+left] + vc[row+right] - 4*vc[i]

					uv2 := uc[i] * vc[i] * vc[i]
					un[i] = uc[i] + ts*(du*lapU-uv2+feed*(1-uc[i]))
					vn[i] = vc[i] + ts*(dvv*lapV+uv2-(feed+kill)*vc[i])
				}
			}
		})

		g.applyCursor(vn, cursor)
		g.u.Swap()
		g.v.Swap()
	})
	return nil
}

// applyCursor injects or removes activator inside the cursor radius.
func (g *grayScottSim) applyCursor(v []float32, c engine.CursorState) {
	if c.Mode == engine.CursorInactive || c.Radius <= 0 {
		return
	}
	gw, gh := g.gw, g.gh
	r := int(c.Radius * float64(gw))
	if r < 1 {
		r = 1
	}
	cx := int(wrap(c.X) * float64(gw))
	cy := int(wrap(c.Y) * float64(gh))
	amount := float32(c.Strength)
	if c.Mode == engine.CursorRepel {
		amount = -amount
	}
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			i := ((cy+dy+gh)%gh)*gw + (cx+dx+gw)%gw
			v[i] = float32(clamp01(float64(v[i] + amount*0.1)))
		}
	}
}

func (g *grayScottSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		renderField(frame, g.v.Current().Data(), g.gw, g.gh, g.colors, camera)
	})
	return nil
}

// Resize resamples both fields bilinearly into the new extent. Policy:
// GrayScott preserves field contents across resizes.
func (g *grayScottSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	nw, nh := gridExtent(cfg, 512)
	if nw == g.gw && nh == g.gh {
		return nil
	}
	nu, err := gpu.NewPingPong(dev, nw*nh, gpu.UsageStorage, "grayscott u")
	if err != nil {
		return fieldErr("grayscott resize", err)
	}
	nv, err := gpu.NewPingPong(dev, nw*nh, gpu.UsageStorage, "grayscott v")
	if err != nil {
		nu.Release()
		return fieldErr("grayscott resize", err)
	}
	resampleBilinear(g.u.Current().Data(), g.gw, g.gh, nu.Current().Data(), nw, nh)
	resampleBilinear(g.v.Current().Data(), g.gw, g.gh, nv.Current().Data(), nw, nh)
	nu.Inactive().CopyFrom(nu.Current())
	nv.Inactive().CopyFrom(nv.Current())

	g.u.Release()
	g.v.Release()
	g.u, g.v = nu, nv
	g.gw, g.gh = nw, nh
	return nil
}

func (g *grayScottSim) UpdateSettings(patch engine.Settings) error {
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

func (g *grayScottSim) Settings() engine.Settings { return settingsMap(&g.settings) }

func (g *grayScottSim) ResetState() error {
	g.seed()
	return nil
}

func (g *grayScottSim) SnapshotState() ([]byte, error) {
	return g.snapshot(&g.settings, nil)
}

func (g *grayScottSim) Dispose() {
	g.u.Release()
	g.v.Release()
	g.base.Dispose()
}

// resampleBilinear stretches src (sw×sh) into dst (dw×dh).
func resampleBilinear(src []float32, sw, sh int, dst []float32, dw, dh int) {
	for y := 0; y < dh; y++ {
		fy := float64(y) / float64(dh) * float64(sh-1)
		y0 := int(fy)
		y1 := y0 + 1
		if y1 >= sh {
			y1 = sh - 1
		}
		wy := float32(fy - float64(y0))
		for x := 0; x < dw; x++ {
			fx := float64(x) / float64(dw) * float64(sw-1)
			x0 := int(fx)
			x1 := x0 + 1
			if x1 >= sw {
				x1 = sw - 1
			}
			wx := float32(fx - float64(x0))

			top := src[y0*sw+x0]*(1-wx) + src[y0*sw+x1]*wx
			bot := src[y1*sw+x0]*(1-wx) + src[y1*sw+x1]*wx
			dst[y*dw+x] = top*(1-wy) + bot*wy
		}
	}
}
