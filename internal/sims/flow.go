package sims

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const flowStride = 2 // x, y

type flowSettings struct {
	ParticleCount int     `settings:"particle_count" yaml:"particle_count"`
	NoiseScale    float64 `settings:"noise_scale" yaml:"noise_scale"`
	FlowSpeed     float64 `settings:"flow_speed" yaml:"flow_speed"`
	EvolveSpeed   float64 `settings:"evolve_speed" yaml:"evolve_speed"`
	FadeRate      float64 `settings:"fade_rate" yaml:"fade_rate"`
}

func flowDefaults() engine.Settings {
	return settingsMap(&flowSettings{
		ParticleCount: 20_000,
		NoiseScale:    3.0,
		FlowSpeed:     0.12,
		EvolveSpeed:   0.1,
		FadeRate:      0.97,
	})
}

func (s *flowSettings) validate() error {
	switch {
	case s.ParticleCount < 1 || s.ParticleCount > 2_000_000:
		return engine.InvalidSetting("particle_count", "must be in [1,2000000]")
	case s.NoiseScale <= 0:
		return engine.InvalidSetting("noise_scale", "must be positive")
	case s.FadeRate <= 0 || s.FadeRate > 1:
		return engine.InvalidSetting("fade_rate", "must be in (0,1]")
	}
	return nil
}

// flowSim advects tracer particles through an evolving Perlin flow field,
// accumulating their paths into a fading trail buffer.
type flowSim struct {
	base
	settings flowSettings
	dev      *gpu.Device

	gw, gh    int
	particles *gpu.PingPong
	trail     *gpu.Buffer
	noise     *perlin.Perlin
	time      float64
	rng       *rand.Rand
}

func newFlow(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := flowSettings{}
	decodePatch(flowDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	gw, gh := gridExtent(cfg, 512)
	f := &flowSim{
		base:     newBase(engine.Flow, table),
		settings: s,
		dev:      dev,
		gw:       gw,
		gh:       gh,
		noise:    perlin.NewPerlin(2, 2, 3, rand.Int63()),
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if f.particles, err = gpu.NewPingPong(dev, s.ParticleCount*flowStride, gpu.UsageStorage, "flow particles"); err != nil {
		return nil, err
	}
	if f.trail, err = dev.NewBuffer(gw*gh, gpu.UsageStorage, "flow trail"); err != nil {
		f.particles.Release()
		return nil, err
	}
	f.seed()
	return f, nil
}

func (f *flowSim) seed() {
	d := f.particles.Current().Data()
	for i := 0; i < f.settings.ParticleCount; i++ {
		d[i*flowStride+0] = f.rng.Float32()
		d[i*flowStride+1] = f.rng.Float32()
	}
	f.particles.Inactive().CopyFrom(f.particles.Current())
}

func (f *flowSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !f.running {
		return nil
	}
	f.camera = camera
	s := f.settings
	f.time += dt * s.EvolveSpeed

	q.Submit(func() {
		cur := f.particles.Current().Data()
		next := f.particles.Inactive().Data()
		trail := f.trail.Data()

		fade := float32(s.FadeRate)
		for i := range trail {
			trail[i] *= fade
		}

		f.dev.Each(s.ParticleCount, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				x := float64(cur[i*flowStride+0])
				y := float64(cur[i*flowStride+1])

				angle := f.noise.Noise3D(x*s.NoiseScale, y*s.NoiseScale, f.time) * 2 * math.Pi
				vx := math.Cos(angle) * s.FlowSpeed
				vy := math.Sin(angle) * s.FlowSpeed

				if cursor.Mode != engine.CursorInactive {
					dx := torus(cursor.X - x)
					dy := torus(cursor.Y - y)
					d2 := dx*dx + dy*dy
					if d2 < cursor.Radius*cursor.Radius && d2 > 1e-10 {
						d := math.Sqrt(d2)
						pull := cursor.Strength * s.FlowSpeed
						if cursor.Mode == engine.CursorRepel {
							pull = -pull
						}
						vx += dx / d * pull
						vy += dy / d * pull
					}
				}

				next[i*flowStride+0] = float32(wrap(x + vx*dt))
				next[i*flowStride+1] = float32(wrap(y + vy*dt))
			}
		})

		for i := 0; i < s.ParticleCount; i++ {
			gx := int(wrap(float64(next[i*flowStride+0])) * float64(f.gw))
			gy := int(wrap(float64(next[i*flowStride+1])) * float64(f.gh))
			if gx >= f.gw {
				gx = f.gw - 1
			}
			if gy >= f.gh {
				gy = f.gh - 1
			}
			j := gy*f.gw + gx
			if trail[j] < 1 {
				trail[j] += 0.25
			}
		}
		f.particles.Swap()
	})
	return nil
}

func (f *flowSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		renderField(frame, f.trail.Data(), f.gw, f.gh, f.colors, camera)
	})
	return nil
}

func (f *flowSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	nw, nh := gridExtent(cfg, 512)
	if nw == f.gw && nh == f.gh {
		return nil
	}
	nt, err := dev.NewBuffer(nw*nh, gpu.UsageStorage, "flow trail")
	if err != nil {
		return fieldErr("flow resize", err)
	}
	f.trail.Release()
	f.trail = nt
	f.gw, f.gh = nw, nh
	return nil
}

func (f *flowSim) UpdateSettings(patch engine.Settings) error {
	next := f.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.ParticleCount != f.settings.ParticleCount {
		np, err := gpu.NewPingPong(f.dev, next.ParticleCount*flowStride, gpu.UsageStorage, "flow particles")
		if err != nil {
			return fieldErr("flow realloc", err)
		}
		f.particles.Release()
		f.particles = np
		f.settings = next
		f.seed()
		return nil
	}
	f.settings = next
	return nil
}

func (f *flowSim) Settings() engine.Settings { return settingsMap(&f.settings) }

func (f *flowSim) ResetTrails() error {
	f.trail.Zero()
	return nil
}

func (f *flowSim) ResetAgents() error {
	f.seed()
	return nil
}

func (f *flowSim) ResetState() error {
	f.trail.Zero()
	f.seed()
	f.time = 0
	return nil
}

func (f *flowSim) SnapshotState() ([]byte, error) {
	return f.snapshot(&f.settings, nil)
}

func (f *flowSim) Dispose() {
	f.particles.Release()
	f.trail.Release()
	f.base.Dispose()
}
