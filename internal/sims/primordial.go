package sims

import (
	"math"
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const ppsStride = 3 // x, y, heading

type primordialSettings struct {
	ParticleCount int     `settings:"particle_count" yaml:"particle_count"`
	Alpha         float64 `settings:"alpha" yaml:"alpha"` // fixed rotation, radians
	Beta          float64 `settings:"beta" yaml:"beta"`   // per-neighbor rotation, radians
	Radius        float64 `settings:"radius" yaml:"radius"`
	Speed         float64 `settings:"speed" yaml:"speed"`
}

func primordialDefaults() engine.Settings {
	return settingsMap(&primordialSettings{
		ParticleCount: 3000,
		Alpha:         math.Pi,
		Beta:          0.296706, // 17 degrees
		Radius:        0.05,
		Speed:         0.067,
	})
}

func (s *primordialSettings) validate() error {
	switch {
	case s.ParticleCount < 1 || s.ParticleCount > 500_000:
		return engine.InvalidSetting("particle_count", "must be in [1,500000]")
	case s.Radius <= 0 || s.Radius > 0.5:
		return engine.InvalidSetting("radius", "must be in (0,0.5]")
	case s.Speed <= 0:
		return engine.InvalidSetting("speed", "must be positive")
	}
	return nil
}

// primordialSim is the Primordial Particle System: each particle turns by
// alpha plus beta times the signed neighbor imbalance, then moves forward
// at constant speed. Local density drives the display color.
type primordialSim struct {
	base
	settings primordialSettings
	dev      *gpu.Device

	particles *gpu.PingPong
	density   []float32 // per-particle neighbor count, render only
	rng       *rand.Rand
}

func newPrimordial(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := primordialSettings{}
	decodePatch(primordialDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	p := &primordialSim{
		base:     newBase(engine.PrimordialParticles, table),
		settings: s,
		dev:      dev,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if p.particles, err = gpu.NewPingPong(dev, s.ParticleCount*ppsStride, gpu.UsageStorage, "primordial"); err != nil {
		return nil, err
	}
	p.density = make([]float32, s.ParticleCount)
	p.seed()
	return p, nil
}

func (p *primordialSim) seed() {
	d := p.particles.Current().Data()
	for i := 0; i < p.settings.ParticleCount; i++ {
		d[i*ppsStride+0] = p.rng.Float32()
		d[i*ppsStride+1] = p.rng.Float32()
		d[i*ppsStride+2] = float32(p.rng.Float64() * 2 * math.Pi)
	}
	p.particles.Inactive().CopyFrom(p.particles.Current())
}

func (p *primordialSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !p.running {
		return nil
	}
	p.camera = camera
	s := p.settings

	q.Submit(func() {
		cur := p.particles.Current().Data()
		next := p.particles.Inactive().Data()
		n := s.ParticleCount
		r2 := s.Radius * s.Radius

		p.dev.Each(n, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				x := float64(cur[i*ppsStride+0])
				y := float64(cur[i*ppsStride+1])
				heading := float64(cur[i*ppsStride+2])
				sin, cos := math.Sincos(heading)

				left, right := 0, 0
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					dx := torus(float64(cur[j*ppsStride+0]) - x)
					dy := torus(float64(cur[j*ppsStride+1]) - y)
					if dx*dx+dy*dy > r2 {
						continue
					}
					// Sign of the cross product sorts neighbors by side.
					if cos*dy-sin*dx > 0 {
						left++
					} else {
						right++
					}
				}
				nn := left + right
				p.density[i] = float32(nn)

				sign := 1.0
				if right > left {
					sign = -1
				} else if right == left {
					sign = 0
				}
				heading += s.Alpha*dt*4 + s.Beta*float64(nn)*sign*dt*4

				if cursor.Mode != engine.CursorInactive {
					dx := torus(cursor.X - x)
					dy := torus(cursor.Y - y)
					d2 := dx*dx + dy*dy
					if d2 < cursor.Radius*cursor.Radius && d2 > 1e-10 {
						target := math.Atan2(dy, dx)
						if cursor.Mode == engine.CursorRepel {
							target += math.Pi
						}
						heading += angleDiff(target, heading) * cursor.Strength * dt * 5
					}
				}

				next[i*ppsStride+0] = float32(wrap(x + math.Cos(heading)*s.Speed*dt))
				next[i*ppsStride+1] = float32(wrap(y + math.Sin(heading)*s.Speed*dt))
				next[i*ppsStride+2] = float32(heading)
			}
		})
		p.particles.Swap()
	})
	return nil
}

func (p *primordialSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		clearFrame(frame, p.colors)
		cur := p.particles.Current().Data()
		for i := 0; i < p.settings.ParticleCount; i++ {
			v := clamp01(0.2 + float64(p.density[i])/25)
			plot(frame, camera, float64(cur[i*ppsStride+0]), float64(cur[i*ppsStride+1]), v, p.colors)
		}
	})
	return nil
}

func (p *primordialSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	return nil
}

func (p *primordialSim) UpdateSettings(patch engine.Settings) error {
	next := p.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.ParticleCount != p.settings.ParticleCount {
		np, err := gpu.NewPingPong(p.dev, next.ParticleCount*ppsStride, gpu.UsageStorage, "primordial")
		if err != nil {
			return fieldErr("primordial realloc", err)
		}
		p.particles.Release()
		p.particles = np
		p.density = make([]float32, next.ParticleCount)
		p.settings = next
		p.seed()
		return nil
	}
	p.settings = next
	return nil
}

func (p *primordialSim) Settings() engine.Settings { return settingsMap(&p.settings) }

func (p *primordialSim) ResetAgents() error {
	p.seed()
	return nil
}

func (p *primordialSim) ResetState() error {
	p.seed()
	return nil
}

func (p *primordialSim) SnapshotState() ([]byte, error) {
	return p.snapshot(&p.settings, nil)
}

func (p *primordialSim) Dispose() {
	p.particles.Release()
	p.base.Dispose()
}
