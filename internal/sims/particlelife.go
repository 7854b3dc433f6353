package sims

import (
	"math"
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const plStride = 5 // x, y, vx, vy, species

type particleLifeSettings struct {
	ParticleCount int     `settings:"particle_count" yaml:"particle_count"`
	SpeciesCount  int     `settings:"species_count" yaml:"species_count"`
	MaxRadius     float64 `settings:"max_radius" yaml:"max_radius"`
	Friction      float64 `settings:"friction" yaml:"friction"`
	ForceScale    float64 `settings:"force_scale" yaml:"force_scale"`
}

func particleLifeDefaults() engine.Settings {
	return settingsMap(&particleLifeSettings{
		ParticleCount: 2000,
		SpeciesCount:  4,
		MaxRadius:     0.08,
		Friction:      0.85,
		ForceScale:    0.3,
	})
}

func (s *particleLifeSettings) validate() error {
	switch {
	case s.ParticleCount < 2 || s.ParticleCount > 200_000:
		return engine.InvalidSetting("particle_count", "must be in [2,200000]")
	case s.SpeciesCount < 1 || s.SpeciesCount > 16:
		return engine.InvalidSetting("species_count", "must be in [1,16]")
	case s.MaxRadius <= 0 || s.MaxRadius > 0.5:
		return engine.InvalidSetting("max_radius", "must be in (0,0.5]")
	case s.Friction <= 0 || s.Friction > 1:
		return engine.InvalidSetting("friction", "must be in (0,1]")
	}
	return nil
}

// particleLifeSim: per-species-pair attraction matrix drives emergent
// clustering. Particles live in a ping-pong pair; the step reads current
// and writes next.
type particleLifeSim struct {
	base
	settings particleLifeSettings
	dev      *gpu.Device

	particles *gpu.PingPong
	forces    [][]float64 // species × species, in [-1,1]
	rng       *rand.Rand
}

func newParticleLife(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := particleLifeSettings{}
	decodePatch(particleLifeDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	p := &particleLifeSim{
		base:     newBase(engine.ParticleLife, table),
		settings: s,
		dev:      dev,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if p.particles, err = gpu.NewPingPong(dev, s.ParticleCount*plStride, gpu.UsageStorage, "particle life"); err != nil {
		return nil, err
	}
	p.seed()
	return p, nil
}

func (p *particleLifeSim) seed() {
	s := p.settings
	p.forces = make([][]float64, s.SpeciesCount)
	for i := range p.forces {
		p.forces[i] = make([]float64, s.SpeciesCount)
		for j := range p.forces[i] {
			p.forces[i][j] = p.rng.Float64()*2 - 1
		}
	}
	d := p.particles.Current().Data()
	for i := 0; i < s.ParticleCount; i++ {
		d[i*plStride+0] = p.rng.Float32()
		d[i*plStride+1] = p.rng.Float32()
		d[i*plStride+2] = 0
		d[i*plStride+3] = 0
		d[i*plStride+4] = float32(p.rng.Intn(s.SpeciesCount))
	}
	p.particles.Inactive().CopyFrom(p.particles.Current())
}

func (p *particleLifeSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !p.running {
		return nil
	}
	p.camera = camera
	s := p.settings

	q.Submit(func() {
		cur := p.particles.Current().Data()
		next := p.particles.Inactive().Data()
		n := s.ParticleCount
		r2 := s.MaxRadius * s.MaxRadius

		p.dev.Each(n, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				xi := float64(cur[i*plStride+0])
				yi := float64(cur[i*plStride+1])
				vx := float64(cur[i*plStride+2])
				vy := float64(cur[i*plStride+3])
				si := int(cur[i*plStride+4])

				fx, fy := 0.0, 0.0
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					dx := torus(float64(cur[j*plStride+0]) - xi)
					dy := torus(float64(cur[j*plStride+1]) - yi)
					d2 := dx*dx + dy*dy
					if d2 > r2 || d2 < 1e-10 {
						continue
					}
					d := math.Sqrt(d2)
					sj := int(cur[j*plStride+4])
					// Hard-core repulsion inside a third of the radius,
					// matrix-driven attraction outside it.
					var f float64
					inner := s.MaxRadius / 3
					if d < inner {
						f = d/inner - 1
					} else {
						f = p.forces[si][sj] * (1 - math.Abs(2*d-s.MaxRadius-inner)/(s.MaxRadius-inner))
					}
					fx += dx / d * f
					fy += dy / d * f
				}

				if cursor.Mode != engine.CursorInactive {
					dx := torus(cursor.X - xi)
					dy := torus(cursor.Y - yi)
					d2 := dx*dx + dy*dy
					if d2 < cursor.Radius*cursor.Radius && d2 > 1e-10 {
						d := math.Sqrt(d2)
						f := cursor.Strength
						if cursor.Mode == engine.CursorRepel {
							f = -f
						}
						fx += dx / d * f
						fy += dy / d * f
					}
				}

				vx = vx*s.Friction + fx*s.ForceScale*dt
				vy = vy*s.Friction + fy*s.ForceScale*dt
				next[i*plStride+0] = float32(wrap(xi + vx*dt))
				next[i*plStride+1] = float32(wrap(yi + vy*dt))
				next[i*plStride+2] = float32(vx)
				next[i*plStride+3] = float32(vy)
				next[i*plStride+4] = cur[i*plStride+4]
			}
		})
		p.particles.Swap()
	})
	return nil
}

// torus maps a coordinate difference onto the shortest wrapped distance.
func torus(d float64) float64 {
	if d > 0.5 {
		return d - 1
	}
	if d < -0.5 {
		return d + 1
	}
	return d
}

func (p *particleLifeSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		clearFrame(frame, p.colors)
		cur := p.particles.Current().Data()
		denom := float64(p.settings.SpeciesCount)
		if denom < 2 {
			denom = 2
		}
		for i := 0; i < p.settings.ParticleCount; i++ {
			v := 0.2 + 0.8*float64(cur[i*plStride+4])/(denom-1)
			plot(frame, camera, float64(cur[i*plStride+0]), float64(cur[i*plStride+1]), v, p.colors)
		}
	})
	return nil
}

func (p *particleLifeSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	// Particles live in normalized world space; nothing size-dependent.
	return nil
}

func (p *particleLifeSim) UpdateSettings(patch engine.Settings) error {
	next := p.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	realloc := next.ParticleCount != p.settings.ParticleCount ||
		next.SpeciesCount != p.settings.SpeciesCount
	if realloc {
		np, err := gpu.NewPingPong(p.dev, next.ParticleCount*plStride, gpu.UsageStorage, "particle life")
		if err != nil {
			return fieldErr("particle realloc", err)
		}
		p.particles.Release()
		p.particles = np
		p.settings = next
		p.seed()
		return nil
	}
	p.settings = next
	return nil
}

func (p *particleLifeSim) Settings() engine.Settings { return settingsMap(&p.settings) }

func (p *particleLifeSim) ResetAgents() error {
	p.seed()
	return nil
}

func (p *particleLifeSim) ResetState() error {
	p.seed()
	return nil
}

func (p *particleLifeSim) SnapshotState() ([]byte, error) {
	return p.snapshot(&p.settings, nil)
}

func (p *particleLifeSim) Dispose() {
	p.particles.Release()
	p.base.Dispose()
}
