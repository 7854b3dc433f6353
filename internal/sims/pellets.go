package sims

import (
	"math"
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const (
	pelletEaterStride = 4 // x, y, vx, vy
	pelletFoodStride  = 3 // x, y, alive
)

type pelletsSettings struct {
	EaterCount  int     `settings:"eater_count" yaml:"eater_count"`
	PelletCount int     `settings:"pellet_count" yaml:"pellet_count"`
	EaterSpeed  float64 `settings:"eater_speed" yaml:"eater_speed"`
	EatRadius   float64 `settings:"eat_radius" yaml:"eat_radius"`
	RespawnRate float64 `settings:"respawn_rate" yaml:"respawn_rate"`
}

func pelletsDefaults() engine.Settings {
	return settingsMap(&pelletsSettings{
		EaterCount:  60,
		PelletCount: 1500,
		EaterSpeed:  0.15,
		EatRadius:   0.012,
		RespawnRate: 0.5,
	})
}

func (s *pelletsSettings) validate() error {
	switch {
	case s.EaterCount < 1 || s.EaterCount > 100_000:
		return engine.InvalidSetting("eater_count", "must be in [1,100000]")
	case s.PelletCount < 1 || s.PelletCount > 1_000_000:
		return engine.InvalidSetting("pellet_count", "must be in [1,1000000]")
	case s.EaterSpeed <= 0:
		return engine.InvalidSetting("eater_speed", "must be positive")
	case s.EatRadius <= 0:
		return engine.InvalidSetting("eat_radius", "must be positive")
	}
	return nil
}

// pelletsSim: chaser agents steer toward the nearest live pellet and
// consume it; eaten pellets respawn elsewhere at respawn_rate.
type pelletsSim struct {
	base
	settings pelletsSettings
	dev      *gpu.Device

	eaters  *gpu.PingPong
	pellets *gpu.Buffer
	eaten   int
	rng     *rand.Rand
}

func newPellets(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := pelletsSettings{}
	decodePatch(pelletsDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	p := &pelletsSim{
		base:     newBase(engine.Pellets, table),
		settings: s,
		dev:      dev,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if p.eaters, err = gpu.NewPingPong(dev, s.EaterCount*pelletEaterStride, gpu.UsageStorage, "pellet eaters"); err != nil {
		return nil, err
	}
	if p.pellets, err = dev.NewBuffer(s.PelletCount*pelletFoodStride, gpu.UsageStorage, "pellets"); err != nil {
		p.eaters.Release()
		return nil, err
	}
	p.seedEaters()
	p.seedPellets()
	return p, nil
}

func (p *pelletsSim) seedEaters() {
	d := p.eaters.Current().Data()
	for i := 0; i < p.settings.EaterCount; i++ {
		d[i*pelletEaterStride+0] = p.rng.Float32()
		d[i*pelletEaterStride+1] = p.rng.Float32()
		d[i*pelletEaterStride+2] = 0
		d[i*pelletEaterStride+3] = 0
	}
	p.eaters.Inactive().CopyFrom(p.eaters.Current())
}

func (p *pelletsSim) seedPellets() {
	d := p.pellets.Data()
	for i := 0; i < p.settings.PelletCount; i++ {
		d[i*pelletFoodStride+0] = p.rng.Float32()
		d[i*pelletFoodStride+1] = p.rng.Float32()
		d[i*pelletFoodStride+2] = 1
	}
}

func (p *pelletsSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !p.running {
		return nil
	}
	p.camera = camera
	s := p.settings

	q.Submit(func() {
		cur := p.eaters.Current().Data()
		next := p.eaters.Inactive().Data()
		food := p.pellets.Data()

		p.dev.Each(s.EaterCount, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				x := float64(cur[i*pelletEaterStride+0])
				y := float64(cur[i*pelletEaterStride+1])
				vx := float64(cur[i*pelletEaterStride+2])
				vy := float64(cur[i*pelletEaterStride+3])

				// Nearest live pellet.
				bestD := math.MaxFloat64
				bx, by := x, y
				for j := 0; j < s.PelletCount; j++ {
					if food[j*pelletFoodStride+2] == 0 {
						continue
					}
					dx := torus(float64(food[j*pelletFoodStride+0]) - x)
					dy := torus(float64(food[j*pelletFoodStride+1]) - y)
					d := dx*dx + dy*dy
					if d < bestD {
						bestD = d
						bx, by = dx, dy
					}
				}
				if bestD < math.MaxFloat64 && bestD > 1e-12 {
					d := math.Sqrt(bestD)
					vx = vx*0.9 + bx/d*s.EaterSpeed*dt*4
					vy = vy*0.9 + by/d*s.EaterSpeed*dt*4
				}

				if cursor.Mode != engine.CursorInactive {
					dx := torus(cursor.X - x)
					dy := torus(cursor.Y - y)
					d2 := dx*dx + dy*dy
					if d2 < cursor.Radius*cursor.Radius && d2 > 1e-10 {
						d := math.Sqrt(d2)
						f := cursor.Strength * s.EaterSpeed * dt * 4
						if cursor.Mode == engine.CursorRepel {
							f = -f
						}
						vx += dx / d * f
						vy += dy / d * f
					}
				}

				sp := math.Hypot(vx, vy)
				if sp > s.EaterSpeed {
					vx = vx / sp * s.EaterSpeed
					vy = vy / sp * s.EaterSpeed
				}
				next[i*pelletEaterStride+0] = float32(wrap(x + vx*dt))
				next[i*pelletEaterStride+1] = float32(wrap(y + vy*dt))
				next[i*pelletEaterStride+2] = float32(vx)
				next[i*pelletEaterStride+3] = float32(vy)
			}
		})

		// Consumption and respawn run serially after the movement pass.
		r2 := s.EatRadius * s.EatRadius
		for j := 0; j < s.PelletCount; j++ {
			if food[j*pelletFoodStride+2] == 0 {
				if p.rng.Float64() < s.RespawnRate*dt {
					food[j*pelletFoodStride+0] = p.rng.Float32()
					food[j*pelletFoodStride+1] = p.rng.Float32()
					food[j*pelletFoodStride+2] = 1
				}
				continue
			}
			fx := float64(food[j*pelletFoodStride+0])
			fy := float64(food[j*pelletFoodStride+1])
			for i := 0; i < s.EaterCount; i++ {
				dx := torus(float64(next[i*pelletEaterStride+0]) - fx)
				dy := torus(float64(next[i*pelletEaterStride+1]) - fy)
				if dx*dx+dy*dy < r2 {
					food[j*pelletFoodStride+2] = 0
					p.eaten++
					break
				}
			}
		}
		p.eaters.Swap()
	})
	return nil
}

func (p *pelletsSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		clearFrame(frame, p.colors)
		food := p.pellets.Data()
		for j := 0; j < p.settings.PelletCount; j++ {
			if food[j*pelletFoodStride+2] == 1 {
				plot(frame, camera, float64(food[j*pelletFoodStride+0]), float64(food[j*pelletFoodStride+1]), 0.45, p.colors)
			}
		}
		cur := p.eaters.Current().Data()
		for i := 0; i < p.settings.EaterCount; i++ {
			plot(frame, camera, float64(cur[i*pelletEaterStride+0]), float64(cur[i*pelletEaterStride+1]), 1, p.colors)
		}
	})
	return nil
}

func (p *pelletsSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	return nil
}

func (p *pelletsSim) UpdateSettings(patch engine.Settings) error {
	next := p.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.EaterCount != p.settings.EaterCount || next.PelletCount != p.settings.PelletCount {
		ne, err := gpu.NewPingPong(p.dev, next.EaterCount*pelletEaterStride, gpu.UsageStorage, "pellet eaters")
		if err != nil {
			return fieldErr("pellets realloc", err)
		}
		nf, err := p.dev.NewBuffer(next.PelletCount*pelletFoodStride, gpu.UsageStorage, "pellets")
		if err != nil {
			ne.Release()
			return fieldErr("pellets realloc", err)
		}
		p.eaters.Release()
		p.pellets.Release()
		p.eaters, p.pellets = ne, nf
		p.settings = next
		p.seedEaters()
		p.seedPellets()
		return nil
	}
	p.settings = next
	return nil
}

func (p *pelletsSim) Settings() engine.Settings { return settingsMap(&p.settings) }

func (p *pelletsSim) ResetAgents() error {
	p.seedEaters()
	return nil
}

func (p *pelletsSim) ResetState() error {
	p.seedEaters()
	p.seedPellets()
	p.eaten = 0
	return nil
}

func (p *pelletsSim) SnapshotState() ([]byte, error) {
	return p.snapshot(&p.settings, map[string]any{"pellets_eaten": p.eaten})
}

func (p *pelletsSim) Dispose() {
	p.eaters.Release()
	p.pellets.Release()
	p.base.Dispose()
}
