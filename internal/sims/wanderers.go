package sims

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const wandererStride = 3 // x, y, heading

type wanderersSettings struct {
	WandererCount int     `settings:"wanderer_count" yaml:"wanderer_count"`
	Speed         float64 `settings:"speed" yaml:"speed"`
	Jitter        float64 `settings:"jitter" yaml:"jitter"`
	NoisePull     float64 `settings:"noise_pull" yaml:"noise_pull"`
	FadeRate      float64 `settings:"fade_rate" yaml:"fade_rate"`
}

func wanderersDefaults() engine.Settings {
	return settingsMap(&wanderersSettings{
		WandererCount: 800,
		Speed:         0.06,
		Jitter:        2.0,
		NoisePull:     1.5,
		FadeRate:      0.99,
	})
}

func (s *wanderersSettings) validate() error {
	switch {
	case s.WandererCount < 1 || s.WandererCount > 500_000:
		return engine.InvalidSetting("wanderer_count", "must be in [1,500000]")
	case s.Speed <= 0:
		return engine.InvalidSetting("speed", "must be positive")
	case s.FadeRate <= 0 || s.FadeRate > 1:
		return engine.InvalidSetting("fade_rate", "must be in (0,1]")
	}
	return nil
}

// wanderersSim: random walkers whose headings blend white-noise jitter
// with a Perlin drift, leaving slowly fading ink trails.
type wanderersSim struct {
	base
	settings wanderersSettings
	dev      *gpu.Device

	gw, gh int
	agents *gpu.PingPong
	trail  *gpu.Buffer
	noise  *perlin.Perlin
	time   float64
	rng    *rand.Rand
}

func newWanderers(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := wanderersSettings{}
	decodePatch(wanderersDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	gw, gh := gridExtent(cfg, 512)
	w := &wanderersSim{
		base:     newBase(engine.Wanderers, table),
		settings: s,
		dev:      dev,
		gw:       gw,
		gh:       gh,
		noise:    perlin.NewPerlin(2, 2, 2, rand.Int63()),
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if w.agents, err = gpu.NewPingPong(dev, s.WandererCount*wandererStride, gpu.UsageStorage, "wanderers"); err != nil {
		return nil, err
	}
	if w.trail, err = dev.NewBuffer(gw*gh, gpu.UsageStorage, "wanderer trail"); err != nil {
		w.agents.Release()
		return nil, err
	}
	w.seed()
	return w, nil
}

func (w *wanderersSim) seed() {
	d := w.agents.Current().Data()
	for i := 0; i < w.settings.WandererCount; i++ {
		d[i*wandererStride+0] = w.rng.Float32()
		d[i*wandererStride+1] = w.rng.Float32()
		d[i*wandererStride+2] = float32(w.rng.Float64() * 2 * math.Pi)
	}
	w.agents.Inactive().CopyFrom(w.agents.Current())
}

func (w *wanderersSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !w.running {
		return nil
	}
	w.camera = camera
	s := w.settings
	w.time += dt * 0.2

	q.Submit(func() {
		cur := w.agents.Current().Data()
		next := w.agents.Inactive().Data()
		trail := w.trail.Data()

		fade := float32(s.FadeRate)
		for i := range trail {
			trail[i] *= fade
		}

		for i := 0; i < s.WandererCount; i++ {
			x := float64(cur[i*wandererStride+0])
			y := float64(cur[i*wandererStride+1])
			heading := float64(cur[i*wandererStride+2])

			drift := w.noise.Noise3D(x*2, y*2, w.time) * 2 * math.Pi
			heading += angleDiff(drift, heading) * s.NoisePull * dt
			heading += (w.rng.Float64()*2 - 1) * s.Jitter * dt

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

			x = wrap(x + math.Cos(heading)*s.Speed*dt)
			y = wrap(y + math.Sin(heading)*s.Speed*dt)
			next[i*wandererStride+0] = float32(x)
			next[i*wandererStride+1] = float32(y)
			next[i*wandererStride+2] = float32(heading)

			gx := int(x * float64(w.gw))
			gy := int(y * float64(w.gh))
			if gx >= w.gw {
				gx = w.gw - 1
			}
			if gy >= w.gh {
				gy = w.gh - 1
			}
			j := gy*w.gw + gx
			if trail[j] < 1 {
				trail[j] += 0.4
			}
		}
		w.agents.Swap()
	})
	return nil
}

func (w *wanderersSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		renderField(frame, w.trail.Data(), w.gw, w.gh, w.colors, camera)
	})
	return nil
}

func (w *wanderersSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	nw, nh := gridExtent(cfg, 512)
	if nw == w.gw && nh == w.gh {
		return nil
	}
	nt, err := dev.NewBuffer(nw*nh, gpu.UsageStorage, "wanderer trail")
	if err != nil {
		return fieldErr("wanderers resize", err)
	}
	w.trail.Release()
	w.trail = nt
	w.gw, w.gh = nw, nh
	return nil
}

func (w *wanderersSim) UpdateSettings(patch engine.Settings) error {
	next := w.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.WandererCount != w.settings.WandererCount {
		na, err := gpu.NewPingPong(w.dev, next.WandererCount*wandererStride, gpu.UsageStorage, "wanderers")
		if err != nil {
			return fieldErr("wanderer realloc", err)
		}
		w.agents.Release()
		w.agents = na
		w.settings = next
		w.seed()
		return nil
	}
	w.settings = next
	return nil
}

func (w *wanderersSim) Settings() engine.Settings { return settingsMap(&w.settings) }

func (w *wanderersSim) ResetTrails() error {
	w.trail.Zero()
	return nil
}

func (w *wanderersSim) ResetAgents() error {
	w.seed()
	return nil
}

func (w *wanderersSim) ResetState() error {
	w.trail.Zero()
	w.seed()
	return nil
}

func (w *wanderersSim) SnapshotState() ([]byte, error) {
	return w.snapshot(&w.settings, nil)
}

func (w *wanderersSim) Dispose() {
	w.agents.Release()
	w.trail.Release()
	w.base.Dispose()
}
