package sims

import (
	"math"
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const slimeAgentStride = 3 // x, y, heading

type slimeMoldSettings struct {
	AgentCount     int     `settings:"agent_count" yaml:"agent_count"`
	MoveSpeed      float64 `settings:"move_speed" yaml:"move_speed"`
	TurnSpeed      float64 `settings:"turn_speed" yaml:"turn_speed"`
	SensorAngle    float64 `settings:"sensor_angle" yaml:"sensor_angle"`
	SensorDistance float64 `settings:"sensor_distance" yaml:"sensor_distance"`
	DepositAmount  float64 `settings:"deposit_amount" yaml:"deposit_amount"`
	DecayRate      float64 `settings:"decay_rate" yaml:"decay_rate"`
	DiffuseRate    float64 `settings:"diffuse_rate" yaml:"diffuse_rate"`
}

func slimeMoldDefaults() engine.Settings {
	return settingsMap(&slimeMoldSettings{
		AgentCount:     50_000,
		MoveSpeed:      0.08,
		TurnSpeed:      4.0,
		SensorAngle:    0.5,
		SensorDistance: 0.01,
		DepositAmount:  0.6,
		DecayRate:      0.96,
		DiffuseRate:    0.55,
	})
}

func (s *slimeMoldSettings) validate() error {
	switch {
	case s.AgentCount < 1:
		return engine.InvalidSetting("agent_count", "must be at least 1")
	case s.AgentCount > 10_000_000:
		return engine.InvalidSetting("agent_count", "exceeds the 10M agent ceiling")
	case s.MoveSpeed <= 0:
		return engine.InvalidSetting("move_speed", "must be positive")
	case s.DecayRate <= 0 || s.DecayRate > 1:
		return engine.InvalidSetting("decay_rate", "must be in (0,1]")
	case s.DiffuseRate < 0 || s.DiffuseRate > 1:
		return engine.InvalidSetting("diffuse_rate", "must be in [0,1]")
	}
	return nil
}

// slimeMoldSim: agents sense the trail field ahead of them, steer toward
// deposits, move and deposit; the trail diffuses and decays each step.
// Agents and trail both live in ping-pong pairs.
type slimeMoldSim struct {
	base
	settings slimeMoldSettings
	dev      *gpu.Device

	gw, gh int
	agents *gpu.PingPong
	trail  *gpu.PingPong
	rng    *rand.Rand
}

func newSlimeMold(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := slimeMoldSettings{}
	decodePatch(slimeMoldDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	gw, gh := gridExtent(cfg, 512)
	m := &slimeMoldSim{
		base:     newBase(engine.SlimeMold, table),
		settings: s,
		dev:      dev,
		gw:       gw,
		gh:       gh,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if m.agents, err = gpu.NewPingPong(dev, s.AgentCount*slimeAgentStride, gpu.UsageStorage, "slime agents"); err != nil {
		return nil, err
	}
	if m.trail, err = gpu.NewPingPong(dev, gw*gh, gpu.UsageStorage, "slime trail"); err != nil {
		m.agents.Release()
		return nil, err
	}
	m.seedAgents()
	return m, nil
}

func (m *slimeMoldSim) seedAgents() {
	a := m.agents.Current().Data()
	for i := 0; i < m.settings.AgentCount; i++ {
		// Ring seed around the center gives an immediate network.
		ang := m.rng.Float64() * 2 * math.Pi
		r := 0.1 + 0.15*m.rng.Float64()
		a[i*slimeAgentStride+0] = float32(0.5 + r*math.Cos(ang))
		a[i*slimeAgentStride+1] = float32(0.5 + r*math.Sin(ang))
		a[i*slimeAgentStride+2] = float32(ang + math.Pi)
	}
	m.agents.Inactive().CopyFrom(m.agents.Current())
}

func (m *slimeMoldSim) sampleTrail(trail []float32, x, y float64) float32 {
	gx := int(wrap(x) * float64(m.gw))
	gy := int(wrap(y) * float64(m.gh))
	if gx >= m.gw {
		gx = m.gw - 1
	}
	if gy >= m.gh {
		gy = m.gh - 1
	}
	return trail[gy*m.gw+gx]
}

func (m *slimeMoldSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !m.running {
		return nil
	}
	m.camera = camera
	s := m.settings
	step := s.MoveSpeed * dt

	q.Submit(func() {
		ac := m.agents.Current().Data()
		an := m.agents.Inactive().Data()
		tc := m.trail.Current().Data()
		tn := m.trail.Inactive().Data()

		// Agent pass: sense on the current trail, write the next agent
		// buffer. Deposits accumulate into a scratch pass below.
		m.dev.Each(s.AgentCount, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				x := float64(ac[i*slimeAgentStride+0])
				y := float64(ac[i*slimeAgentStride+1])
				heading := float64(ac[i*slimeAgentStride+2])

				ahead := float64(m.sampleTrail(tc, x+math.Cos(heading)*s.SensorDistance, y+math.Sin(heading)*s.SensorDistance))
				left := float64(m.sampleTrail(tc, x+math.Cos(heading-s.SensorAngle)*s.SensorDistance, y+math.Sin(heading-s.SensorAngle)*s.SensorDistance))
				right := float64(m.sampleTrail(tc, x+math.Cos(heading+s.SensorAngle)*s.SensorDistance, y+math.Sin(heading+s.SensorAngle)*s.SensorDistance))

				switch {
				case ahead >= left && ahead >= right:
					// keep heading
				case left > right:
					heading -= s.TurnSpeed * dt
				default:
					heading += s.TurnSpeed * dt
				}

				if cursor.Mode != engine.CursorInactive {
					dx, dy := cursor.X-x, cursor.Y-y
					d2 := dx*dx + dy*dy
					if d2 < cursor.Radius*cursor.Radius && d2 > 1e-9 {
						target := math.Atan2(dy, dx)
						if cursor.Mode == engine.CursorRepel {
							target += math.Pi
						}
						heading += clamp(angleDiff(target, heading), -1, 1) * cursor.Strength * dt * 10
					}
				}

				x = wrap(x + math.Cos(heading)*step)
				y = wrap(y + math.Sin(heading)*step)
				an[i*slimeAgentStride+0] = float32(x)
				an[i*slimeAgentStride+1] = float32(y)
				an[i*slimeAgentStride+2] = float32(heading)
			}
		})

		// Trail pass: diffuse + decay from current into next, then deposit
		// at the new agent positions.
		diffuse := float32(s.DiffuseRate)
		decay := float32(s.DecayRate)
		gw, gh := m.gw, m.gh
		m.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				up := ((y-1+gh)%gh)*gw
				down := ((y+1)%gh)*gw
				row := y * gw
				for x := 0; x < gw; x++ {
					left := (x - 1 + gw) % gw
					right := (x + 1) % gw
					i := row + x
					avg := (tc[up+x] + tc[down+x] + tc[row+left] + tc[row+right] + tc[i]) / 5
					tn[i] = (tc[i]*(1-diffuse) + avg*diffuse) * decay
				}
			}
		})

		deposit := float32(s.DepositAmount * dt)
		for i := 0; i < s.AgentCount; i++ {
			gx := int(wrap(float64(an[i*slimeAgentStride+0])) * float64(gw))
			gy := int(wrap(float64(an[i*slimeAgentStride+1])) * float64(gh))
			if gx >= gw {
				gx = gw - 1
			}
			if gy >= gh {
				gy = gh - 1
			}
			j := gy*gw + gx
			v := tn[j] + deposit
			if v > 1 {
				v = 1
			}
			tn[j] = v
		}

		m.agents.Swap()
		m.trail.Swap()
	})
	return nil
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}

func (m *slimeMoldSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		renderField(frame, m.trail.Current().Data(), m.gw, m.gh, m.colors, camera)
	})
	return nil
}

// Resize clears the trail and re-wraps agents into the new extent.
// Policy: SlimeMold does not preserve the trail across resizes.
func (m *slimeMoldSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	nw, nh := gridExtent(cfg, 512)
	if nw == m.gw && nh == m.gh {
		return nil
	}
	nt, err := gpu.NewPingPong(dev, nw*nh, gpu.UsageStorage, "slime trail")
	if err != nil {
		return fieldErr("slime resize", err)
	}
	m.trail.Release()
	m.trail = nt
	m.gw, m.gh = nw, nh
	return nil
}

func (m *slimeMoldSim) UpdateSettings(patch engine.Settings) error {
	next := m.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.AgentCount != m.settings.AgentCount {
		if err := m.reallocAgents(next.AgentCount); err != nil {
			return err
		}
	}
	m.settings = next
	return nil
}

// reallocAgents replaces both sides of the agent pair, preserving as many
// existing agents as fit and seeding any excess randomly.
func (m *slimeMoldSim) reallocAgents(count int) error {
	na, err := gpu.NewPingPong(m.dev, count*slimeAgentStride, gpu.UsageStorage, "slime agents")
	if err != nil {
		return fieldErr("agent realloc", err)
	}
	old := m.agents.Current().Data()
	fresh := na.Current().Data()
	keep := len(old)
	if len(fresh) < keep {
		keep = len(fresh)
	}
	copy(fresh[:keep], old[:keep])
	for i := keep / slimeAgentStride; i < count; i++ {
		ang := m.rng.Float64() * 2 * math.Pi
		fresh[i*slimeAgentStride+0] = m.rng.Float32()
		fresh[i*slimeAgentStride+1] = m.rng.Float32()
		fresh[i*slimeAgentStride+2] = float32(ang)
	}
	na.Inactive().CopyFrom(na.Current())

	m.agents.Release()
	m.agents = na
	return nil
}

func (m *slimeMoldSim) Settings() engine.Settings { return settingsMap(&m.settings) }

// SetAgentCount implements engine.SlimeControls.
func (m *slimeMoldSim) SetAgentCount(count int) error {
	return m.UpdateSettings(engine.Settings{"agent_count": count})
}

func (m *slimeMoldSim) AgentCount() int { return m.settings.AgentCount }

// ResetTrails zeroes the deposit field, keeping agents in place.
func (m *slimeMoldSim) ResetTrails() error {
	m.trail.Zero()
	return nil
}

// ResetAgents reseeds agent positions, keeping the trail.
func (m *slimeMoldSim) ResetAgents() error {
	m.seedAgents()
	return nil
}

func (m *slimeMoldSim) ResetState() error {
	m.trail.Zero()
	m.seedAgents()
	return nil
}

func (m *slimeMoldSim) SnapshotState() ([]byte, error) {
	return m.snapshot(&m.settings, nil)
}

func (m *slimeMoldSim) Dispose() {
	m.agents.Release()
	m.trail.Release()
	m.base.Dispose()
}
