package sims

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

const (
	ecoRoles    = 3 // producer, herbivore, predator
	ecoVariants = 3
	ecoSpecies  = ecoRoles * ecoVariants
)

const (
	roleProducer = iota
	roleHerbivore
	rolePredator
)

var ecoRoleNames = [ecoRoles]string{"producer", "herbivore", "predator"}

type ecoCreature struct {
	x, y    float64
	vx, vy  float64
	energy  float64
	role    int
	variant int
	alive   bool
}

type ecosystemSettings struct {
	InitialProducers  int     `settings:"initial_producers" yaml:"initial_producers"`
	InitialHerbivores int     `settings:"initial_herbivores" yaml:"initial_herbivores"`
	InitialPredators  int     `settings:"initial_predators" yaml:"initial_predators"`
	MaxPopulation     int     `settings:"max_population" yaml:"max_population"`
	ProducerGrowth    float64 `settings:"producer_growth" yaml:"producer_growth"`
	HerbivoreSpeed    float64 `settings:"herbivore_speed" yaml:"herbivore_speed"`
	PredatorSpeed     float64 `settings:"predator_speed" yaml:"predator_speed"`
	EatRadius         float64 `settings:"eat_radius" yaml:"eat_radius"`
	EnergyPerMeal     float64 `settings:"energy_per_meal" yaml:"energy_per_meal"`
	MetabolismRate    float64 `settings:"metabolism_rate" yaml:"metabolism_rate"`
	ReproduceEnergy   float64 `settings:"reproduce_energy" yaml:"reproduce_energy"`
	SenseRadius       float64 `settings:"sense_radius" yaml:"sense_radius"`
}

func ecosystemDefaults() engine.Settings {
	return settingsMap(&ecosystemSettings{
		InitialProducers:  450,
		InitialHerbivores: 120,
		InitialPredators:  30,
		MaxPopulation:     6000,
		ProducerGrowth:    0.35,
		HerbivoreSpeed:    0.09,
		PredatorSpeed:     0.11,
		EatRadius:         0.012,
		EnergyPerMeal:     0.6,
		MetabolismRate:    0.05,
		ReproduceEnergy:   1.4,
		SenseRadius:       0.12,
	})
}

func (s *ecosystemSettings) validate() error {
	switch {
	case s.InitialProducers < 0 || s.InitialHerbivores < 0 || s.InitialPredators < 0:
		return engine.InvalidSetting("initial_producers", "initial populations must be non-negative")
	case s.MaxPopulation < 16 || s.MaxPopulation > 500_000:
		return engine.InvalidSetting("max_population", "must be in [16,500000]")
	case s.EatRadius <= 0:
		return engine.InvalidSetting("eat_radius", "must be positive")
	case s.MetabolismRate < 0:
		return engine.InvalidSetting("metabolism_rate", "must be non-negative")
	case s.ReproduceEnergy <= 0:
		return engine.InvalidSetting("reproduce_energy", "must be positive")
	}
	return nil
}

// ecosystemSim runs a three-trophic food web. Producers spread on their
// own; herbivores graze producers; predators hunt herbivores. Each role
// comes in three variants with slightly shifted temperament, and every
// role/variant pair can be hidden from the display independently.
type ecosystemSim struct {
	base
	settings ecosystemSettings
	dev      *gpu.Device

	creatures []ecoCreature
	free      []int // dead slots available for reuse
	visible   [ecoSpecies]bool
	popMu     sync.Mutex
	pop       [ecoSpecies]int
	rng       *rand.Rand
}

func newEcosystem(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := ecosystemSettings{}
	decodePatch(ecosystemDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	e := &ecosystemSim{
		base:     newBase(engine.Ecosystem, table),
		settings: s,
		dev:      dev,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	for i := range e.visible {
		e.visible[i] = true
	}
	e.seed()
	return e, nil
}

func speciesKey(role, variant int) string {
	return fmt.Sprintf("%s_%d", ecoRoleNames[role], variant+1)
}

func (e *ecosystemSim) seed() {
	e.creatures = e.creatures[:0]
	e.free = e.free[:0]
	counts := [ecoRoles]int{
		roleProducer:  e.settings.InitialProducers,
		roleHerbivore: e.settings.InitialHerbivores,
		rolePredator:  e.settings.InitialPredators,
	}
	for role, n := range counts {
		for i := 0; i < n; i++ {
			e.spawn(role, i%ecoVariants, e.rng.Float64(), e.rng.Float64(), 1)
		}
	}
	e.recount()
}

// spawn places a creature, reusing a dead slot when one exists.
func (e *ecosystemSim) spawn(role, variant int, x, y, energy float64) {
	c := ecoCreature{
		x: wrap(x), y: wrap(y),
		energy:  energy,
		role:    role,
		variant: variant,
		alive:   true,
	}
	if n := len(e.free); n > 0 {
		idx := e.free[n-1]
		e.free = e.free[:n-1]
		e.creatures[idx] = c
		return
	}
	e.creatures = append(e.creatures, c)
}

func (e *ecosystemSim) kill(idx int) {
	e.creatures[idx].alive = false
	e.free = append(e.free, idx)
}

func (e *ecosystemSim) living() int {
	return len(e.creatures) - len(e.free)
}

func (e *ecosystemSim) recount() {
	var pop [ecoSpecies]int
	for i := range e.creatures {
		c := &e.creatures[i]
		if c.alive {
			pop[c.role*ecoVariants+c.variant]++
		}
	}
	e.popMu.Lock()
	e.pop = pop
	e.popMu.Unlock()
}

// roleSpeed shifts the base speed by variant: variant 0 is the baseline,
// 1 is quicker but hungrier, 2 is slower but thriftier.
func (e *ecosystemSim) roleSpeed(role, variant int) float64 {
	var base float64
	switch role {
	case roleHerbivore:
		base = e.settings.HerbivoreSpeed
	case rolePredator:
		base = e.settings.PredatorSpeed
	default:
		return 0
	}
	switch variant {
	case 1:
		return base * 1.3
	case 2:
		return base * 0.75
	}
	return base
}

func (e *ecosystemSim) metabolism(role, variant int) float64 {
	m := e.settings.MetabolismRate
	if role == roleProducer {
		return 0
	}
	switch variant {
	case 1:
		return m * 1.4
	case 2:
		return m * 0.8
	}
	return m
}

// nearestPrey returns the index of the closest live prey within sense
// range, or -1.
func (e *ecosystemSim) nearestPrey(c *ecoCreature, preyRole int) int {
	best := -1
	bestD := e.settings.SenseRadius * e.settings.SenseRadius
	for j := range e.creatures {
		p := &e.creatures[j]
		if !p.alive || p.role != preyRole {
			continue
		}
		dx := torus(p.x - c.x)
		dy := torus(p.y - c.y)
		d := dx*dx + dy*dy
		if d < bestD {
			bestD = d
			best = j
		}
	}
	return best
}

func (e *ecosystemSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !e.running {
		return nil
	}
	e.camera = camera
	s := e.settings

	q.Submit(func() {
		eat2 := s.EatRadius * s.EatRadius

		for i := range e.creatures {
			c := &e.creatures[i]
			if !c.alive {
				continue
			}

			switch c.role {
			case roleProducer:
				// Producers gain energy from light and occasionally seed
				// a neighbor cell.
				c.energy += s.ProducerGrowth * dt
				if c.energy >= s.ReproduceEnergy && e.living() < s.MaxPopulation {
					c.energy *= 0.5
					ang := e.rng.Float64() * 2 * math.Pi
					r := 0.01 + e.rng.Float64()*0.03
					e.spawn(roleProducer, c.variant, c.x+math.Cos(ang)*r, c.y+math.Sin(ang)*r, c.energy)
				}

			case roleHerbivore, rolePredator:
				prey := roleProducer
				if c.role == rolePredator {
					prey = roleHerbivore
				}
				speed := e.roleSpeed(c.role, c.variant)

				if t := e.nearestPrey(c, prey); t >= 0 {
					p := &e.creatures[t]
					dx := torus(p.x - c.x)
					dy := torus(p.y - c.y)
					d2 := dx*dx + dy*dy
					if d2 < eat2 {
						e.kill(t)
						c.energy += s.EnergyPerMeal
					} else if d2 > 1e-12 {
						d := math.Sqrt(d2)
						c.vx = c.vx*0.85 + dx/d*speed*0.5
						c.vy = c.vy*0.85 + dy/d*speed*0.5
					}
				} else {
					// No prey in range: wander.
					c.vx += (e.rng.Float64()*2 - 1) * speed * dt * 3
					c.vy += (e.rng.Float64()*2 - 1) * speed * dt * 3
				}

				if cursor.Mode != engine.CursorInactive {
					dx := torus(cursor.X - c.x)
					dy := torus(cursor.Y - c.y)
					d2 := dx*dx + dy*dy
					if d2 < cursor.Radius*cursor.Radius && d2 > 1e-10 {
						d := math.Sqrt(d2)
						f := cursor.Strength * speed
						if cursor.Mode == engine.CursorRepel {
							f = -f
						}
						c.vx += dx / d * f
						c.vy += dy / d * f
					}
				}

				if sp := math.Hypot(c.vx, c.vy); sp > speed {
					c.vx = c.vx / sp * speed
					c.vy = c.vy / sp * speed
				}
				c.x = wrap(c.x + c.vx*dt)
				c.y = wrap(c.y + c.vy*dt)

				c.energy -= e.metabolism(c.role, c.variant) * dt
				if c.energy <= 0 {
					e.kill(i)
					continue
				}
				if c.energy >= s.ReproduceEnergy && e.living() < s.MaxPopulation {
					c.energy *= 0.5
					e.spawn(c.role, c.variant, c.x+(e.rng.Float64()-0.5)*0.02, c.y+(e.rng.Float64()-0.5)*0.02, c.energy)
				}
			}
		}
		e.recount()
	})
	return nil
}

func (e *ecosystemSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		clearFrame(frame, e.colors)
		for i := range e.creatures {
			c := &e.creatures[i]
			if !c.alive || !e.visible[c.role*ecoVariants+c.variant] {
				continue
			}
			// Role picks the color band, variant shifts within it.
			v := (float64(c.role)+0.2+float64(c.variant)*0.25)/ecoRoles
			plot(frame, camera, c.x, c.y, clamp01(v), e.colors)
		}
	})
	return nil
}

func (e *ecosystemSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	return nil
}

func (e *ecosystemSim) UpdateSettings(patch engine.Settings) error {
	next := e.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	reseed := next.InitialProducers != e.settings.InitialProducers ||
		next.InitialHerbivores != e.settings.InitialHerbivores ||
		next.InitialPredators != e.settings.InitialPredators
	e.settings = next
	if reseed {
		e.seed()
	}
	return nil
}

func (e *ecosystemSim) Settings() engine.Settings { return settingsMap(&e.settings) }

func (e *ecosystemSim) ResetAgents() error {
	e.seed()
	return nil
}

func (e *ecosystemSim) ResetState() error {
	e.seed()
	return nil
}

// ToggleSpeciesVisibility flips display of one role/variant pair.
// Roles and variants are zero-based.
func (e *ecosystemSim) ToggleSpeciesVisibility(role, variant int) error {
	if role < 0 || role >= ecoRoles {
		return engine.InvalidSetting("role", fmt.Sprintf("must be in [0,%d]", ecoRoles-1))
	}
	if variant < 0 || variant >= ecoVariants {
		return engine.InvalidSetting("variant", fmt.Sprintf("must be in [0,%d]", ecoVariants-1))
	}
	e.visible[role*ecoVariants+variant] = !e.visible[role*ecoVariants+variant]
	return nil
}

// SpeciesVisibility reports the current display toggle per species key.
func (e *ecosystemSim) SpeciesVisibility() map[string]bool {
	out := make(map[string]bool, ecoSpecies)
	for role := 0; role < ecoRoles; role++ {
		for variant := 0; variant < ecoVariants; variant++ {
			out[speciesKey(role, variant)] = e.visible[role*ecoVariants+variant]
		}
	}
	return out
}

// PopulationData reports live counts per species key.
func (e *ecosystemSim) PopulationData() map[string]int {
	e.popMu.Lock()
	pop := e.pop
	e.popMu.Unlock()
	out := make(map[string]int, ecoSpecies)
	for role := 0; role < ecoRoles; role++ {
		for variant := 0; variant < ecoVariants; variant++ {
			out[speciesKey(role, variant)] = pop[role*ecoVariants+variant]
		}
	}
	return out
}

func (e *ecosystemSim) SnapshotState() ([]byte, error) {
	vis := map[string]any{}
	for k, v := range e.SpeciesVisibility() {
		vis[k] = v
	}
	return e.snapshot(&e.settings, map[string]any{
		"population": e.PopulationData(),
		"visibility": vis,
	})
}

func (e *ecosystemSim) Dispose() {
	e.creatures = nil
	e.free = nil
	e.base.Dispose()
}
