package sims

import (
	"math"
	"math/rand"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

type spaceColonizationSettings struct {
	AttractorCount   int     `settings:"attractor_count" yaml:"attractor_count"`
	SegmentLength    float64 `settings:"segment_length" yaml:"segment_length"`
	InfluenceRadius  float64 `settings:"influence_radius" yaml:"influence_radius"`
	KillRadius       float64 `settings:"kill_radius" yaml:"kill_radius"`
	GrowthPerSecond  float64 `settings:"growth_per_second" yaml:"growth_per_second"`
	MaxBranchNodes   int     `settings:"max_branch_nodes" yaml:"max_branch_nodes"`
}

func spaceColonizationDefaults() engine.Settings {
	return settingsMap(&spaceColonizationSettings{
		AttractorCount:  1200,
		SegmentLength:   0.008,
		InfluenceRadius: 0.08,
		KillRadius:      0.012,
		GrowthPerSecond: 60,
		MaxBranchNodes:  20_000,
	})
}

func (s *spaceColonizationSettings) validate() error {
	switch {
	case s.AttractorCount < 1 || s.AttractorCount > 100_000:
		return engine.InvalidSetting("attractor_count", "must be in [1,100000]")
	case s.SegmentLength <= 0:
		return engine.InvalidSetting("segment_length", "must be positive")
	case s.KillRadius < s.SegmentLength:
		return engine.InvalidSetting("kill_radius", "must be >= segment_length")
	case s.InfluenceRadius <= s.KillRadius:
		return engine.InvalidSetting("influence_radius", "must exceed kill_radius")
	case s.MaxBranchNodes < 16:
		return engine.InvalidSetting("max_branch_nodes", "must be at least 16")
	}
	return nil
}

type branchNode struct {
	x, y   float64
	parent int
	depth  int
}

// spaceColonizationSim grows a branching structure toward a scattered
// attractor set: each growth tick, every attractor pulls its nearest
// branch node, and nodes spawn segments along the mean pull direction.
// Attractors inside the kill radius are consumed.
type spaceColonizationSim struct {
	base
	settings spaceColonizationSettings
	dev      *gpu.Device

	attractors *gpu.Buffer // x, y, alive triplets
	nodes      []branchNode
	carry      float64
	rng        *rand.Rand
}

func newSpaceColonization(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := spaceColonizationSettings{}
	decodePatch(spaceColonizationDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	sc := &spaceColonizationSim{
		base:     newBase(engine.SpaceColonization, table),
		settings: s,
		dev:      dev,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if sc.attractors, err = dev.NewBuffer(s.AttractorCount*3, gpu.UsageStorage, "colonization attractors"); err != nil {
		return nil, err
	}
	sc.reset()
	return sc, nil
}

func (sc *spaceColonizationSim) reset() {
	a := sc.attractors.Data()
	for i := 0; i < sc.settings.AttractorCount; i++ {
		a[i*3+0] = sc.rng.Float32()
		a[i*3+1] = sc.rng.Float32()
		a[i*3+2] = 1
	}
	// Root at the bottom center.
	sc.nodes = sc.nodes[:0]
	sc.nodes = append(sc.nodes, branchNode{x: 0.5, y: 0.95, parent: -1})
	sc.carry = 0
}

func (sc *spaceColonizationSim) grow() {
	s := sc.settings
	a := sc.attractors.Data()
	if len(sc.nodes) >= s.MaxBranchNodes {
		return
	}

	// Attractors vote for their nearest node.
	type pull struct {
		dx, dy float64
		votes  int
	}
	pulls := make([]pull, len(sc.nodes))
	influence2 := s.InfluenceRadius * s.InfluenceRadius
	kill2 := s.KillRadius * s.KillRadius

	for i := 0; i < s.AttractorCount; i++ {
		if a[i*3+2] == 0 {
			continue
		}
		ax, ay := float64(a[i*3+0]), float64(a[i*3+1])
		best, bestD := -1, influence2
		for j, n := range sc.nodes {
			dx, dy := ax-n.x, ay-n.y
			d := dx*dx + dy*dy
			if d < bestD {
				bestD = d
				best = j
			}
		}
		if best < 0 {
			continue
		}
		if bestD < kill2 {
			a[i*3+2] = 0
			continue
		}
		n := sc.nodes[best]
		d := math.Sqrt(bestD)
		pulls[best].dx += (ax - n.x) / d
		pulls[best].dy += (ay - n.y) / d
		pulls[best].votes++
	}

	for j := range pulls {
		if pulls[j].votes == 0 || len(sc.nodes) >= s.MaxBranchNodes {
			continue
		}
		norm := math.Hypot(pulls[j].dx, pulls[j].dy)
		if norm < 1e-9 {
			continue
		}
		parent := sc.nodes[j]
		sc.nodes = append(sc.nodes, branchNode{
			x:      parent.x + pulls[j].dx/norm*s.SegmentLength,
			y:      parent.y + pulls[j].dy/norm*s.SegmentLength,
			parent: j,
			depth:  parent.depth + 1,
		})
	}
}

func (sc *spaceColonizationSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !sc.running {
		return nil
	}
	sc.camera = camera

	q.Submit(func() {
		// Attract mode drops fresh attractors under the cursor; repel
		// consumes them.
		if cursor.Mode != engine.CursorInactive {
			a := sc.attractors.Data()
			for i := 0; i < sc.settings.AttractorCount; i++ {
				dx := float64(a[i*3+0]) - cursor.X
				dy := float64(a[i*3+1]) - cursor.Y
				if dx*dx+dy*dy > cursor.Radius*cursor.Radius {
					continue
				}
				if cursor.Mode == engine.CursorRepel {
					a[i*3+2] = 0
				} else if a[i*3+2] == 0 && sc.rng.Float64() < cursor.Strength*dt {
					a[i*3+2] = 1
				}
			}
		}

		sc.carry += dt * sc.settings.GrowthPerSecond
		for sc.carry >= 1 {
			sc.carry--
			sc.grow()
		}
	})
	return nil
}

func (sc *spaceColonizationSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		clearFrame(frame, sc.colors)
		a := sc.attractors.Data()
		for i := 0; i < sc.settings.AttractorCount; i++ {
			if a[i*3+2] == 1 {
				plot(frame, camera, float64(a[i*3+0]), float64(a[i*3+1]), 0.3, sc.colors)
			}
		}
		maxDepth := 1
		for _, n := range sc.nodes {
			if n.depth > maxDepth {
				maxDepth = n.depth
			}
		}
		for _, n := range sc.nodes {
			v := 0.5 + 0.5*float64(n.depth)/float64(maxDepth)
			plot(frame, camera, n.x, n.y, v, sc.colors)
		}
	})
	return nil
}

func (sc *spaceColonizationSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	return nil
}

func (sc *spaceColonizationSim) UpdateSettings(patch engine.Settings) error {
	next := sc.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.AttractorCount != sc.settings.AttractorCount {
		na, err := sc.dev.NewBuffer(next.AttractorCount*3, gpu.UsageStorage, "colonization attractors")
		if err != nil {
			return fieldErr("attractor realloc", err)
		}
		sc.attractors.Release()
		sc.attractors = na
		sc.settings = next
		sc.reset()
		return nil
	}
	sc.settings = next
	return nil
}

func (sc *spaceColonizationSim) Settings() engine.Settings { return settingsMap(&sc.settings) }

func (sc *spaceColonizationSim) ResetAgents() error {
	sc.reset()
	return nil
}

func (sc *spaceColonizationSim) ResetState() error {
	sc.reset()
	return nil
}

func (sc *spaceColonizationSim) SnapshotState() ([]byte, error) {
	return sc.snapshot(&sc.settings, map[string]any{"branch_nodes": len(sc.nodes)})
}

func (sc *spaceColonizationSim) Dispose() {
	sc.attractors.Release()
	sc.base.Dispose()
}
