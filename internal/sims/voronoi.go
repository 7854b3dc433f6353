package sims

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/san-kum/fluxlab/internal/engine"
	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

type voronoiSettings struct {
	SiteCount  int     `settings:"site_count" yaml:"site_count"`
	DriftSpeed float64 `settings:"drift_speed" yaml:"drift_speed"`
	Rulestring string  `settings:"rulestring" yaml:"rulestring"`
	TimeScale  float64 `settings:"time_scale" yaml:"time_scale"`
	Neighbors  int     `settings:"neighbors" yaml:"neighbors"`
}

func voronoiDefaults() engine.Settings {
	return settingsMap(&voronoiSettings{
		SiteCount:  256,
		DriftSpeed: 0.01,
		Rulestring: "B3/S23",
		TimeScale:  2.0,
		Neighbors:  8,
	})
}

func (s *voronoiSettings) validate() error {
	switch {
	case s.SiteCount < 8 || s.SiteCount > 8192:
		return engine.InvalidSetting("site_count", "must be in [8,8192]")
	case s.TimeScale <= 0:
		return engine.InvalidSetting("time_scale", "must be positive")
	case s.Neighbors < 1 || s.Neighbors >= s.SiteCount:
		return engine.InvalidSetting("neighbors", "must be in [1,site_count)")
	}
	if _, _, err := parseRulestring(s.Rulestring); err != nil {
		return engine.InvalidSetting("rulestring", err.Error())
	}
	return nil
}

// parseRulestring decodes a B/S cellular-automaton rule like "B3/S23".
func parseRulestring(s string) (birth, survive [9]bool, err error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(s)), "/")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "B") || !strings.HasPrefix(parts[1], "S") {
		return birth, survive, fmt.Errorf("rulestring %q: want B<digits>/S<digits>", s)
	}
	for _, c := range parts[0][1:] {
		if c < '0' || c > '8' {
			return birth, survive, fmt.Errorf("rulestring %q: bad birth digit %q", s, c)
		}
		birth[c-'0'] = true
	}
	for _, c := range parts[1][1:] {
		if c < '0' || c > '8' {
			return birth, survive, fmt.Errorf("rulestring %q: bad survival digit %q", s, c)
		}
		survive[c-'0'] = true
	}
	return birth, survive, nil
}

const maxBorderWidth = 1000.0

// blurState is the blur_filter post-processing effect.
type blurState struct {
	Enabled bool
	Radius  float64
	Sigma   float64
}

// voronoiSim: a drifting point set partitions the grid into cells; a B/S
// automaton runs over site adjacency on the time_scale schedule.
type voronoiSim struct {
	base
	settings voronoiSettings
	dev      *gpu.Device

	gw, gh int
	sites  *gpu.PingPong // x,y pairs
	alive  []bool
	field  *gpu.Buffer // per-pixel shaded value, assignment baked in
	accum  float64

	borderWidth float64
	blur        blurState
	rng         *rand.Rand
}

func newVoronoi(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings engine.Settings, table *lut.Table) (engine.Simulation, error) {
	s := voronoiSettings{}
	decodePatch(voronoiDefaults(), &s)
	if err := decodePatch(settings, &s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	gw, gh := gridExtent(cfg, 256)
	v := &voronoiSim{
		base:        newBase(engine.VoronoiCA, table),
		settings:    s,
		dev:         dev,
		gw:          gw,
		gh:          gh,
		borderWidth: 8,
		blur:        blurState{Radius: 2, Sigma: 1},
		rng:         rand.New(rand.NewSource(rand.Int63())),
	}
	var err error
	if v.sites, err = gpu.NewPingPong(dev, s.SiteCount*2, gpu.UsageStorage, "voronoi sites"); err != nil {
		return nil, err
	}
	if v.field, err = dev.NewBuffer(gw*gh, gpu.UsageStorage, "voronoi field"); err != nil {
		v.sites.Release()
		return nil, err
	}
	v.seedSites()
	v.rebuildField()
	return v, nil
}

func (v *voronoiSim) seedSites() {
	p := v.sites.Current().Data()
	v.alive = make([]bool, v.settings.SiteCount)
	for i := 0; i < v.settings.SiteCount; i++ {
		p[i*2+0] = v.rng.Float32()
		p[i*2+1] = v.rng.Float32()
		v.alive[i] = v.rng.Float64() < 0.4
	}
	v.sites.Inactive().CopyFrom(v.sites.Current())
}

// caStep applies the B/S rule over each site's k nearest neighbors.
func (v *voronoiSim) caStep() {
	birth, survive, err := parseRulestring(v.settings.Rulestring)
	if err != nil {
		return
	}
	p := v.sites.Current().Data()
	n := v.settings.SiteCount
	k := v.settings.Neighbors
	next := make([]bool, n)

	v.dev.Each(n, func(i0, i1 int) {
		dists := make([]float64, n)
		idx := make([]int, n)
		for i := i0; i < i1; i++ {
			xi, yi := float64(p[i*2]), float64(p[i*2+1])
			for j := 0; j < n; j++ {
				dx := math.Abs(xi - float64(p[j*2]))
				dy := math.Abs(yi - float64(p[j*2+1]))
				if dx > 0.5 {
					dx = 1 - dx
				}
				if dy > 0.5 {
					dy = 1 - dy
				}
				dists[j] = dx*dx + dy*dy
				idx[j] = j
			}
			// Partial selection of the k nearest (excluding self).
			count := 0
			for sel := 0; sel <= k; sel++ {
				min := sel
				for j := sel + 1; j < n; j++ {
					if dists[idx[j]] < dists[idx[min]] {
						min = j
					}
				}
				idx[sel], idx[min] = idx[min], idx[sel]
				if idx[sel] != i && v.alive[idx[sel]] {
					count++
				}
			}
			if v.alive[i] {
				next[i] = count <= 8 && survive[minInt(count, 8)]
			} else {
				next[i] = count <= 8 && birth[minInt(count, 8)]
			}
		}
	})
	v.alive = next
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// rebuildField rasterizes nearest-site assignment, alive state and cell
// borders into the display field.
func (v *voronoiSim) rebuildField() {
	p := v.sites.Current().Data()
	n := v.settings.SiteCount
	gw, gh := v.gw, v.gh
	field := v.field.Data()
	assign := make([]int32, gw*gh)

	v.dev.Each(gh, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			fy := (float64(y) + 0.5) / float64(gh)
			for x := 0; x < gw; x++ {
				fx := (float64(x) + 0.5) / float64(gw)
				best := 0
				bestD := math.MaxFloat64
				for j := 0; j < n; j++ {
					dx := math.Abs(fx - float64(p[j*2]))
					dy := math.Abs(fy - float64(p[j*2+1]))
					if dx > 0.5 {
						dx = 1 - dx
					}
					if dy > 0.5 {
						dy = 1 - dy
					}
					d := dx*dx + dy*dy
					if d < bestD {
						bestD = d
						best = j
					}
				}
				assign[y*gw+x] = int32(best)
				if v.alive[best] {
					field[y*gw+x] = 1
				} else {
					field[y*gw+x] = 0.15
				}
			}
		}
	})

	// Border pass: widen cell boundaries proportionally to borderWidth.
	bw := int(v.borderWidth / maxBorderWidth * 6)
	if v.borderWidth > 0 && bw < 1 {
		bw = 1
	}
	if bw > 0 {
		v.dev.Each(gh, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				for x := 0; x < gw; x++ {
					self := assign[y*gw+x]
					edge := false
					for dy := -bw; dy <= bw && !edge; dy++ {
						for dx := -bw; dx <= bw && !edge; dx++ {
							nx := (x + dx + gw) % gw
							ny := (y + dy + gh) % gh
							if assign[ny*gw+nx] != self {
								edge = true
							}
						}
					}
					if edge {
						field[y*gw+x] = 0
					}
				}
			}
		})
	}

	if v.blur.Enabled && v.blur.Radius > 0 {
		gaussianBlur(field, gw, gh, v.blur.Radius, v.blur.Sigma)
	}
}

// gaussianBlur applies a separable blur in place.
func gaussianBlur(field []float32, gw, gh int, radius, sigma float64) {
	r := int(radius)
	if r < 1 {
		return
	}
	if sigma <= 0 {
		sigma = radius / 2
	}
	kernel := make([]float64, 2*r+1)
	sum := 0.0
	for i := -r; i <= r; i++ {
		kernel[i+r] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
		sum += kernel[i+r]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float32, len(field))
	for y := 0; y < gh; y++ {
		for x := 0; x < gw; x++ {
			acc := 0.0
			for i := -r; i <= r; i++ {
				acc += kernel[i+r] * float64(field[y*gw+(x+i+gw)%gw])
			}
			tmp[y*gw+x] = float32(acc)
		}
	}
	for y := 0; y < gh; y++ {
		for x := 0; x < gw; x++ {
			acc := 0.0
			for i := -r; i <= r; i++ {
				acc += kernel[i+r] * float64(tmp[((y+i+gh)%gh)*gw+x])
			}
			field[y*gw+x] = float32(acc)
		}
	}
}

func (v *voronoiSim) Step(q *gpu.Queue, dt float64, cursor engine.CursorState, camera engine.CameraState) error {
	if !v.running {
		return nil
	}
	v.camera = camera

	q.Submit(func() {
		pc := v.sites.Current().Data()
		pn := v.sites.Inactive().Data()
		drift := v.settings.DriftSpeed * dt

		for i := 0; i < v.settings.SiteCount; i++ {
			x := float64(pc[i*2]) + v.rng.NormFloat64()*drift
			y := float64(pc[i*2+1]) + v.rng.NormFloat64()*drift

			if cursor.Mode != engine.CursorInactive {
				dx, dy := cursor.X-x, cursor.Y-y
				d2 := dx*dx + dy*dy
				if d2 < cursor.Radius*cursor.Radius && d2 > 1e-9 {
					d := math.Sqrt(d2)
					pull := cursor.Strength * dt * 0.5
					if cursor.Mode == engine.CursorRepel {
						pull = -pull
					}
					x += dx / d * pull
					y += dy / d * pull
				}
			}
			pn[i*2+0] = float32(wrap(x))
			pn[i*2+1] = float32(wrap(y))
		}
		v.sites.Swap()

		v.accum += dt * v.settings.TimeScale
		if v.accum >= 1 {
			v.accum = math.Mod(v.accum, 1)
			v.caStep()
		}
		v.rebuildField()
	})
	return nil
}

func (v *voronoiSim) Render(q *gpu.Queue, frame *gpu.Frame, camera engine.CameraState) error {
	q.Submit(func() {
		renderField(frame, v.field.Data(), v.gw, v.gh, v.colors, camera)
	})
	return nil
}

func (v *voronoiSim) Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error {
	nw, nh := gridExtent(cfg, 256)
	if nw == v.gw && nh == v.gh {
		return nil
	}
	nf, err := dev.NewBuffer(nw*nh, gpu.UsageStorage, "voronoi field")
	if err != nil {
		return fieldErr("voronoi resize", err)
	}
	v.field.Release()
	v.field = nf
	v.gw, v.gh = nw, nh
	v.rebuildField()
	return nil
}

func (v *voronoiSim) UpdateSettings(patch engine.Settings) error {
	next := v.settings
	if err := decodePatch(patch, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.SiteCount != v.settings.SiteCount {
		ns, err := gpu.NewPingPong(v.dev, next.SiteCount*2, gpu.UsageStorage, "voronoi sites")
		if err != nil {
			return fieldErr("site realloc", err)
		}
		v.sites.Release()
		v.sites = ns
		v.settings = next
		v.seedSites()
		v.rebuildField()
		return nil
	}
	v.settings = next
	return nil
}

func (v *voronoiSim) Settings() engine.Settings { return settingsMap(&v.settings) }

// SetBorderWidth implements engine.VoronoiControls; the width is clamped
// to [0,1000] and the clamped value is returned.
func (v *voronoiSim) SetBorderWidth(width float64) float64 {
	v.borderWidth = clamp(width, 0, maxBorderWidth)
	return v.borderWidth
}

func (v *voronoiSim) BorderWidth() float64 { return v.borderWidth }

// SetPostProcessing implements engine.VoronoiControls. Recognized effects:
// "blur_filter" with params radius and sigma.
func (v *voronoiSim) SetPostProcessing(effect string, enabled bool, params map[string]float64) error {
	switch effect {
	case "blur_filter":
		v.blur.Enabled = enabled
		if r, ok := params["radius"]; ok {
			if r < 0 {
				return engine.InvalidSetting("radius", "must be non-negative")
			}
			v.blur.Radius = r
		}
		if s, ok := params["sigma"]; ok {
			if s < 0 {
				return engine.InvalidSetting("sigma", "must be non-negative")
			}
			v.blur.Sigma = s
		}
		return nil
	}
	return fmt.Errorf("post-processing effect %q: %w", effect, engine.ErrUnsupported)
}

func (v *voronoiSim) PostProcessingState() map[string]map[string]any {
	return map[string]map[string]any{
		"blur_filter": {
			"enabled": v.blur.Enabled,
			"radius":  v.blur.Radius,
			"sigma":   v.blur.Sigma,
		},
	}
}

// ResetAgents reseeds site positions and states.
func (v *voronoiSim) ResetAgents() error {
	v.seedSites()
	v.rebuildField()
	return nil
}

func (v *voronoiSim) ResetState() error {
	v.seedSites()
	v.accum = 0
	v.rebuildField()
	return nil
}

func (v *voronoiSim) SnapshotState() ([]byte, error) {
	return v.snapshot(&v.settings, map[string]any{
		"border_width": v.borderWidth,
		"blur_filter": map[string]any{
			"enabled": v.blur.Enabled, "radius": v.blur.Radius, "sigma": v.blur.Sigma,
		},
	})
}

func (v *voronoiSim) Dispose() {
	v.sites.Release()
	v.field.Release()
	v.base.Dispose()
}
