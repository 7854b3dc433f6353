package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

// Kind is the discriminant identifying a simulation variant. The set is
// closed; only the kinds below exist.
type Kind string

const (
	SlimeMold           Kind = "SlimeMold"
	GrayScott           Kind = "GrayScott"
	ParticleLife        Kind = "ParticleLife"
	Flow                Kind = "Flow"
	Gradient            Kind = "Gradient"
	Moire               Kind = "Moire"
	Pellets             Kind = "Pellets"
	PrimordialParticles Kind = "PrimordialParticles"
	SpaceColonization   Kind = "SpaceColonization"
	VoronoiCA           Kind = "VoronoiCA"
	Fluids              Kind = "Fluids"
	Wanderers           Kind = "Wanderers"
	Ecosystem           Kind = "Ecosystem"
)

// AllKinds lists the variant set in presentation order.
var AllKinds = []Kind{
	SlimeMold, GrayScott, ParticleLife, Flow, Gradient, Moire, Pellets,
	PrimordialParticles, SpaceColonization, VoronoiCA, Fluids, Wanderers,
	Ecosystem,
}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

// Settings is a per-kind settings blob. Simulations decode patches into
// their typed settings structs and validate them.
type Settings map[string]any

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	c := make(Settings, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Simulation is the uniform lifecycle contract every variant satisfies.
// A variant is created when selected and disposed on switch or exit;
// Dispose is terminal.
type Simulation interface {
	Kind() Kind

	// Step encodes one compute update. A paused simulation is a no-op.
	Step(q *gpu.Queue, dt float64, cursor CursorState, camera CameraState) error

	// Render encodes the render pass into the acquired frame. Must
	// tolerate a surface that was just resized.
	Render(q *gpu.Queue, frame *gpu.Frame, camera CameraState) error

	// Resize reconfigures size-dependent resources. Field preservation
	// policy is per variant.
	Resize(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig) error

	// UpdateSettings applies a partial patch; invalid fields fail with
	// InvalidSettingsError and leave previous settings in place.
	UpdateSettings(patch Settings) error

	// Settings returns the current effective settings.
	Settings() Settings

	SetLUT(table *lut.Table)
	SetCursor(c CursorState)

	ResetTrails() error
	ResetAgents() error
	ResetState() error

	// SnapshotState serializes settings, camera, cursor and variant flags.
	SnapshotState() ([]byte, error)

	Running() bool
	SetRunning(bool)

	Dispose()
}

// Capability views the manager hands out for kind-specific commands.

// GradientControls is implemented by the Gradient variant.
type GradientControls interface {
	SetDisplayMode(mode int) error
	DisplayMode() int
}

// VoronoiControls is implemented by the VoronoiCA variant.
type VoronoiControls interface {
	SetBorderWidth(width float64) float64
	BorderWidth() float64
	SetPostProcessing(effect string, enabled bool, params map[string]float64) error
	PostProcessingState() map[string]map[string]any
}

// SlimeControls is implemented by the SlimeMold variant.
type SlimeControls interface {
	SetAgentCount(count int) error
	AgentCount() int
}

// EcosystemControls is implemented by the Ecosystem variant.
type EcosystemControls interface {
	ToggleSpeciesVisibility(role, variant int) error
	SpeciesVisibility() map[string]bool
	PopulationData() map[string]int
}

// Factory builds one variant and reports its default settings.
type Factory struct {
	New func(dev *gpu.Device, q *gpu.Queue, cfg gpu.SurfaceConfig, settings Settings, table *lut.Table) (Simulation, error)

	Defaults func() Settings
}

// Registry maps kinds to factories. Populated once at boot.
type Registry struct {
	factories map[Kind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

func (r *Registry) Register(kind Kind, f Factory) {
	r.factories[kind] = f
}

func (r *Registry) Lookup(kind Kind) (Factory, error) {
	f, ok := r.factories[kind]
	if !ok {
		return Factory{}, fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	return f, nil
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
