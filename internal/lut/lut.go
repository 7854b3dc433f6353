// Package lut provides the named color lookup tables simulations use to
// map scalar field values to display colors. Every table normalizes to
// exactly 256 RGBA float32 stops.
package lut

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Stops is the fixed table length.
const Stops = 256

var ErrLUTNotFound = errors.New("lut not found")

// Table is a named 256-stop RGBA color table.
type Table struct {
	Name     string
	Colors   []float32 // Stops*4, RGBA in [0,1]
	Reversed bool
}

// Linear returns the 1024-float upload array, honoring the reversed flag.
// The result is a copy; callers may mutate it freely.
func (t *Table) Linear() []float32 {
	out := make([]float32, Stops*4)
	if t.Reversed {
		for i := 0; i < Stops; i++ {
			copy(out[i*4:i*4+4], t.Colors[(Stops-1-i)*4:(Stops-1-i)*4+4])
		}
	} else {
		copy(out, t.Colors)
	}
	return out
}

// Registry holds the known tables. Read-mostly after boot; safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry builds a registry seeded with the built-in tables.
func NewRegistry() *Registry {
	r := &Registry{tables: make(map[string]*Table)}
	for name, ramp := range builtinRamps {
		r.tables[name] = &Table{Name: name, Colors: ramp.bake()}
	}
	return r
}

// Get returns the named table or ErrLUTNotFound.
func (r *Registry) Get(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrLUTNotFound)
	}
	return t, nil
}

// Names lists all known tables, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToLinearArray returns the 1024-float upload array for the named table,
// optionally reversed.
func (r *Registry) ToLinearArray(name string, reversed bool) ([]float32, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	view := &Table{Name: t.Name, Colors: t.Colors, Reversed: reversed != t.Reversed}
	return view.Linear(), nil
}

// Register adds or replaces a table. The color slice is normalized to
// exactly 256 RGBA stops by linear resampling.
func (r *Registry) Register(name string, colors []float32) (*Table, error) {
	if len(colors) < 8 || len(colors)%4 != 0 {
		return nil, fmt.Errorf("lut %q: need at least two RGBA stops, got %d floats", name, len(colors))
	}
	t := &Table{Name: name, Colors: resample(colors)}
	r.mu.Lock()
	r.tables[name] = t
	r.mu.Unlock()
	return t, nil
}

// resample stretches an arbitrary-length RGBA stop list to 256 entries.
func resample(colors []float32) []float32 {
	n := len(colors) / 4
	out := make([]float32, Stops*4)
	for i := 0; i < Stops; i++ {
		pos := float64(i) / float64(Stops-1) * float64(n-1)
		lo := int(pos)
		hi := lo + 1
		if hi >= n {
			hi = n - 1
		}
		f := float32(pos - float64(lo))
		for c := 0; c < 4; c++ {
			a := colors[lo*4+c]
			b := colors[hi*4+c]
			out[i*4+c] = a + (b-a)*f
		}
	}
	return out
}
