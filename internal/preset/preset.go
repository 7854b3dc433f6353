// Package preset manages named settings bundles per simulation kind.
// Built-ins are registered in-process and immutable; user presets are
// persisted through a Store capability.
package preset

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound         = errors.New("preset not found")
	ErrLoadFailed       = errors.New("preset load failed")
	ErrBuiltInProtected = errors.New("built-in presets cannot be modified")
)

// Preset is one named settings bundle for one simulation kind. Settings
// are stored as a patch over the kind's factory defaults.
type Preset struct {
	Name     string         `yaml:"name" json:"name"`
	Kind     string         `yaml:"kind" json:"kind"`
	Settings map[string]any `yaml:"settings" json:"settings"`
}

// Store is the persistence capability for user presets. The core never
// hard-codes paths; production wires a FileStore.
type Store interface {
	List(kind string) ([]string, error)
	Load(kind, name string) (*Preset, error)
	Save(p *Preset) error
	Delete(kind, name string) error
}

// Manager resolves preset names against the built-in set first, then the
// user store. Access is serialized by the engine manager's lock.
type Manager struct {
	store    Store
	builtins map[string]map[string]map[string]any
	order    map[string][]string
}

// NewManager seeds the built-in presets and attaches the user store.
// A nil store is valid; only built-ins are visible then.
func NewManager(store Store) *Manager {
	m := &Manager{
		store:    store,
		builtins: make(map[string]map[string]map[string]any),
		order:    make(map[string][]string),
	}
	registerBuiltins(m)
	return m
}

func (m *Manager) registerBuiltin(kind, name string, settings map[string]any) {
	if m.builtins[kind] == nil {
		m.builtins[kind] = make(map[string]map[string]any)
	}
	m.builtins[kind][name] = settings
	m.order[kind] = append(m.order[kind], name)
}

// IsBuiltIn reports whether the name is a protected built-in for the kind.
func (m *Manager) IsBuiltIn(kind, name string) bool {
	_, ok := m.builtins[kind][name]
	return ok
}

// List returns built-in names in registration order followed by user
// preset names sorted.
func (m *Manager) List(kind string) []string {
	names := append([]string(nil), m.order[kind]...)
	if m.store != nil {
		user, err := m.store.List(kind)
		if err == nil {
			sort.Strings(user)
			for _, n := range user {
				if !m.IsBuiltIn(kind, n) {
					names = append(names, n)
				}
			}
		}
	}
	return names
}

// Load resolves a preset to its settings patch.
func (m *Manager) Load(kind, name string) (map[string]any, error) {
	if s, ok := m.builtins[kind][name]; ok {
		out := make(map[string]any, len(s))
		for k, v := range s {
			out[k] = v
		}
		return out, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
	}
	p, err := m.store.Load(kind, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s/%s: %w: %v", kind, name, ErrLoadFailed, err)
	}
	return p.Settings, nil
}

// Save persists a user preset. Built-in names are protected.
func (m *Manager) Save(kind, name string, settings map[string]any) error {
	if m.IsBuiltIn(kind, name) {
		return fmt.Errorf("%s/%s: %w", kind, name, ErrBuiltInProtected)
	}
	if m.store == nil {
		return fmt.Errorf("%s/%s: no preset store attached", kind, name)
	}
	return m.store.Save(&Preset{Name: name, Kind: kind, Settings: settings})
}

// Delete removes a user preset. Built-in names are protected.
func (m *Manager) Delete(kind, name string) error {
	if m.IsBuiltIn(kind, name) {
		return fmt.Errorf("%s/%s: %w", kind, name, ErrBuiltInProtected)
	}
	if m.store == nil {
		return fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
	}
	return m.store.Delete(kind, name)
}
