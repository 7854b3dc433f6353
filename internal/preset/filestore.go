package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileStore persists user presets as YAML documents under
// <root>/<kind>/<name>.yaml.
type FileStore struct {
	root    string
	log     *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root, log: log}, nil
}

func (s *FileStore) kindDir(kind string) string {
	return filepath.Join(s.root, sanitize(kind))
}

func (s *FileStore) path(kind, name string) string {
	return filepath.Join(s.kindDir(kind), sanitize(name)+".yaml")
}

// sanitize keeps preset names filesystem-safe while staying readable.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.TrimSpace(b.String())
}

func (s *FileStore) List(kind string) ([]string, error) {
	entries, err := os.ReadDir(s.kindDir(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		// Prefer the name recorded inside the document; fall back to the
		// file name if it is unreadable.
		if p, err := s.loadPath(filepath.Join(s.kindDir(kind), e.Name())); err == nil && p.Name != "" {
			names = append(names, p.Name)
		} else {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	return names, nil
}

func (s *FileStore) loadPath(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *FileStore) Load(kind, name string) (*Preset, error) {
	p, err := s.loadPath(s.path(kind, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func (s *FileStore) Save(p *Preset) error {
	if err := os.MkdirAll(s.kindDir(p.Kind), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(p.Kind, p.Name), data, 0o644)
}

func (s *FileStore) Delete(kind, name string) error {
	err := os.Remove(s.path(kind, name))
	if os.IsNotExist(err) {
		return fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
	}
	return err
}

// Watch observes the preset root and invokes onChange after any external
// edit. Used by the UI layer to refresh preset lists.
func (s *FileStore) Watch(onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.root); err != nil {
		w.Close()
		return err
	}
	// Kind subdirectories are watched as they appear.
	entries, _ := os.ReadDir(s.root)
	for _, e := range entries {
		if e.IsDir() {
			_ = w.Add(filepath.Join(s.root, e.Name()))
		}
	}

	s.watcher = w
	s.done = make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create != 0 {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						_ = w.Add(ev.Name)
					}
				}
				s.log.Debug("preset store changed",
					zap.String("path", ev.Name),
					zap.String("op", ev.Op.String()))
				if onChange != nil {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("preset watcher error", zap.Error(err))
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher, if one is running.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}
