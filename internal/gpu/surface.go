package gpu

import (
	"fmt"
	"sync"
)

// SurfaceConfig is the mutable presentation configuration.
type SurfaceConfig struct {
	Width       int
	Height      int
	Format      string
	PresentMode string
}

// Surface is the presentable target. The frame loop acquires a Frame,
// simulations render into its pixel storage, and the host blits it to the
// window. The config has its own lock; only Reconfigure and the frame loop
// touch it.
type Surface struct {
	mu     sync.Mutex
	cfg    SurfaceConfig
	pixels []byte // RGBA8, w*h*4
	lost   bool
}

// Frame is one acquired swapchain image.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

func NewSurface(w, h int) (*Surface, error) {
	s := &Surface{cfg: SurfaceConfig{Format: "rgba8unorm", PresentMode: "fifo"}}
	if err := s.Reconfigure(w, h); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Surface) Config() SurfaceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reconfigure resizes the surface. Callers serialize through the manager
// lock. A zero or negative extent fails and leaves the surface lost.
func (s *Surface) Reconfigure(w, h int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w <= 0 || h <= 0 {
		s.lost = true
		return fmt.Errorf("reconfigure %dx%d: %w", w, h, ErrSurfaceLost)
	}
	s.cfg.Width, s.cfg.Height = w, h
	s.pixels = make([]byte, w*h*4)
	s.lost = false
	return nil
}

// MarkLost invalidates the surface until the next successful Reconfigure.
func (s *Surface) MarkLost() {
	s.mu.Lock()
	s.lost = true
	s.mu.Unlock()
}

// Frame acquires the next presentable image.
func (s *Surface) Frame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return nil, ErrSurfaceLost
	}
	if s.pixels == nil {
		return nil, ErrOutOfMemory
	}
	return &Frame{Width: s.cfg.Width, Height: s.cfg.Height, Pixels: s.pixels}, nil
}
