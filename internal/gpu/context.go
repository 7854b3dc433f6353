package gpu

import "sync"

// Context bundles the device, queue and surface for one window. Mutations
// of the surface config go through the context lock; the manager always
// acquires its own lock first.
type Context struct {
	mu      sync.Mutex
	device  *Device
	queue   *Queue
	surface *Surface
}

// AcquireOptions tune device negotiation.
type AcquireOptions struct {
	Width      int
	Height     int
	MaxStorage int // bytes; 0 means the default budget
}

// Acquire negotiates a device and configures a surface for the window.
func Acquire(opts AcquireOptions) (*Context, error) {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	surface, err := NewSurface(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	return &Context{
		device:  NewDevice(opts.MaxStorage),
		queue:   NewQueue(),
		surface: surface,
	}, nil
}

func (c *Context) Device() *Device   { return c.device }
func (c *Context) Queue() *Queue     { return c.queue }
func (c *Context) Surface() *Surface { return c.surface }
func (c *Context) Caps() Caps        { return c.device.Caps() }

// Ready reports whether frames can be acquired right now.
func (c *Context) Ready() bool {
	if c == nil || c.device.Lost() {
		return false
	}
	_, err := c.surface.Frame()
	return err == nil
}

// Resize reconfigures the surface under the context lock.
func (c *Context) Resize(w, h int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface.Reconfigure(w, h)
}

// Frame acquires the next presentable image under the context lock.
func (c *Context) Frame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device.Lost() {
		return nil, ErrDeviceLost
	}
	return c.surface.Frame()
}
