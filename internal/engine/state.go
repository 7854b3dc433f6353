// Package engine holds the simulation contract, the kind registry and the
// manager that owns the active simulation. All mutations of runtime state
// are serialized through the manager's lock.
package engine

import "time"

// CursorMode selects how the cursor acts on the simulation field.
type CursorMode int

const (
	CursorInactive CursorMode = 0
	CursorAttract  CursorMode = 1
	CursorRepel    CursorMode = 2
)

// CursorState is the world-space interaction cursor mirrored into every
// simulation at the top of each frame.
type CursorState struct {
	Mode     CursorMode
	X, Y     float64
	Radius   float64
	Strength float64
}

// Reset deactivates the cursor and recenters it. Radius and strength are
// user preferences and survive the reset.
func (c *CursorState) Reset() {
	c.Mode = CursorInactive
	c.X, c.Y = 0, 0
}

// CameraState is the 2D view transform: world-space center plus zoom.
type CameraState struct {
	X, Y float64
	Zoom float64
}

// NewCamera returns the identity camera.
func NewCamera() CameraState { return CameraState{Zoom: 1} }

// Pan moves the camera center by a world-space offset.
func (c *CameraState) Pan(dx, dy float64) {
	c.X += dx
	c.Y += dy
}

// ZoomAt scales the zoom by factor, keeping the given world point fixed.
func (c *CameraState) ZoomAt(factor, wx, wy float64) {
	if factor <= 0 {
		return
	}
	c.X = wx + (c.X-wx)/factor
	c.Y = wy + (c.Y-wy)/factor
	c.Zoom *= factor
}

// Reset restores the identity view.
func (c *CameraState) Reset() {
	c.X, c.Y = 0, 0
	c.Zoom = 1
}

// ScreenToWorld converts a screen pixel to world coordinates for a surface
// of the given extent. World space is [0,1]² at identity camera.
func (c *CameraState) ScreenToWorld(sx, sy float64, w, h int) (float64, float64) {
	if w <= 0 || h <= 0 {
		return c.X, c.Y
	}
	nx := sx/float64(w) - 0.5
	ny := sy/float64(h) - 0.5
	return c.X + 0.5 + nx/c.Zoom, c.Y + 0.5 + ny/c.Zoom
}

// TimingState measures frame deltas off the wall clock.
type TimingState struct {
	last time.Time
	now  func() time.Time
}

// NewTiming returns a timing state reading time.Now.
func NewTiming() *TimingState { return &TimingState{now: time.Now} }

// NewTimingWithClock injects a clock, for tests.
func NewTimingWithClock(now func() time.Time) *TimingState {
	return &TimingState{now: now}
}

// Delta returns the seconds elapsed since the previous call and advances
// the stored instant. The first call returns 0. Never negative.
func (t *TimingState) Delta() float64 {
	now := t.now()
	if t.last.IsZero() {
		t.last = now
		return 0
	}
	dt := now.Sub(t.last).Seconds()
	t.last = now
	if dt < 0 {
		return 0
	}
	return dt
}
