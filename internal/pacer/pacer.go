// Package pacer schedules the frame loop: it measures deltas off the
// wall clock and enforces an optional FPS cap by sleeping out the
// remainder of each frame slot.
package pacer

import "time"

// Limit is the pacing policy for one frame loop.
type Limit struct {
	Enabled bool
	FPS     int
}

// Pacer tracks frame boundaries. Not safe for concurrent use; one pacer
// belongs to one loop.
type Pacer struct {
	now   func() time.Time
	sleep func(time.Duration)

	frameStart time.Time
	last       time.Time
}

// New returns a pacer on the system clock.
func New() *Pacer {
	return &Pacer{now: time.Now, sleep: time.Sleep}
}

// NewWithClock injects clock and sleep, for tests.
func NewWithClock(now func() time.Time, sleep func(time.Duration)) *Pacer {
	return &Pacer{now: now, sleep: sleep}
}

// BeginFrame marks the frame start and returns the seconds elapsed since
// the previous frame began. The first frame reports 0. Never negative.
func (p *Pacer) BeginFrame() float64 {
	start := p.now()
	p.frameStart = start
	if p.last.IsZero() {
		p.last = start
		return 0
	}
	dt := start.Sub(p.last).Seconds()
	p.last = start
	if dt < 0 {
		return 0
	}
	return dt
}

// EndFrame sleeps out the rest of the frame slot when a cap is enabled.
// The slot is measured from BeginFrame, so simulation cost counts against
// it; a frame that already ran long is not penalized further.
func (p *Pacer) EndFrame(limit Limit) {
	if !limit.Enabled || limit.FPS <= 0 || p.frameStart.IsZero() {
		return
	}
	slot := time.Second / time.Duration(limit.FPS)
	elapsed := p.now().Sub(p.frameStart)
	if remaining := slot - elapsed; remaining > 0 {
		p.sleep(remaining)
	}
}
