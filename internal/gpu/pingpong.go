package gpu

import "sync/atomic"

// PingPong is a pair of identically sized buffers alternating between the
// read side and the write side of an iterative pass. A pass reads Current
// and writes Inactive; Swap is called exactly once per step, after all
// reads of Current have been encoded.
type PingPong struct {
	bufs    [2]*Buffer
	current atomic.Int32
}

// NewPingPong allocates both sides, labeled "<label> A" and "<label> B".
func NewPingPong(dev *Device, n int, usage Usage, label string) (*PingPong, error) {
	a, err := dev.NewBuffer(n, usage, label+" A")
	if err != nil {
		return nil, err
	}
	b, err := dev.NewBuffer(n, usage, label+" B")
	if err != nil {
		a.Release()
		return nil, err
	}
	p := &PingPong{bufs: [2]*Buffer{a, b}}
	return p, nil
}

// Current is the read side for the pass being recorded.
func (p *PingPong) Current() *Buffer { return p.bufs[p.current.Load()] }

// Inactive is the write side. Always distinct from Current.
func (p *PingPong) Inactive() *Buffer { return p.bufs[1-p.current.Load()] }

// CurrentIndex reports which side is current, 0 or 1.
func (p *PingPong) CurrentIndex() int { return int(p.current.Load()) }

// Swap flips the pair. Called once per step.
func (p *PingPong) Swap() {
	p.current.Store(1 - p.current.Load())
}

// Len is the per-side element count.
func (p *PingPong) Len() int { return p.bufs[0].Len() }

// Zero clears both sides.
func (p *PingPong) Zero() {
	p.bufs[0].Zero()
	p.bufs[1].Zero()
}

// Release frees both sides.
func (p *PingPong) Release() {
	p.bufs[0].Release()
	p.bufs[1].Release()
}
