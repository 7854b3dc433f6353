// Package gpu owns the compute device, submission queue and presentable
// surface shared by every simulation. Buffers live in device-managed
// storage; simulations encode their passes against them and the queue
// serializes all submissions.
package gpu

import (
	"fmt"
	"runtime"
	"sync"
)

// Usage describes what a buffer is bound as.
type Usage uint32

const (
	UsageStorage Usage = 1 << iota
	UsageUniform
	UsageVertex
	UsageCopySrc
	UsageCopyDst
)

// Caps reports the negotiated device capabilities.
type Caps struct {
	SupportsF16             bool
	MaxWorkgroupInvocations int
	MaxStorageBufferSize    int // bytes
}

// Device allocates and tracks storage for simulation state. All buffer
// memory is owned by the device; releasing a buffer returns its bytes to
// the budget.
type Device struct {
	caps Caps

	mu        sync.Mutex
	allocated int
	lost      bool
	workers   int
}

// NewDevice negotiates a device against the host. The storage budget
// defaults to 1 GiB when maxStorage is zero.
func NewDevice(maxStorage int) *Device {
	if maxStorage <= 0 {
		maxStorage = 1 << 30
	}
	workers := runtime.NumCPU()
	return &Device{
		caps: Caps{
			SupportsF16:             true,
			MaxWorkgroupInvocations: 256,
			MaxStorageBufferSize:    maxStorage,
		},
		workers: workers,
	}
}

func (d *Device) Caps() Caps { return d.caps }

// Lost reports whether the device has been irrecoverably lost.
func (d *Device) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// MarkLost transitions the device to its terminal state. Buffers remain
// readable but no new allocations succeed.
func (d *Device) MarkLost() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
}

// Allocated returns the bytes currently held by live buffers.
func (d *Device) Allocated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Buffer is a device-owned linear array of float32 elements.
type Buffer struct {
	dev   *Device
	label string
	usage Usage
	data  []float32
}

// NewBuffer allocates n float32 elements. Allocation is charged against
// MaxStorageBufferSize; exceeding it fails with ErrOutOfMemory.
func (d *Device) NewBuffer(n int, usage Usage, label string) (*Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("buffer %q: negative size %d", label, n)
	}
	bytes := n * 4

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}
	if bytes > d.caps.MaxStorageBufferSize || d.allocated+bytes > d.caps.MaxStorageBufferSize {
		return nil, fmt.Errorf("buffer %q (%d bytes): %w", label, bytes, ErrOutOfMemory)
	}
	d.allocated += bytes

	return &Buffer{dev: d, label: label, usage: usage, data: make([]float32, n)}, nil
}

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Usage() Usage  { return b.usage }
func (b *Buffer) Len() int      { return len(b.data) }

// Data exposes the backing storage for pass encoding. Callers must not
// retain the slice across a Release.
func (b *Buffer) Data() []float32 { return b.data }

// Zero clears the buffer contents.
func (b *Buffer) Zero() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// CopyFrom copies as many elements as both buffers hold in common.
func (b *Buffer) CopyFrom(src *Buffer) {
	copy(b.data, src.data)
}

// Release returns the buffer's bytes to the device budget. The buffer must
// not be used afterwards.
func (b *Buffer) Release() {
	if b.dev == nil {
		return
	}
	b.dev.mu.Lock()
	b.dev.allocated -= len(b.data) * 4
	b.dev.mu.Unlock()
	b.dev = nil
	b.data = nil
}

// Each runs fn over [0,n) split into contiguous ranges across the device
// workers. Used by simulations to parallelize grid and agent passes.
func (d *Device) Each(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := d.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
