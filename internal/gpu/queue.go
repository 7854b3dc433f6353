package gpu

import "sync"

// Queue serializes work submissions. Simulations encode their compute and
// render passes as closures; Submit is the only mutation point for device
// storage, so pass ordering within a frame is total.
type Queue struct {
	mu        sync.Mutex
	submitted uint64
}

func NewQueue() *Queue { return &Queue{} }

// Submit runs the encoded work immediately, in submission order.
func (q *Queue) Submit(work func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted++
	work()
}

// Submitted returns the number of submissions so far.
func (q *Queue) Submitted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submitted
}
