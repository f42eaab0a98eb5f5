package blockingqueue

import "sync"

var _ Queue[int] = (*CondQueue[int])(nil)

// CondQueue is the monitor backing: a ring of fixed size guarded by one mutex,
// with one condition for "not full" and one for "not empty". Each Put wakes a
// single Take and each Take wakes a single Put; every waiter re-checks its
// condition after waking.
type CondQueue[T any] struct {
	mu       sync.Mutex
	notFull  sync.Cond
	notEmpty sync.Cond

	buf   []T
	head  int
	count int
}

func NewCond[T any](capacity int) (*CondQueue[T], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}

	q := &CondQueue[T]{
		buf: make([]T, capacity),
	}
	q.notFull.L = &q.mu
	q.notEmpty.L = &q.mu
	return q, nil
}

func (q *CondQueue[T]) Put(v T) {
	q.mu.Lock()
	for q.count == len(q.buf) {
		q.notFull.Wait()
	}

	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
	q.notEmpty.Signal()
	q.mu.Unlock()
}

func (q *CondQueue[T]) Take() T {
	q.mu.Lock()
	for q.count == 0 {
		q.notEmpty.Wait()
	}

	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero // drop the reference so the GC can reclaim it
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	q.mu.Unlock()
	return v
}

func (q *CondQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *CondQueue[T]) Cap() int {
	return len(q.buf)
}

// Close is a no-op; the ring is reclaimed with the queue.
func (q *CondQueue[T]) Close() error {
	return nil
}
