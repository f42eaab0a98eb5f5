//go:build linux

package blockingqueue

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

var _ Queue[uint32] = (*PipeQueue[uint32])(nil)

// PipeQueue moves elements through a kernel pipe. Elements are encoded with
// encoding/binary in native byte order, so T must have a fixed binary size
// (integers of explicit width, fixed arrays, and structs made of those).
//
// The pipe buffer is sized to hold capacity elements, but the kernel rounds
// pipe sizes up to a power of two pages. A weighted semaphore in front of the
// pipe holds the element count to exactly capacity.
type PipeQueue[T any] struct {
	r, w     *os.File
	size     int
	capacity int

	slots *semaphore.Weighted
	count atomic.Int64

	wmu  sync.Mutex
	wbuf []byte
	rmu  sync.Mutex
	rbuf []byte
}

func NewPipe[T any](capacity int) (*PipeQueue[T], error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}

	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return nil, errors.Wrapf(ErrNotFixedSize, "%T", zero)
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, errors.Wrap(err, "create pipe")
	}

	if err := growPipe(fds[1], size*capacity); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}

	// Non-blocking descriptors are registered with the runtime poller, so a
	// goroutine blocked on an empty or full pipe parks instead of holding a thread.
	return &PipeQueue[T]{
		r:        os.NewFile(uintptr(fds[0]), "blockingqueue|0"),
		w:        os.NewFile(uintptr(fds[1]), "blockingqueue|1"),
		size:     size,
		capacity: capacity,
		slots:    semaphore.NewWeighted(int64(capacity)),
		wbuf:     make([]byte, size),
		rbuf:     make([]byte, size),
	}, nil
}

func growPipe(fd int, want int) error {
	have, err := unix.FcntlInt(uintptr(fd), unix.F_GETPIPE_SZ, 0)
	if err != nil {
		return errors.Wrap(err, "get pipe size")
	}
	if have >= want {
		return nil
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, want); err != nil {
		return errors.Wrapf(err, "set pipe size to %d bytes", want)
	}
	return nil
}

// Put panics if the pipe has been closed.
func (q *PipeQueue[T]) Put(v T) {
	// Acquire with a background context only returns once a slot is free.
	_ = q.slots.Acquire(context.Background(), 1)
	q.count.Add(1)

	q.wmu.Lock()
	defer q.wmu.Unlock()

	if _, err := binary.Encode(q.wbuf, binary.NativeEndian, v); err != nil {
		panic(errors.Wrap(err, "blockingqueue: encode element"))
	}
	if _, err := q.w.Write(q.wbuf); err != nil {
		panic(errors.Wrap(err, "blockingqueue: write pipe"))
	}
}

// Take panics if the pipe has been closed.
func (q *PipeQueue[T]) Take() T {
	var v T

	q.rmu.Lock()
	if _, err := io.ReadFull(q.r, q.rbuf); err != nil {
		q.rmu.Unlock()
		panic(errors.Wrap(err, "blockingqueue: read pipe"))
	}
	if _, err := binary.Decode(q.rbuf, binary.NativeEndian, &v); err != nil {
		q.rmu.Unlock()
		panic(errors.Wrap(err, "blockingqueue: decode element"))
	}
	q.rmu.Unlock()

	q.count.Add(-1)
	q.slots.Release(1)
	return v
}

func (q *PipeQueue[T]) Len() int {
	return int(q.count.Load())
}

func (q *PipeQueue[T]) Cap() int {
	return q.capacity
}

// ElementSize is the number of bytes each element occupies in the pipe.
func (q *PipeQueue[T]) ElementSize() int {
	return q.size
}

// Close releases both pipe descriptors. No goroutine may be inside Put or
// Take when Close is called.
func (q *PipeQueue[T]) Close() error {
	werr := q.w.Close()
	rerr := q.r.Close()
	if werr != nil {
		return errors.Wrap(werr, "close pipe writer")
	}
	return errors.Wrap(rerr, "close pipe reader")
}
