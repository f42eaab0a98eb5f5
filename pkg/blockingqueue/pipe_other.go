//go:build !linux

package blockingqueue

import "github.com/pkg/errors"

// PipeQueue is only available on Linux.
type PipeQueue[T any] struct{}

func NewPipe[T any](capacity int) (*PipeQueue[T], error) {
	return nil, errors.Wrap(ErrBackendUnsupported, string(BackendPipe))
}

func (q *PipeQueue[T]) Put(v T) {
	panic(ErrBackendUnsupported)
}

func (q *PipeQueue[T]) Take() T {
	panic(ErrBackendUnsupported)
}

func (q *PipeQueue[T]) Len() int         { return 0 }
func (q *PipeQueue[T]) Cap() int         { return 0 }
func (q *PipeQueue[T]) ElementSize() int { return 0 }

func (q *PipeQueue[T]) Close() error {
	return errors.Wrap(ErrBackendUnsupported, string(BackendPipe))
}
