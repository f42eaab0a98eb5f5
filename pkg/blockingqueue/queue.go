package blockingqueue

import (
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// DefaultCapacity is the kernel nfqueue maximum queue length.
const DefaultCapacity = 1024

var (
	ErrInvalidCapacity    = errors.New("capacity must be positive")
	ErrUnknownBackend     = errors.New("unknown queue backend")
	ErrBackendUnsupported = errors.New("queue backend not supported on this platform")
	ErrNotFixedSize       = errors.New("element type has no fixed binary size")
)

// Queue is a bounded, goroutine-safe FIFO.
//
// Put appends v at the tail, waiting for room while the queue holds Cap
// elements. Take removes the head, waiting while the queue is empty. Both wait
// indefinitely. Len is a snapshot and may be stale by the time it returns.
type Queue[T any] interface {
	Put(v T)
	Take() T
	Len() int
	Cap() int
	Close() error
}

type Backend string

const (
	BackendCond Backend = "cond"
	BackendPipe Backend = "pipe"
)

func (b Backend) String() string {
	return string(b)
}

// ParseBackend maps a configuration value to a Backend. Matching is case
// insensitive and an empty string selects BackendCond.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendCond:
		return BackendCond, nil
	case BackendPipe:
		return BackendPipe, nil
	default:
		return "", pkgerrors.Wrapf(ErrUnknownBackend, "%q", s)
	}
}

type options struct {
	capacity int
	backend  Backend
}

type Option func(*options)

func WithCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

func WithBackend(backend Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// New builds a queue with DefaultCapacity on BackendCond unless overridden.
// Failing to set up the backing wait resource is returned as an error and the
// queue must not be used.
func New[T any](opts ...Option) (Queue[T], error) {
	o := options{
		capacity: DefaultCapacity,
		backend:  BackendCond,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch o.backend {
	case BackendCond:
		q, err := NewCond[T](o.capacity)
		if err != nil {
			return nil, err
		}
		return q, nil
	case BackendPipe:
		q, err := NewPipe[T](o.capacity)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, pkgerrors.Wrapf(ErrUnknownBackend, "%q", string(o.backend))
	}
}

func checkCapacity(capacity int) error {
	if capacity <= 0 {
		return pkgerrors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	return nil
}
