// Package blockingqueue provides a bounded FIFO used to hand packets from a
// capture goroutine to processing goroutines.
//
// Put blocks while the queue is full and Take blocks while it is empty. Neither
// call can be cancelled and neither returns an error: backpressure is the only
// response to contention.
//
// Two backings implement the same Queue interface:
//
//   - BackendCond keeps elements in a ring guarded by a mutex and two
//     condition variables.
//   - BackendPipe moves fixed-size binary elements through a kernel pipe
//     (Linux only).
//
// The default capacity mirrors the kernel nfqueue queue length so the queue
// never buffers more than the kernel queue it drains.
package blockingqueue
