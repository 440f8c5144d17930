package shm

import "errors"

var (
	// ErrTimeout is returned by EventFlag.Wait when no requested bit was set in time
	ErrTimeout = errors.New("shm: wait timed out")

	// ErrClosed is returned when operating on an unmapped segment
	ErrClosed = errors.New("shm: segment closed")

	// ErrCorrupt is returned when queue indices describe an impossible state
	ErrCorrupt = errors.New("shm: queue indices corrupt")

	// ErrQueueFull is returned when a write does not fit in the free space
	ErrQueueFull = errors.New("shm: not enough space in queue")

	// ErrQueueEmpty is returned when fewer elements are available than requested
	ErrQueueEmpty = errors.New("shm: not enough elements in queue")

	// ErrBadSegment is returned when a mapped file does not match its descriptor
	ErrBadSegment = errors.New("shm: invalid segment")
)
