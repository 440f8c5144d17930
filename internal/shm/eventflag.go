//go:build unix

package shm

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const (
	// EventFlagSize is the size of an event flag segment. Only the first
	// word is used; the rest pads it to its own cache line.
	EventFlagSize = 64

	eventFlagPrefix = "perfhint-flag-"
)

// EventFlag is a 32-bit word of independently settable bits shared between
// processes. Wake sets bits and wakes every waiter; Wait blocks until any of
// the requested bits is set, then clears and returns them.
type EventFlag struct {
	seg  *Segment
	word *uint32
}

// CreateEventFlag creates a zeroed event flag segment in dir
func CreateEventFlag(dir string) (*EventFlag, error) {
	seg, err := CreateSegment(dir, eventFlagPrefix, EventFlagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create event flag: %w", err)
	}
	return &EventFlag{seg: seg, word: seg.uint32At(0)}, nil
}

// OpenEventFlag maps an event flag created by another process
func OpenEventFlag(desc Descriptor) (*EventFlag, error) {
	if desc.Size < 4 {
		return nil, fmt.Errorf("%w: event flag size %d", ErrBadSegment, desc.Size)
	}
	seg, err := OpenSegment(desc.Path, desc.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to open event flag: %w", err)
	}
	return &EventFlag{seg: seg, word: seg.uint32At(0)}, nil
}

// Desc returns the descriptor other processes use to open this flag
func (f *EventFlag) Desc() Descriptor {
	return Descriptor{Path: f.seg.Path(), Size: EventFlagSize}
}

// Load returns the current bits without consuming them
func (f *EventFlag) Load() uint32 {
	return atomic.LoadUint32(f.word)
}

// Wait blocks until at least one bit of mask is set, atomically clears the
// set bits of mask and returns them. A timeout <= 0 waits forever.
func (f *EventFlag) Wait(mask uint32, timeout time.Duration) (uint32, error) {
	if mask == 0 {
		return 0, fmt.Errorf("wait on empty mask")
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		old := atomic.AndUint32(f.word, ^mask)
		if got := old & mask; got != 0 {
			return got, nil
		}

		remaining := time.Duration(0)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return 0, ErrTimeout
			}
		}

		if err := futexWait(f.word, old, remaining); err != nil && err != ErrTimeout {
			return 0, err
		}
	}
}

// Wake sets bits and wakes all waiters
func (f *EventFlag) Wake(bits uint32) error {
	if bits == 0 {
		return nil
	}
	atomic.OrUint32(f.word, bits)
	_, err := futexWake(f.word, math.MaxInt32)
	return err
}

// Close unmaps the flag, removing the file if this process created it
func (f *EventFlag) Close() error {
	return f.seg.Close()
}
