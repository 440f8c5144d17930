//go:build unix

package shm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// Queue header layout. Indices are monotonic element counts; the slot of an
// index is index % capacity.
const (
	QueueMagic = 0x31514850 // "PHQ1"

	QueueMagicOffset      = 0
	QueueCapacityOffset   = 4
	QueueElemSizeOffset   = 8
	QueueWriteIndexOffset = 16
	QueueReadIndexOffset  = 24
	QueueHeaderSize       = 64

	queuePrefix = "perfhint-queue-"
)

// Queue is a single-producer single-consumer ring of fixed-size elements in
// shared memory. Writes and reads move whole element runs or nothing.
type Queue struct {
	seg      *Segment
	capacity uint64
	elemSize int
	widx     *uint64
	ridx     *uint64
	data     []byte
}

// QueueSegmentSize returns the segment size needed for a queue
func QueueSegmentSize(capacity, elemSize int) int {
	return QueueHeaderSize + capacity*elemSize
}

// CreateQueue creates an empty queue segment in dir
func CreateQueue(dir string, capacity, elemSize int) (*Queue, error) {
	if capacity <= 0 || elemSize <= 0 {
		return nil, fmt.Errorf("invalid queue geometry: capacity=%d elemSize=%d", capacity, elemSize)
	}

	seg, err := CreateSegment(dir, queuePrefix, QueueSegmentSize(capacity, elemSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}

	mem := seg.Bytes()
	binary.LittleEndian.PutUint32(mem[QueueMagicOffset:], QueueMagic)
	binary.LittleEndian.PutUint32(mem[QueueCapacityOffset:], uint32(capacity))
	binary.LittleEndian.PutUint32(mem[QueueElemSizeOffset:], uint32(elemSize))

	return newQueueView(seg, capacity, elemSize), nil
}

// OpenQueue maps a queue created by another process
func OpenQueue(desc Descriptor) (*Queue, error) {
	if desc.Size != QueueSegmentSize(desc.Capacity, desc.ElemSize) || desc.Capacity <= 0 || desc.ElemSize <= 0 {
		return nil, fmt.Errorf("%w: inconsistent queue descriptor %+v", ErrBadSegment, desc)
	}

	seg, err := OpenSegment(desc.Path, desc.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	mem := seg.Bytes()
	magic := binary.LittleEndian.Uint32(mem[QueueMagicOffset:])
	capacity := binary.LittleEndian.Uint32(mem[QueueCapacityOffset:])
	elemSize := binary.LittleEndian.Uint32(mem[QueueElemSizeOffset:])
	if magic != QueueMagic || int(capacity) != desc.Capacity || int(elemSize) != desc.ElemSize {
		seg.Close()
		return nil, fmt.Errorf("%w: header magic=%#x capacity=%d elemSize=%d", ErrBadSegment, magic, capacity, elemSize)
	}

	return newQueueView(seg, desc.Capacity, desc.ElemSize), nil
}

func newQueueView(seg *Segment, capacity, elemSize int) *Queue {
	return &Queue{
		seg:      seg,
		capacity: uint64(capacity),
		elemSize: elemSize,
		widx:     seg.uint64At(QueueWriteIndexOffset),
		ridx:     seg.uint64At(QueueReadIndexOffset),
		data:     seg.Bytes()[QueueHeaderSize:],
	}
}

// Desc returns the descriptor other processes use to open this queue
func (q *Queue) Desc() Descriptor {
	return Descriptor{
		Path:     q.seg.Path(),
		Size:     QueueSegmentSize(int(q.capacity), q.elemSize),
		Capacity: int(q.capacity),
		ElemSize: q.elemSize,
	}
}

// Capacity returns the number of element slots
func (q *Queue) Capacity() int { return int(q.capacity) }

// ElemSize returns the size of one element in bytes
func (q *Queue) ElemSize() int { return q.elemSize }

func (q *Queue) used() uint64 {
	return atomic.LoadUint64(q.widx) - atomic.LoadUint64(q.ridx)
}

// AvailableToRead returns the number of elements written but not yet read.
// A value above Capacity means the indices are corrupt.
func (q *Queue) AvailableToRead() int {
	n := q.used()
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// AvailableToWrite returns the number of free element slots
func (q *Queue) AvailableToWrite() int {
	n := q.used()
	if n > q.capacity {
		return 0
	}
	return int(q.capacity - n)
}

// Read copies n elements into dst and consumes them. It fails without
// consuming anything if fewer than n elements are available or the indices
// are corrupt. Only one goroutine may read at a time.
func (q *Queue) Read(dst []byte, n int) error {
	if n <= 0 {
		return nil
	}

	r := atomic.LoadUint64(q.ridx)
	w := atomic.LoadUint64(q.widx)
	avail := w - r
	if avail > q.capacity {
		return fmt.Errorf("%w: write=%d read=%d capacity=%d", ErrCorrupt, w, r, q.capacity)
	}
	if uint64(n) > avail {
		return fmt.Errorf("%w: want %d, have %d", ErrQueueEmpty, n, avail)
	}
	if len(dst) < n*q.elemSize {
		return fmt.Errorf("destination too small: %d bytes for %d elements", len(dst), n)
	}

	q.copyOut(dst, r, n)
	atomic.StoreUint64(q.ridx, r+uint64(n))
	return nil
}

// Write copies n elements from src into the queue. It fails without writing
// anything if fewer than n slots are free. Only one goroutine may write at a
// time.
func (q *Queue) Write(src []byte, n int) error {
	if n <= 0 {
		return nil
	}
	if len(src) < n*q.elemSize {
		return fmt.Errorf("source too small: %d bytes for %d elements", len(src), n)
	}

	w := atomic.LoadUint64(q.widx)
	r := atomic.LoadUint64(q.ridx)
	used := w - r
	if used > q.capacity {
		return fmt.Errorf("%w: write=%d read=%d capacity=%d", ErrCorrupt, w, r, q.capacity)
	}
	if uint64(n) > q.capacity-used {
		return fmt.Errorf("%w: want %d, have %d", ErrQueueFull, n, q.capacity-used)
	}

	q.copyIn(src, w, n)
	atomic.StoreUint64(q.widx, w+uint64(n))
	return nil
}

func (q *Queue) copyOut(dst []byte, idx uint64, n int) {
	start := int(idx%q.capacity) * q.elemSize
	total := n * q.elemSize
	first := min(total, len(q.data)-start)
	copy(dst[:first], q.data[start:start+first])
	copy(dst[first:total], q.data[:total-first])
}

func (q *Queue) copyIn(src []byte, idx uint64, n int) {
	start := int(idx%q.capacity) * q.elemSize
	total := n * q.elemSize
	first := min(total, len(q.data)-start)
	copy(q.data[start:start+first], src[:first])
	copy(q.data[:total-first], src[first:total])
}

// Close unmaps the queue, removing the file if this process created it
func (q *Queue) Close() error {
	return q.seg.Close()
}
