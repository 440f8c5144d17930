// Package shm provides the shared memory primitives channels are built on.
//
// A Segment is a file mapped MAP_SHARED into every process that opens it.
// Two views are layered on top of segments:
//
//   - EventFlag: a single 32-bit word that waiters block on with a futex
//     and wakers OR bits into. Bits are cleared atomically by the waiter
//     that consumes them.
//   - Queue: a single-producer single-consumer ring of fixed-size elements
//     addressed by monotonic write and read indices kept in the segment
//     header.
//
// Both views are described to other processes with a Descriptor, which is
// enough to map the same memory on the other side.
package shm
