//go:build !linux

package shm

import (
	"sync/atomic"
	"time"
)

// pollInterval bounds wake latency where no futex syscall exists
const pollInterval = 200 * time.Microsecond

func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for atomic.LoadUint32(addr) == val {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollInterval)
	}
	return nil
}

func futexWake(addr *uint32, n int) (int, error) {
	return 0, nil
}
