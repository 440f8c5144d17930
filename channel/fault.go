package channel

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
)

// ErrSegmentFault is returned when touching a shared segment faults, which
// happens when a client truncates the file under the mapping
var ErrSegmentFault = errors.New("shared segment fault")

// guardFault runs fn with memory faults turned into ErrSegmentFault
// instead of crashing the process
func guardFault(fn func() error) (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rerr, ok := r.(runtime.Error)
		if !ok {
			panic(r)
		}
		fault, ok := rerr.(interface{ Addr() uintptr })
		if !ok {
			panic(r)
		}
		err = fmt.Errorf("%w at %#x: %v", ErrSegmentFault, fault.Addr(), rerr)
	}()
	return fn()
}
