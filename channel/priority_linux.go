//go:build linux

package channel

import "golang.org/x/sys/unix"

// workerNice is the nice value requested for group worker threads
const workerNice = -20

// raiseThreadPriority lowers the calling thread's nice value. On Linux
// PRIO_PROCESS with who=0 applies to the calling thread only.
func raiseThreadPriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, workerNice)
}
