//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux CPU affinity via sched_setaffinity(2), scoped to the calling
// thread (tid 0) so it only ever affects the goroutine that has already
// called runtime.LockOSThread — exactly progress.Engine.Run's use.
package affinity

import "golang.org/x/sys/unix"

// setAffinityPlatform pins the calling OS thread to cpuID.
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}
