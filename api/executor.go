// File: api/executor.go
// Author: momentics <momentics@gmail.com>
//
// Executor contract for parallel task dispatch. Nothing in this module
// implements or uses it; the progress engine bounds its target work
// with a semaphore instead. Unchanged from the teacher's
// api/executor.go.

package api

// Executor abstracts parallel task dispatch.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int

	// Resize adjusts the concurrency at runtime.
	Resize(newCount int)
}
