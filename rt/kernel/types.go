package kernel

import (
	"context"
	"fmt"
	"time"
)

// Tick is the kernel's unit of time. Tick 0 is the moment the kernel started.
type Tick uint64

// Priority orders tasks: a Ready task with a higher value always runs first.
type Priority uint8

// IdlePriority is the lowest priority.
const IdlePriority Priority = 0

// MinimalStackDepth is the smallest accepted stack depth, in words.
const MinimalStackDepth = 128

// Func is the body of a task. It runs on the task's own goroutine and holds the run token
// between scheduling points.
//
// A task function normally never returns. Once the kernel stops, every blocking Sys call
// returns ErrStopped, and the function should return it.
type Func func(sys Sys) error

// Sys is the kernel as seen from inside a running task.
//
// Sys methods must only be called from the task's own function.
type Sys interface {
	// Self returns the handle of the calling task.
	Self() Handle

	// Now returns the current tick count.
	Now() Tick

	// Ticks converts d to ticks at the kernel tick rate (truncating).
	Ticks(d time.Duration) Tick

	// Delay blocks the task for d, measured from now. A zero d only yields to Ready
	// tasks of the same priority.
	Delay(d time.Duration) error

	// DelayUntil advances *prev by d and blocks until that absolute tick.
	// If the tick is not in the future, it only yields.
	DelayUntil(prev *Tick, d time.Duration) error

	// Work models d of processor time consumed by the task. Time advances while the task
	// keeps the run token; a higher-priority task that becomes Ready preempts it at the
	// next tick. Under RunFor, Work stops at the horizon and returns ErrStopped.
	Work(d time.Duration) error
}

// Handle is a registered task handle.
//
// Handle methods are safe for concurrent use and may be called from other tasks or from
// outside the kernel (for example an ops endpoint).
type Handle interface {
	// Name returns the configured name (may be empty).
	Name() string

	// Priority returns the static priority.
	Priority() Priority

	// State returns the current run state.
	State() State

	// Suspend removes the task from scheduling until Resume. It is a no-op for a task that
	// is already Suspended or Deleted.
	Suspend()

	// Resume makes a Suspended task Ready. It is a no-op for any other state.
	Resume()

	// Status returns a snapshot of the task's current status.
	Status() Status
}

// State is the run state of a task.
type State int

const (
	StateNotStarted State = iota
	StateReady
	StateRunning
	StateBlocked
	StateSuspended
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a task state snapshot.
type Status struct {
	Name       string
	Priority   Priority
	StackDepth int
	State      State

	// Switches counts how many times the task was given the run token.
	Switches uint64
	Suspends uint64
	Resumes  uint64

	// LastRun is the tick at which the task last got the run token.
	LastRun Tick
	// WakeAt is the wake-up tick of a Blocked task. Zero otherwise.
	WakeAt Tick

	// LastError is the error (or "panic") the task function ended with, if any.
	LastError string
}

// Snapshot is a point-in-time view of all tasks in a Kernel.
type Snapshot struct {
	Now   Tick
	Tasks []Status
}

// Get finds a task status by name.
func (s Snapshot) Get(name string) (Status, bool) {
	for _, st := range s.Tasks {
		if st.Name == name {
			return st, true
		}
	}
	return Status{}, false
}

// StateChange is passed to the OnStateChange hook.
type StateChange struct {
	Name string
	From State
	To   State
	Tick Tick
}

// ErrorInfo describes an error returned from a task function.
type ErrorInfo struct {
	Name string
	Err  error
}

// PanicInfo describes a recovered task panic.
type PanicInfo struct {
	Name  string
	Value any
	Stack []byte
}

// ErrorHandler is called when a task function returns an error other than ErrStopped.
type ErrorHandler func(info ErrorInfo)

// PanicHandler is called when a task function panics.
type PanicHandler func(info PanicInfo)

// Runner is a small lifecycle interface implemented by Kernel for app assembly.
type Runner interface {
	Start(context.Context) error
	Shutdown(context.Context) error
	Wait() error
}
