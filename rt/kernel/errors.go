package kernel

import "errors"

var (
	// ErrAlreadyStarted is returned by Start/Run/RunFor when called more than once,
	// and by Create after the kernel started.
	ErrAlreadyStarted = errors.New("kernel: already started")
	// ErrNotStarted is returned by Wait when the kernel was never started.
	ErrNotStarted = errors.New("kernel: not started")
	// ErrStopped is returned from blocking task calls once the kernel is stopping.
	// Task functions should return it unchanged.
	ErrStopped = errors.New("kernel: stopped")
	// ErrNoTasks is returned by Start when no task was created.
	ErrNoTasks = errors.New("kernel: no tasks")
	// ErrAllTasksDeleted is the halt reason when every task function returned.
	ErrAllTasksDeleted = errors.New("kernel: all tasks deleted")

	// ErrInvalidName is returned by Create when a task name is invalid.
	//
	// Name rules:
	//   - name is optional (empty means unnamed, not indexed for Lookup)
	//   - non-empty name must match [A-Za-z0-9._-]
	//   - at most MaxNameLen bytes after strings.TrimSpace
	ErrInvalidName = errors.New("kernel: invalid name")
	// ErrDuplicateName is returned by Create when a non-empty task name is already registered.
	ErrDuplicateName = errors.New("kernel: duplicate name")
	// ErrInvalidPriority is returned by Create when priority >= the configured max priorities.
	ErrInvalidPriority = errors.New("kernel: invalid priority")
	// ErrStackTooSmall is returned by Create when stackDepth < MinimalStackDepth.
	ErrStackTooSmall = errors.New("kernel: stack too small")
	// ErrNoMemory is returned by Create when the task stack does not fit the heap budget.
	ErrNoMemory = errors.New("kernel: out of heap")
)
