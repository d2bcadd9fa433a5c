// Package kernel provides a small priority-preemptive, tick-based task kernel.
//
// Every task runs on its own goroutine, but only one task holds the run token at a time:
// the highest-priority Ready task. A task gives the token back only at a scheduling point
// (Delay, DelayUntil, a preemption inside Work, or returning from its function).
//
// # Lifecycle
//
// Tasks are created before the kernel starts. Dynamic creation is not supported:
//
//	k := kernel.New()
//	h, _ := k.Create(blinky, "red", kernel.MinimalStackDepth, 1)
//	_ = k.Run(ctx) // returns only when ctx is done, Shutdown is called, or the kernel halts
//
// Create after Start returns ErrAlreadyStarted.
//
// # Time
//
// Time is measured in ticks. The tick rate defaults to 1000 Hz (1 tick = 1 ms) and is set
// with WithTickRate. When nothing is Ready, the kernel advances time to the earliest wake-up.
//
// By default ticks are paced against the wall clock. WithVirtualTime removes the pacing, so
// time advances as fast as the tasks yield. Combined with RunFor this gives deterministic
// runs of a bounded horizon:
//
//	k := kernel.New(kernel.WithVirtualTime())
//	...
//	_ = k.RunFor(ctx, 3*time.Second)
//
// # Delay vs DelayUntil
//
// Delay blocks for a duration measured from the moment it is called; any time the task
// spent running before the call accumulates as drift.
//
// DelayUntil blocks until an absolute tick: it advances *prev by the period and waits for
// it. If that tick already passed it does not block, so late cycles are caught up and the
// long-run average period stays exact.
//
// # Run state
//
// Handle.State reports Ready, Running, Blocked, Suspended or Deleted. Suspend and Resume are
// idempotent. Suspending a Blocked task cancels its timeout; on Resume it becomes Ready.
// Suspending the Running task takes effect at its next scheduling point.
//
// # Names and lookup
//
// Task names are normalized by strings.TrimSpace, validated against [A-Za-z0-9._-], limited
// to MaxNameLen bytes and unique within a Kernel:
//
//	h, ok := k.Lookup("red")
package kernel
