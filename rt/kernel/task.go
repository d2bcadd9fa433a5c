package kernel

import (
	"errors"
	"fmt"
	"time"
)

var errPanicked = errors.New("panic")

type taskRuntime struct {
	k *Kernel

	fn         Func
	name       string
	prio       Priority
	stackDepth int

	runCh chan struct{} // loop -> task: run token granted

	// guarded by k.mu
	state          State
	readySeq       uint64
	wakeAt         Tick
	suspendPending bool
	switches       uint64
	suspends       uint64
	resumes        uint64
	lastRun        Tick
	lastError      string
}

func (t *taskRuntime) main() {
	k := t.k
	defer k.wg.Done()

	if err := t.waitRun(); err != nil {
		return
	}
	err := t.call()

	k.mu.Lock()
	running := k.state == kernelRunning
	if running || !errors.Is(err, ErrStopped) {
		// Unwinding on stop keeps the last observed state.
		k.setStateLocked(t, StateDeleted)
	}
	if errors.Is(err, errPanicked) {
		t.lastError = "panic"
	} else if err != nil && !errors.Is(err, ErrStopped) {
		t.lastError = err.Error()
	}
	k.unlock()

	if running {
		// Returning from the task function is a scheduling point.
		k.yieldCh <- struct{}{}
	}
}

func (t *taskRuntime) call() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errPanicked
			t.k.reportPanic(t.name, p)
		}
	}()
	err = t.fn(t)
	if err != nil && !errors.Is(err, ErrStopped) {
		t.k.reportError(t.name, err)
	}
	return err
}

// waitRun parks the task goroutine until the loop grants it the run token.
func (t *taskRuntime) waitRun() error {
	select {
	case <-t.runCh:
		return nil
	case <-t.k.stopCh:
		return ErrStopped
	}
}

// yield gives the run token back to the loop, leaving the task in state `to`.
// A pending suspend request wins over `to`.
func (t *taskRuntime) yield(to State, wake Tick) error {
	k := t.k
	k.mu.Lock()
	if k.state != kernelRunning {
		k.unlock()
		return ErrStopped
	}
	if t.suspendPending {
		t.suspendPending = false
		to = StateSuspended
	}
	switch to {
	case StateBlocked:
		t.wakeAt = wake
		k.setStateLocked(t, StateBlocked)
	case StateReady:
		k.makeReadyLocked(t)
	default:
		k.setStateLocked(t, to)
	}
	k.unlock()

	k.yieldCh <- struct{}{}
	return t.waitRun()
}

// --- Sys ---

func (t *taskRuntime) Self() Handle { return t }

func (t *taskRuntime) Now() Tick { return t.k.Now() }

func (t *taskRuntime) Ticks(d time.Duration) Tick { return t.k.Ticks(d) }

func (t *taskRuntime) Delay(d time.Duration) error {
	n := t.k.Ticks(d)
	if n == 0 {
		return t.yield(StateReady, 0)
	}
	return t.yield(StateBlocked, t.k.Now()+n)
}

func (t *taskRuntime) DelayUntil(prev *Tick, d time.Duration) error {
	if prev == nil {
		panic("kernel: DelayUntil called with nil prev")
	}
	*prev += t.k.Ticks(d)
	if *prev <= t.k.Now() {
		return t.yield(StateReady, 0)
	}
	return t.yield(StateBlocked, *prev)
}

func (t *taskRuntime) Work(d time.Duration) error {
	k := t.k
	n := k.Ticks(d)
	for i := Tick(0); i < n; i++ {
		k.mu.Lock()
		target := k.now + 1
		past := k.bounded && target > k.limit
		k.mu.Unlock()
		if past {
			// Busy past the horizon: hand the token back so the loop ends the run.
			return t.yield(StateReady, 0)
		}
		k.pace(target, false)

		k.mu.Lock()
		if k.state != kernelRunning {
			k.unlock()
			return ErrStopped
		}
		k.advanceLocked(target)
		preempt := k.preemptsLocked(t)
		k.unlock()

		if preempt {
			if err := t.yield(StateReady, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- Handle ---

func (t *taskRuntime) Name() string { return t.name }

func (t *taskRuntime) Priority() Priority { return t.prio }

func (t *taskRuntime) State() State {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

func (t *taskRuntime) Suspend() {
	k := t.k
	k.mu.Lock()
	switch t.state {
	case StateNotStarted, StateReady, StateBlocked:
		t.wakeAt = 0
		t.suspends++
		k.setStateLocked(t, StateSuspended)
	case StateRunning:
		// Takes effect at the task's next scheduling point.
		if !t.suspendPending {
			t.suspendPending = true
			t.suspends++
		}
	}
	k.unlock()
}

func (t *taskRuntime) Resume() {
	k := t.k
	wake := false
	k.mu.Lock()
	switch {
	case t.state == StateSuspended:
		t.resumes++
		if k.state == kernelNotStarted {
			k.setStateLocked(t, StateNotStarted)
		} else {
			k.makeReadyLocked(t)
			wake = true
		}
	case t.state == StateRunning && t.suspendPending:
		t.suspendPending = false
		t.resumes++
	}
	k.unlock()
	if wake {
		k.signalWake()
	}
}

func (t *taskRuntime) Status() Status {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.statusLocked()
}

func (t *taskRuntime) statusLocked() Status {
	return Status{
		Name:       t.name,
		Priority:   t.prio,
		StackDepth: t.stackDepth,
		State:      t.state,
		Switches:   t.switches,
		Suspends:   t.suspends,
		Resumes:    t.resumes,
		LastRun:    t.lastRun,
		WakeAt:     t.wakeAt,
		LastError:  t.lastError,
	}
}

func (t *taskRuntime) String() string {
	if t.name == "" {
		return fmt.Sprintf("task(prio=%d)", t.prio)
	}
	return t.name
}
