package kernel

// loop hands the run token to the highest-priority Ready task and advances time whenever
// nothing is Ready. It returns the halt reason.
func (k *Kernel) loop(limit Tick, bounded bool) error {
	for {
		k.mu.Lock()
		if k.state != kernelRunning {
			k.unlock()
			return nil
		}
		if bounded && k.now >= limit {
			k.unlock()
			return nil
		}

		if t := k.pickLocked(); t != nil {
			k.current = t
			t.switches++
			t.lastRun = k.now
			k.setStateLocked(t, StateRunning)
			k.unlock()

			t.runCh <- struct{}{}
			select {
			case <-k.yieldCh:
			case <-k.stopCh:
				return nil
			}

			k.mu.Lock()
			k.current = nil
			k.mu.Unlock()
			continue
		}

		if k.allDeletedLocked() {
			k.unlock()
			return ErrAllTasksDeleted
		}

		target, ok := k.nextWakeLocked()
		if bounded && (!ok || target > limit) {
			target, ok = limit, true
		}
		k.unlock()

		if !ok {
			// Everything is suspended: idle until an external Resume.
			select {
			case <-k.wakeCh:
				continue
			case <-k.stopCh:
				return nil
			}
		}

		reached := k.pace(target, true)
		k.mu.Lock()
		if reached {
			k.advanceLocked(target)
		} else if wall := k.wallTickLocked(); wall < target {
			k.advanceLocked(wall)
		}
		k.unlock()
	}
}

// pace blocks until the wall-clock time of tick target. It reports false if it was cut
// short by a stop or (when interruptible) an external wake-up.
func (k *Kernel) pace(target Tick, interruptible bool) bool {
	if k.cfg.virtual {
		return true
	}
	k.mu.Lock()
	at := k.epoch.Add(k.Duration(target))
	k.mu.Unlock()

	d := at.Sub(k.cfg.clk.Now())
	if d <= 0 {
		return true
	}
	timer := k.cfg.clk.NewTimer(d)
	defer timer.Stop()

	var wake <-chan struct{}
	if interruptible {
		wake = k.wakeCh
	}
	select {
	case <-timer.C():
		return true
	case <-wake:
		return false
	case <-k.stopCh:
		return false
	}
}

func (k *Kernel) wallTickLocked() Tick {
	if k.cfg.virtual {
		return k.now
	}
	return k.Ticks(k.cfg.clk.Since(k.epoch))
}

// advanceLocked moves time forward to `to` and readies every Blocked task that is due.
func (k *Kernel) advanceLocked(to Tick) {
	if to <= k.now {
		return
	}
	k.now = to
	for _, t := range k.tasks {
		if t.state == StateBlocked && t.wakeAt <= k.now {
			t.wakeAt = 0
			k.makeReadyLocked(t)
		}
	}
}

// pickLocked returns the highest-priority Ready task; FIFO within a priority.
func (k *Kernel) pickLocked() *taskRuntime {
	var best *taskRuntime
	for _, t := range k.tasks {
		if t.state != StateReady {
			continue
		}
		if best == nil || t.prio > best.prio || (t.prio == best.prio && t.readySeq < best.readySeq) {
			best = t
		}
	}
	return best
}

// preemptsLocked reports whether the running task t must give up the token at this tick.
func (k *Kernel) preemptsLocked(t *taskRuntime) bool {
	if t.suspendPending {
		return true
	}
	for _, o := range k.tasks {
		if o.state == StateReady && o.prio > t.prio {
			return true
		}
	}
	return false
}

func (k *Kernel) nextWakeLocked() (Tick, bool) {
	var (
		next Tick
		ok   bool
	)
	for _, t := range k.tasks {
		if t.state != StateBlocked {
			continue
		}
		if !ok || t.wakeAt < next {
			next, ok = t.wakeAt, true
		}
	}
	return next, ok
}

func (k *Kernel) allDeletedLocked() bool {
	for _, t := range k.tasks {
		if t.state != StateDeleted {
			return false
		}
	}
	return true
}

func (k *Kernel) makeReadyLocked(t *taskRuntime) {
	k.seq++
	t.readySeq = k.seq
	k.setStateLocked(t, StateReady)
}

func (k *Kernel) setStateLocked(t *taskRuntime, s State) {
	if t.state == s {
		return
	}
	if k.cfg.onStateChange != nil {
		k.events = append(k.events, StateChange{Name: t.name, From: t.state, To: s, Tick: k.now})
	}
	t.state = s
}

// signalWake nudges an idle loop after an external Resume.
func (k *Kernel) signalWake() {
	select {
	case k.wakeCh <- struct{}{}:
	default:
	}
}

// unlock releases k.mu and then delivers pending state change hooks.
func (k *Kernel) unlock() {
	events := k.events
	k.events = nil
	k.mu.Unlock()
	for _, ev := range events {
		callHookNoPanic(k.cfg.onStateChange, ev)
	}
}
