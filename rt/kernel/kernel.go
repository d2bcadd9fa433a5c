package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type kernelState int

const (
	kernelNotStarted kernelState = iota
	kernelRunning
	kernelStopping
	kernelStopped
)

// Kernel owns the task registry, the tick counter and the run token.
//
// It is safe for concurrent use. Use New to create one.
type Kernel struct {
	cfg config

	mu       sync.Mutex
	state    kernelState
	tasks    []*taskRuntime
	names    map[string]*taskRuntime // normalized name -> task (non-empty only)
	heapUsed int
	now      Tick
	limit    Tick // RunFor horizon, when bounded
	bounded  bool
	seq      uint64 // ready queue order; lower runs first within a priority
	current  *taskRuntime
	epoch    time.Time
	events   []StateChange // pending hook calls, flushed by unlock
	haltErr  error

	yieldCh  chan struct{} // running task -> loop: token returned
	wakeCh   chan struct{} // external Resume -> idle loop
	stopCh   chan struct{} // closed once stopping begins
	doneCh   chan struct{} // closed once every goroutine exited
	stopOnce sync.Once

	wg sync.WaitGroup // task goroutines
}

// New creates a new Kernel.
//
// Invalid options (tick rate 0, max priorities out of range) panic.
func New(opts ...Option) *Kernel {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.tickRate == 0 {
		panic("kernel: WithTickRate(0) is invalid (must be > 0)")
	}
	if cfg.maxPriorities < 1 || cfg.maxPriorities > 256 {
		panic(fmt.Sprintf("kernel: WithMaxPriorities(%d) is invalid (must be in [1, 256])", cfg.maxPriorities))
	}
	if cfg.heapWords < 0 {
		panic(fmt.Sprintf("kernel: WithHeapWords(%d) is invalid (must be >= 0)", cfg.heapWords))
	}
	return &Kernel{
		cfg:     cfg,
		names:   make(map[string]*taskRuntime),
		yieldCh: make(chan struct{}, 1),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Create registers a task and returns its handle.
//
// stackDepth is in words and is charged against the heap budget (WithHeapWords).
// Create must be called before Start; afterwards it returns ErrAlreadyStarted.
func (k *Kernel) Create(fn Func, name string, stackDepth int, prio Priority) (Handle, error) {
	if fn == nil {
		panic("kernel: Create called with nil Func")
	}
	name = normalizeName(name)
	if err := validateName(name); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	if int(prio) >= k.cfg.maxPriorities {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidPriority, prio, k.cfg.maxPriorities-1)
	}
	if stackDepth < MinimalStackDepth {
		return nil, fmt.Errorf("%w: %d words (min %d)", ErrStackTooSmall, stackDepth, MinimalStackDepth)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != kernelNotStarted {
		return nil, ErrAlreadyStarted
	}
	if name != "" {
		if _, exists := k.names[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}
	if k.cfg.heapWords > 0 && k.heapUsed+stackDepth > k.cfg.heapWords {
		return nil, fmt.Errorf("%w: task %q needs %d words, %d of %d free",
			ErrNoMemory, name, stackDepth, k.cfg.heapWords-k.heapUsed, k.cfg.heapWords)
	}
	k.heapUsed += stackDepth

	t := &taskRuntime{
		k:          k,
		fn:         fn,
		name:       name,
		prio:       prio,
		stackDepth: stackDepth,
		state:      StateNotStarted,
		runCh:      make(chan struct{}, 1),
	}
	k.tasks = append(k.tasks, t)
	if name != "" {
		k.names[name] = t
	}
	return t, nil
}

// MustCreate is like Create but panics on error.
//
// It is intended for initialization-time wiring where an error indicates a programming/configuration
// mistake.
func (k *Kernel) MustCreate(fn Func, name string, stackDepth int, prio Priority) Handle {
	h, err := k.Create(fn, name, stackDepth, prio)
	if err != nil {
		panic(err)
	}
	return h
}

// Start starts the scheduler and returns immediately.
//
// The kernel runs until ctx is done, Shutdown is called, or it halts because every task
// function returned. Start is not idempotent: it returns ErrAlreadyStarted the second time.
// If ctx is nil, it is treated as context.Background().
func (k *Kernel) Start(ctx context.Context) error {
	return k.start(ctx, 0, false)
}

// Run is Start followed by Wait.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.Start(ctx); err != nil {
		return err
	}
	return k.Wait()
}

// RunFor runs the kernel until d of kernel time has elapsed, then stops it and waits for
// every task to exit. Tasks due exactly at the horizon do not run.
//
// With WithVirtualTime, RunFor returns as soon as the tasks are done with the horizon.
func (k *Kernel) RunFor(ctx context.Context, d time.Duration) error {
	if err := k.start(ctx, k.Ticks(d), true); err != nil {
		return err
	}
	return k.Wait()
}

func (k *Kernel) start(ctx context.Context, limit Tick, bounded bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	k.mu.Lock()
	if k.state != kernelNotStarted {
		k.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(k.tasks) == 0 {
		k.mu.Unlock()
		return ErrNoTasks
	}
	k.state = kernelRunning
	k.limit, k.bounded = limit, bounded
	k.epoch = k.cfg.clk.Now()
	for _, t := range k.tasks {
		// Tasks suspended before Start stay suspended.
		if t.state == StateNotStarted {
			k.makeReadyLocked(t)
		}
	}
	tasks := append([]*taskRuntime(nil), k.tasks...)
	k.unlock()

	for _, t := range tasks {
		k.wg.Add(1)
		go t.main()
	}
	go func() {
		select {
		case <-ctx.Done():
			k.requestStop()
		case <-k.doneCh:
		}
	}()
	go func() {
		k.halt(k.loop(limit, bounded))
	}()
	return nil
}

// Wait waits until the kernel fully stops and returns the halt reason.
//
// The halt reason is nil when the kernel was stopped by ctx, Shutdown, or the RunFor
// horizon. If Start was never called, it returns ErrNotStarted.
func (k *Kernel) Wait() error {
	k.mu.Lock()
	st := k.state
	k.mu.Unlock()
	if st == kernelNotStarted {
		return ErrNotStarted
	}
	<-k.doneCh

	k.mu.Lock()
	defer k.mu.Unlock()
	return k.haltErr
}

// Shutdown stops scheduling, releases every blocked task with ErrStopped, and waits for
// all task goroutines to exit.
//
// Shutdown is safe to call multiple times, and without a prior Start.
// If ctx is nil, it is treated as context.Background().
func (k *Kernel) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	k.mu.Lock()
	if k.state == kernelNotStarted {
		k.state = kernelStopped
		k.mu.Unlock()
		k.stopOnce.Do(func() { close(k.stopCh) })
		close(k.doneCh)
		return nil
	}
	k.mu.Unlock()

	k.requestStop()
	select {
	case <-k.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kernel) requestStop() {
	k.stopOnce.Do(func() {
		k.mu.Lock()
		if k.state == kernelRunning {
			k.state = kernelStopping
		}
		k.mu.Unlock()
		close(k.stopCh)
	})
}

func (k *Kernel) halt(err error) {
	k.requestStop()
	k.wg.Wait()

	k.mu.Lock()
	k.state = kernelStopped
	k.haltErr = err
	k.current = nil
	k.mu.Unlock()
	close(k.doneCh)
}

// Lookup finds a task handle by name.
//
// Name is normalized by strings.TrimSpace. Empty names are not indexed and always return (nil, false).
func (k *Kernel) Lookup(name string) (Handle, bool) {
	if k == nil {
		return nil, false
	}
	name = normalizeName(name)
	if name == "" {
		return nil, false
	}
	k.mu.Lock()
	t, ok := k.names[name]
	k.mu.Unlock()
	if !ok {
		return nil, false
	}
	return t, true
}

// Snapshot returns a point-in-time view of all tasks, in creation order.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := Snapshot{Now: k.now, Tasks: make([]Status, 0, len(k.tasks))}
	for _, t := range k.tasks {
		out.Tasks = append(out.Tasks, t.statusLocked())
	}
	return out
}

// Now returns the current tick count.
func (k *Kernel) Now() Tick {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.now
}

// TickRate returns the tick rate in Hz.
func (k *Kernel) TickRate() uint32 { return k.cfg.tickRate }

// Ticks converts d to ticks (truncating). Negative durations are 0 ticks.
func (k *Kernel) Ticks(d time.Duration) Tick {
	if d <= 0 {
		return 0
	}
	rate := uint64(k.cfg.tickRate)
	secs := uint64(d / time.Second)
	rem := uint64(d % time.Second)
	return Tick(secs*rate + rem*rate/uint64(time.Second))
}

// Duration converts ticks to a duration.
func (k *Kernel) Duration(t Tick) time.Duration {
	rate := Tick(k.cfg.tickRate)
	secs := t / rate
	rem := t % rate
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(rate)
}
