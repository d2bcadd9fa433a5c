package rtblink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/evan-idocoding/rtblink/blink"
	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/config"
	"github.com/evan-idocoding/rtblink/ops"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// SystemSpec describes what NewSystem assembles. Every field is optional.
type SystemSpec struct {
	// Config is the validated configuration. Nil means config.Default().
	Config *config.Config

	// Board provides the pins named by the task table. Nil creates a board whose LED
	// changes are logged at debug level.
	Board *board.Board

	// Logger receives kernel, task and ops logs. Nil disables logging.
	Logger *zap.Logger
	// LogLevel, when set, is exposed on the ops /loglevel endpoint.
	LogLevel *zap.AtomicLevel

	// Clock paces wall-clock kernels. Nil means the real clock.
	Clock clock.Clock

	// Signals controls whether Run listens for OS signals and shuts down on them.
	//
	// If Disable is false and Signals is empty, a small default set is used:
	//   - Unix: SIGINT + SIGTERM
	//   - Non-Unix: os.Interrupt
	Signals SignalSpec

	// ShutdownTimeout bounds the ops server and kernel shutdown.
	//
	// <= 0 means the default (10s).
	ShutdownTimeout time.Duration
}

// SignalSpec selects the OS signals that make Run shut down.
type SignalSpec struct {
	Disable bool
	Signals []os.Signal
}

// TaskInfo is one row of the resolved task table.
type TaskInfo struct {
	Name        string
	Kind        string
	Priority    kernel.Priority
	StackDepth  int
	Period      time.Duration
	Output      string
	Input       string
	Target      string
	StatePolicy blink.StatePolicy
}

// System is the assembled demo: a board, a kernel with one task per configured row, and
// an optional ops HTTP server.
type System struct {
	Kernel *kernel.Kernel
	Board  *board.Board
	// OpsServer is nil unless ops is enabled.
	OpsServer *http.Server

	log             *zap.Logger
	signals         SignalSpec
	shutdownTimeout time.Duration
	tasks           []TaskInfo

	mu        sync.Mutex
	started   bool
	startCtx  context.Context
	startStop context.CancelFunc
	stopping  bool
	listener  net.Listener
	haltErr   error

	primaryErr error

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error

	doneCh  chan struct{}
	waitErr error
}

// NewSystem builds the board, the kernel and one task per configured row, then resolves
// every keyboard target by name. Any configuration error aborts assembly; nothing is
// started.
func NewSystem(spec SystemSpec) (*System, error) {
	cfg := spec.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := spec.Logger
	if log == nil {
		log = zap.NewNop()
	}

	b := spec.Board
	if b == nil {
		ledLog := log.Named("board")
		b = board.New(board.WithOnOutputChange(func(ev board.OutputEvent) {
			ledLog.Debug("led changed",
				zap.String("led", ev.Name),
				zap.Bool("on", ev.Level),
				zap.Uint64("toggles", ev.Toggles),
			)
		}))
	}

	k := kernel.New(kernelOptions(cfg.Kernel, spec.Clock, log.Named("kernel"))...)
	s := &System{
		Kernel:          k,
		Board:           b,
		log:             log,
		signals:         spec.Signals,
		shutdownTimeout: resolveDuration(spec.ShutdownTimeout, 10*time.Second),
		shutdownCh:      make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	prios := config.AssignPriorities(cfg.Tasks, cfg.Kernel.MaxPriorities)
	params := make([]blink.Params, len(cfg.Tasks))
	bodies := make([]kernel.Func, len(cfg.Tasks))
	s.tasks = make([]TaskInfo, len(cfg.Tasks))

	// 1) create every task; bodies are bound once targets are known.
	for i, tc := range cfg.Tasks {
		policy, _ := blink.ParseStatePolicy(tc.StatePolicy)
		p := blink.Params{
			Period:      tc.Period(),
			StatePolicy: policy,
			Logger:      log.Named("task").With(zap.String("task", tc.Name)),
		}
		if tc.Output != "" {
			out, ok := b.Output(tc.Output)
			if !ok {
				return nil, fmt.Errorf("%w: task %q output %q", ErrUnknownPin, tc.Name, tc.Output)
			}
			p.Output = out
		}
		if tc.Input != "" {
			in, ok := b.Input(tc.Input)
			if !ok {
				return nil, fmt.Errorf("%w: task %q input %q", ErrUnknownPin, tc.Name, tc.Input)
			}
			p.Input = in
		}
		params[i] = p

		i := i
		body := func(sys kernel.Sys) error { return bodies[i](sys) }
		if _, err := k.Create(body, tc.Name, tc.Stack(), prios[i]); err != nil {
			return nil, fmt.Errorf("rtblink: create task %q: %w", tc.Name, err)
		}
		s.tasks[i] = TaskInfo{
			Name:        tc.Name,
			Kind:        tc.Kind,
			Priority:    prios[i],
			StackDepth:  tc.Stack(),
			Period:      tc.Period(),
			Output:      tc.Output,
			Input:       tc.Input,
			Target:      tc.Target,
			StatePolicy: policy,
		}
	}

	// 2) resolve targets, then bind bodies.
	for i, tc := range cfg.Tasks {
		if tc.Target != "" {
			h, ok := k.Lookup(tc.Target)
			if !ok {
				return nil, fmt.Errorf("%w: task %q targets %q", ErrUnknownTarget, tc.Name, tc.Target)
			}
			params[i].Target = h
		}
		switch tc.Kind {
		case config.KindBlink:
			bodies[i] = blink.Blinking(&params[i])
		case config.KindBlinkUntil:
			bodies[i] = blink.BlinkingUntil(&params[i])
		case config.KindKeyboard:
			bodies[i] = blink.Keyboard(&params[i])
		}
	}

	if cfg.Ops.Enable {
		h := ops.NewRouter(ops.RouterConfig{
			Kernel:       k,
			Board:        b,
			LogLevel:     spec.LogLevel,
			Logger:       log.Named("ops"),
			ControlNames: cfg.Ops.ControlTasks,
			Tokens:       cfg.Ops.Tokens,
		})
		s.OpsServer = newHTTPServerWithDefaults(cfg.Ops.Listen, h)
	}
	return s, nil
}

func kernelOptions(c config.KernelConfig, clk clock.Clock, log *zap.Logger) []kernel.Option {
	opts := []kernel.Option{
		kernel.WithTickRate(c.TickRateHz),
		kernel.WithMaxPriorities(c.MaxPriorities),
		kernel.WithHeapWords(c.HeapWords),
		kernel.WithErrorHandler(func(info kernel.ErrorInfo) {
			log.Error("task exited with error", zap.String("task", info.Name), zap.Error(info.Err))
		}),
		kernel.WithPanicHandler(func(info kernel.PanicInfo) {
			log.Error("task panicked",
				zap.String("task", info.Name),
				zap.Any("panic", info.Value),
				zap.ByteString("stack", info.Stack),
			)
		}),
		kernel.WithOnStateChange(func(ev kernel.StateChange) {
			if ce := log.Check(zap.DebugLevel, "task state"); ce != nil {
				ce.Write(
					zap.String("task", ev.Name),
					zap.Stringer("from", ev.From),
					zap.Stringer("to", ev.To),
					zap.Uint64("tick", uint64(ev.Tick)),
				)
			}
		}),
	}
	if c.Virtual {
		opts = append(opts, kernel.WithVirtualTime())
	}
	if clk != nil {
		opts = append(opts, kernel.WithClock(clk))
	}
	return opts
}

// Tasks returns the resolved task table in configuration order.
func (s *System) Tasks() []TaskInfo {
	return append([]TaskInfo(nil), s.tasks...)
}

// OpsAddr returns the bound ops listener address, or "" when ops is disabled or not
// started.
func (s *System) OpsAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HaltErr returns why the kernel halted on its own (for example every task returned), or
// nil while it runs or after a requested stop.
func (s *System) HaltErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltErr
}

// Run starts the system and blocks until ctx is done, a configured signal arrives, or
// Shutdown is called.
//
// A kernel that halts on its own is logged and does not end Run: the system stays up
// (ops included) until one of the above happens.
func (s *System) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	sigCh, stopSignals := s.runSignalWatcher()
	defer stopSignals()

	select {
	case <-s.doneCh:
		return s.Wait()
	case <-ctx.Done():
		s.recordPrimary(ctx.Err())
		_ = s.Shutdown(context.Background())
		return s.Wait()
	case sig := <-sigCh:
		s.log.Info("signal received, shutting down", zap.Stringer("signal", sig))
		_ = s.Shutdown(context.Background())
		return s.Wait()
	}
}

// Start starts the ops server (if enabled) and the kernel. It is NOT idempotent.
func (s *System) Start(ctx context.Context) error {
	if err := s.markStarted(ctx); err != nil {
		return err
	}

	if s.OpsServer != nil {
		if err := s.startOpsServer(); err != nil {
			s.recordPrimary(err)
			s.initiateShutdown()
			return err
		}
	}
	if err := s.Kernel.Start(s.startCtx); err != nil {
		err = fmt.Errorf("rtblink: start kernel: %w", err)
		s.recordPrimary(err)
		s.initiateShutdown()
		return err
	}
	s.log.Info("system started", zap.Int("tasks", len(s.tasks)), zap.String("ops", s.OpsAddr()))
	go s.watchKernel()
	return nil
}

// RunFor runs the kernel for d of kernel time without the ops server, then shuts the
// system down. It returns the kernel halt reason (nil when the horizon was reached).
func (s *System) RunFor(ctx context.Context, d time.Duration) error {
	if err := s.markStarted(ctx); err != nil {
		return err
	}
	err := s.Kernel.RunFor(s.startCtx, d)
	if err != nil {
		s.mu.Lock()
		s.haltErr = err
		s.mu.Unlock()
	}
	s.initiateShutdown()
	<-s.shutdownCh
	return err
}

// Wait waits until the system fully stops.
//
// It is idempotent. If Start was never called, it returns ErrNotStarted.
func (s *System) Wait() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	ch := s.doneCh
	s.mu.Unlock()

	<-ch

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// Shutdown stops the ops server and the kernel. It is idempotent.
//
// If Start was never called, Shutdown returns nil.
func (s *System) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.initiateShutdown()

	select {
	case <-s.shutdownCh:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *System) markStarted(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.startCtx, s.startStop = context.WithCancel(ctx)
	return nil
}

func (s *System) watchKernel() {
	err := s.Kernel.Wait()
	s.mu.Lock()
	stopping := s.stopping
	if err != nil {
		s.haltErr = err
	}
	s.mu.Unlock()
	if err != nil && !stopping {
		s.log.Error("kernel halted, idling until shutdown", zap.Error(err))
	}
}

func (s *System) startOpsServer() error {
	addr := s.OpsServer.Addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rtblink: ops listen %q: %w", addr, err)
	}
	// Record the listener first so shutdown can close it even before Serve runs.
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		err := s.OpsServer.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()
		if !stopping {
			// The blinkers keep running; only the operator surface is gone.
			s.log.Error("ops server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *System) recordPrimary(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.primaryErr == nil {
		s.primaryErr = err
	}
	s.mu.Unlock()
}

func (s *System) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		go s.doShutdown()
	})
}

func (s *System) doShutdown() {
	s.mu.Lock()
	stop := s.startStop
	s.stopping = true
	ln := s.listener
	s.mu.Unlock()
	if stop != nil {
		stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	// 1) ops server first, so no request races the stopping kernel.
	if s.OpsServer != nil && ln != nil {
		if err := s.OpsServer.Shutdown(ctx); err != nil {
			_ = s.OpsServer.Close()
			errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
		}
		_ = ln.Close()
	}

	// 2) kernel
	if err := s.Kernel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("kernel shutdown: %w", err))
	}

	shutdownErr := errors.Join(errs...)

	s.mu.Lock()
	s.shutdownErr = shutdownErr
	s.waitErr = errors.Join(s.primaryErr, shutdownErr)
	s.mu.Unlock()

	s.log.Info("system stopped", zap.Uint64("tick", uint64(s.Kernel.Now())))
	close(s.shutdownCh)
	close(s.doneCh)
}

func (s *System) runSignalWatcher() (<-chan os.Signal, func()) {
	if s.signals.Disable {
		return nil, func() {}
	}
	sigs := s.signals.Signals
	if len(sigs) == 0 {
		sigs = defaultSignals()
	}
	if len(sigs) == 0 {
		return nil, func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	return ch, func() { signal.Stop(ch) }
}

func resolveDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Conservative timeouts for the ops server.
const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

func newHTTPServerWithDefaults(addr string, handler http.Handler) *http.Server {
	if strings.TrimSpace(addr) == "" {
		panic("rtblink: newHTTPServerWithDefaults: empty addr")
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}
