package kernel

import (
	"k8s.io/utils/clock"
)

type config struct {
	tickRate      uint32
	maxPriorities int
	heapWords     int

	virtual bool
	clk     clock.Clock

	onStateChange func(StateChange)
	onError       ErrorHandler
	onPanic       PanicHandler
}

func defaultConfig() config {
	return config{
		tickRate:      1000,
		maxPriorities: 5,
		clk:           clock.RealClock{},
	}
}

// Option configures a Kernel.
type Option func(*config)

// WithTickRate sets the tick rate in Hz. Default is 1000.
//
// If hz is 0, New panics (configuration error).
func WithTickRate(hz uint32) Option {
	return func(c *config) { c.tickRate = hz }
}

// WithMaxPriorities sets the number of priority levels; valid priorities are
// [0, n). Default is 5.
//
// If n is not in [1, 256], New panics (configuration error).
func WithMaxPriorities(n int) Option {
	return func(c *config) { c.maxPriorities = n }
}

// WithHeapWords sets the total stack budget in words shared by all tasks.
// Zero (default) means unlimited.
func WithHeapWords(words int) Option {
	return func(c *config) { c.heapWords = words }
}

// WithVirtualTime disables wall-clock pacing: time jumps to the next wake-up as soon as no
// task is Ready.
func WithVirtualTime() Option {
	return func(c *config) { c.virtual = true }
}

// WithClock sets the clock used for wall-clock pacing. Default is clock.RealClock.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// WithOnStateChange sets a hook to observe task state transitions.
//
// The hook is called synchronously after the kernel lock is released, possibly from
// several goroutines. It must be fast and must not block.
func WithOnStateChange(fn func(StateChange)) Option {
	return func(c *config) { c.onStateChange = fn }
}

// WithErrorHandler sets the error handler. If not set, errors are reported to stderr.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) { c.onError = h }
}

// WithPanicHandler sets the panic handler. If not set, panics are reported to stderr.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) { c.onPanic = h }
}
