// Package board provides the digital I/O collaborators used by the blink tasks and a
// simulated board with a fixed pin map: four LEDs and two push buttons.
//
// The simulated lines are safe for concurrent use: tasks toggle outputs and poll inputs
// while an operator (or a test) presses buttons from another goroutine.
package board

import "sync"

// DigitalOutput is a digital output line.
type DigitalOutput interface {
	// Toggle flips the logic level.
	Toggle()
}

// DigitalInput is a debounced, edge-detected digital input line.
type DigitalInput interface {
	// HasActivated reports a physical activation exactly once: it returns true at most
	// once per press, no matter how long the line stays active.
	HasActivated() bool
}

// Pin names of the simulated board.
const (
	PinLedRed      = "led_red"
	PinLedGreen    = "led_green"
	PinLedYellow   = "led_yellow"
	PinLedBlue     = "led_blue"
	PinButtonTest  = "button_test"
	PinButtonPower = "button_power"
)

// OutputEvent is passed to the WithOnOutputChange hook.
type OutputEvent struct {
	Name    string
	Level   bool
	Toggles uint64
}

type config struct {
	onOutputChange func(OutputEvent)
}

// Option configures a Board.
type Option func(*config)

// WithOnOutputChange sets a hook called after every output level change.
// It is called synchronously from the goroutine that changed the output.
func WithOnOutputChange(fn func(OutputEvent)) Option {
	return func(c *config) { c.onOutputChange = fn }
}

// Board is the simulated board: fixed outputs and inputs, addressable by pin name.
type Board struct {
	LedRed    *Output
	LedGreen  *Output
	LedYellow *Output
	LedBlue   *Output

	ButtonTest  *Input
	ButtonPower *Input

	outputs []*Output
	inputs  []*Input
}

// New creates the board with every output off and every button released.
func New(opts ...Option) *Board {
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	newOut := func(name string) *Output {
		return &Output{name: name, onChange: cfg.onOutputChange}
	}
	b := &Board{
		LedRed:      newOut(PinLedRed),
		LedGreen:    newOut(PinLedGreen),
		LedYellow:   newOut(PinLedYellow),
		LedBlue:     newOut(PinLedBlue),
		ButtonTest:  &Input{name: PinButtonTest},
		ButtonPower: &Input{name: PinButtonPower},
	}
	b.outputs = []*Output{b.LedRed, b.LedGreen, b.LedYellow, b.LedBlue}
	b.inputs = []*Input{b.ButtonTest, b.ButtonPower}
	return b
}

// Output finds an output by pin name.
func (b *Board) Output(name string) (*Output, bool) {
	for _, o := range b.outputs {
		if o.name == name {
			return o, true
		}
	}
	return nil, false
}

// Input finds an input by pin name.
func (b *Board) Input(name string) (*Input, bool) {
	for _, in := range b.inputs {
		if in.name == name {
			return in, true
		}
	}
	return nil, false
}

// Outputs returns every output in pin-map order.
func (b *Board) Outputs() []*Output { return append([]*Output(nil), b.outputs...) }

// Inputs returns every input in pin-map order.
func (b *Board) Inputs() []*Input { return append([]*Input(nil), b.inputs...) }

// Output is a simulated digital output.
type Output struct {
	name     string
	onChange func(OutputEvent)

	mu      sync.Mutex
	level   bool
	toggles uint64
}

// Name returns the pin name.
func (o *Output) Name() string { return o.name }

// Toggle flips the level.
func (o *Output) Toggle() {
	o.mu.Lock()
	o.level = !o.level
	o.toggles++
	ev := OutputEvent{Name: o.name, Level: o.level, Toggles: o.toggles}
	o.mu.Unlock()
	o.notify(ev)
}

// Set drives the output to level. Setting the current level is a no-op.
func (o *Output) Set(level bool) {
	o.mu.Lock()
	if o.level == level {
		o.mu.Unlock()
		return
	}
	o.level = level
	ev := OutputEvent{Name: o.name, Level: o.level, Toggles: o.toggles}
	o.mu.Unlock()
	o.notify(ev)
}

// Level returns the current level.
func (o *Output) Level() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// Toggles returns how many times Toggle was called.
func (o *Output) Toggles() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.toggles
}

func (o *Output) notify(ev OutputEvent) {
	if o.onChange != nil {
		o.onChange(ev)
	}
}

// Input is a simulated push button.
//
// Press latches one activation when the line goes from released to pressed; HasActivated
// consumes latched activations one at a time, so a press shorter than the polling period
// is never lost and a long press is reported once.
type Input struct {
	name string

	mu      sync.Mutex
	active  bool
	pending int
	presses uint64
}

// Name returns the pin name.
func (in *Input) Name() string { return in.name }

// Press drives the line active. Pressing an already pressed button is a no-op.
func (in *Input) Press() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active {
		return
	}
	in.active = true
	in.pending++
	in.presses++
}

// Release drives the line inactive.
func (in *Input) Release() {
	in.mu.Lock()
	in.active = false
	in.mu.Unlock()
}

// Click is Press followed by Release.
func (in *Input) Click() {
	in.Press()
	in.Release()
}

// IsActive reports the current line level.
func (in *Input) IsActive() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active
}

// HasActivated consumes one latched activation.
func (in *Input) HasActivated() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.pending == 0 {
		return false
	}
	in.pending--
	return true
}

// Presses returns the number of physical activations so far.
func (in *Input) Presses() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.presses
}
