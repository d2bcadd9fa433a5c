// Package blink implements the demo's task functions: periodic LED blinkers and the
// button-driven control task.
//
// Every constructor takes a *Params built once at startup and returns a kernel.Func.
// Params are copied at construction and never written afterwards, so a Params value is
// owned by exactly one task.
//
// # Blinkers
//
// Blinking toggles its output and then sleeps for Period, relative to the moment the delay
// is issued. The cost of the toggle (and any scheduling latency) accumulates as drift:
// the observed interval is always >= Period.
//
// BlinkingUntil records the tick count once when it starts and then sleeps until absolute
// deadlines spaced Period apart. A late cycle does not shift the ones after it: the next
// deadline is already due, so the task catches up and the long-run average interval is
// exactly Period.
//
// # Keyboard
//
// Keyboard polls its input once per Period. The poll period doubles as the debounce
// interval. Each poll reads the input's activation flag exactly once. On an activation:
//
//   - with a Target, a Suspended target is resumed and a live target (ready, running or
//     blocked in a delay) is suspended;
//   - without a Target, the task toggles its own Output.
//
// StatePolicy selects when the target's state is observed: on every activation
// (QueryPerEdge, the default) or once before the polling loop starts (SnapshotOnce). With
// SnapshotOnce the decision never sees the effect of its own previous actions.
//
// Invalid parameters (nil output, non-positive period, keyboard without input) are
// programming errors and panic at construction.
package blink
