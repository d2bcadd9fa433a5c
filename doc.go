// Package rtblink assembles the LED blink demo: a simulated board, a priority-preemptive
// tick kernel, and one task per row of the configured task table.
//
// The default table reproduces the demo board:
//   - red and green blink free-running every 500ms and 750ms
//   - yellow blinks deadline-corrected every 250ms
//   - blue toggles each time the test button is pressed
//   - the power button suspends and resumes the red blinker
//
// # Quick start
//
//	sys, err := rtblink.NewSystem(rtblink.SystemSpec{
//		Config: config.Default(),
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	return sys.Run(ctx)
//
// Run returns when ctx is done, on SIGINT/SIGTERM, or after Shutdown. If the kernel halts
// on its own, the error is logged and Run keeps waiting; the ops endpoint stays up so the
// halted state can still be inspected.
//
// RunFor runs a bounded horizon without the ops server. With kernel.virtual set it
// completes as fast as the tasks allow, which makes it the tool of choice for tests and for
// `rtblink run --for`.
//
// # Subpackages
//
//   - board: simulated LEDs and edge-latching buttons
//   - blink: the blinker and keyboard task bodies
//   - rt/kernel: the scheduler
//   - config: YAML/env configuration and priority assignment
//   - logging: zap logger construction
//   - ops: operator HTTP endpoints
package rtblink
