package blink

import (
	"go.uber.org/zap"

	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// Blinking returns a free-running blinker: toggle, then Delay(Period), forever.
//
// It returns only when the kernel stops.
func Blinking(p *Params) kernel.Func {
	cfg := p.clone("Blinking")
	if cfg.Output == nil {
		panic("blink: Blinking requires an Output")
	}
	return func(sys kernel.Sys) error {
		cfg.Logger.Debug("blinker started",
			zap.String("task", sys.Self().Name()),
			zap.Duration("period", cfg.Period),
		)
		for {
			cfg.Output.Toggle()
			if err := sys.Delay(cfg.Period); err != nil {
				return err
			}
		}
	}
}

// BlinkingUntil returns a deadline-corrected blinker: toggle, then DelayUntil the next
// absolute deadline, forever.
//
// It returns only when the kernel stops.
func BlinkingUntil(p *Params) kernel.Func {
	cfg := p.clone("BlinkingUntil")
	if cfg.Output == nil {
		panic("blink: BlinkingUntil requires an Output")
	}
	return func(sys kernel.Sys) error {
		last := sys.Now()
		cfg.Logger.Debug("deadline blinker started",
			zap.String("task", sys.Self().Name()),
			zap.Duration("period", cfg.Period),
			zap.Uint64("origin_tick", uint64(last)),
		)
		for {
			cfg.Output.Toggle()
			if err := sys.DelayUntil(&last, cfg.Period); err != nil {
				return err
			}
		}
	}
}
