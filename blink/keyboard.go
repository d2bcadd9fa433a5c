package blink

import (
	"go.uber.org/zap"

	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// Keyboard returns a control task that polls Input once per Period.
//
// With a Target it suspends or resumes the target on every activation; otherwise it
// toggles Output. It returns only when the kernel stops.
func Keyboard(p *Params) kernel.Func {
	cfg := p.clone("Keyboard")
	if cfg.Input == nil {
		panic("blink: Keyboard requires an Input")
	}
	if cfg.Target == nil && cfg.Output == nil {
		panic("blink: Keyboard requires a Target or an Output")
	}
	if cfg.Target == nil {
		return togglePerEdge(cfg)
	}
	return controlPerEdge(cfg)
}

func togglePerEdge(cfg Params) kernel.Func {
	return func(sys kernel.Sys) error {
		log := cfg.Logger.With(zap.String("task", sys.Self().Name()))
		for {
			if cfg.Input.HasActivated() {
				cfg.Output.Toggle()
				log.Debug("output toggled on activation", zap.Uint64("tick", uint64(sys.Now())))
			}
			if err := sys.Delay(cfg.Period); err != nil {
				return err
			}
		}
	}
}

func controlPerEdge(cfg Params) kernel.Func {
	return func(sys kernel.Sys) error {
		log := cfg.Logger.With(
			zap.String("task", sys.Self().Name()),
			zap.String("target", cfg.Target.Name()),
		)
		var snapshot kernel.State
		if cfg.StatePolicy == SnapshotOnce {
			snapshot = cfg.Target.State()
			log.Debug("target state captured", zap.Stringer("state", snapshot))
		}
		for {
			if cfg.Input.HasActivated() {
				observed := snapshot
				if cfg.StatePolicy != SnapshotOnce {
					observed = cfg.Target.State()
				}
				control(cfg.Target, observed, sys.Now(), log)
			}
			if err := sys.Delay(cfg.Period); err != nil {
				return err
			}
		}
	}
}

// control applies one activation to target, given its observed state.
func control(target kernel.Handle, observed kernel.State, now kernel.Tick, log *zap.Logger) {
	switch observed {
	case kernel.StateSuspended:
		target.Resume()
		log.Info("target resumed", zap.Uint64("tick", uint64(now)))
	case kernel.StateReady, kernel.StateRunning, kernel.StateBlocked:
		target.Suspend()
		log.Info("target suspended",
			zap.Uint64("tick", uint64(now)),
			zap.Stringer("observed", observed),
		)
	default:
		log.Warn("activation ignored", zap.Stringer("observed", observed))
	}
}
