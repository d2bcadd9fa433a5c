package blink

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// StatePolicy selects when a control task observes its target's run state.
type StatePolicy int

const (
	// QueryPerEdge reads the target state on every activation.
	QueryPerEdge StatePolicy = iota
	// SnapshotOnce reads the target state once, before the polling loop, and keeps using it.
	SnapshotOnce
)

func (p StatePolicy) String() string {
	switch p {
	case QueryPerEdge:
		return "query-per-edge"
	case SnapshotOnce:
		return "snapshot-once"
	default:
		return fmt.Sprintf("StatePolicy(%d)", int(p))
	}
}

// ParseStatePolicy parses the String form of a StatePolicy.
// The empty string means QueryPerEdge.
func ParseStatePolicy(s string) (StatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "query-per-edge":
		return QueryPerEdge, nil
	case "snapshot-once":
		return SnapshotOnce, nil
	default:
		return 0, fmt.Errorf("blink: unknown state policy %q (want query-per-edge or snapshot-once)", s)
	}
}

// Params binds a task instance to its peripherals and timing.
type Params struct {
	// Output is the line this task drives. Optional for control tasks with a Target.
	Output board.DigitalOutput
	// Period is the blink period, or the poll period of a keyboard task. Must be > 0.
	Period time.Duration
	// Input is the line a keyboard task polls.
	Input board.DigitalInput
	// Target is the task a keyboard task suspends and resumes.
	Target kernel.Handle
	// StatePolicy applies to keyboard tasks with a Target.
	StatePolicy StatePolicy
	// Logger is optional. Nil disables logging.
	Logger *zap.Logger
}

func (p *Params) clone(fn string) Params {
	if p == nil {
		panic(fmt.Sprintf("blink: %s called with nil Params", fn))
	}
	c := *p
	if c.Period <= 0 {
		panic(fmt.Sprintf("blink: %s: Period must be > 0, got %v", fn, c.Period))
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
