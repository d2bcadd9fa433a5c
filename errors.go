package rtblink

import "errors"

var (
	// ErrAlreadyStarted indicates Start/Run/RunFor was called more than once.
	ErrAlreadyStarted = errors.New("rtblink: system already started")
	// ErrNotStarted indicates Wait was called before Start.
	ErrNotStarted = errors.New("rtblink: system not started")
	// ErrUnknownTarget is returned by NewSystem when a keyboard task targets a task name
	// that is not in the task table.
	ErrUnknownTarget = errors.New("rtblink: unknown target task")
	// ErrUnknownPin is returned by NewSystem when a task names a pin the board lacks.
	ErrUnknownPin = errors.New("rtblink: unknown pin")
)
