package scheduler

import "errors"

var (
	// ErrTaskTableFull is returned by Spawn when every table slot is taken.
	ErrTaskTableFull = errors.New("task table full")

	// ErrUnknownTask is returned for ids that are not live in the table.
	ErrUnknownTask = errors.New("unknown task")

	// ErrNotBlocked is returned when unblocking a task that is not BLOCKED.
	ErrNotBlocked = errors.New("task not blocked")

	// ErrNotRunning is returned when a Task handle is used while its task
	// does not hold control.
	ErrNotRunning = errors.New("task not running")

	// ErrTaskPanic finishes a task whose entry panicked.
	ErrTaskPanic = errors.New("task panicked")

	// ErrClosed is returned by a scheduler that has been closed.
	ErrClosed = errors.New("scheduler closed")

	// ErrUnsupportedPolicy is returned for any policy but RoundRobin.
	ErrUnsupportedPolicy = errors.New("unsupported scheduling policy")

	// ErrNotOwned is returned when a task frees pages that belong to a task
	// stack or to another live task.  The allocator is left untouched.
	ErrNotOwned = errors.New("pages owned by another task")

	// ErrNilEntry is returned by Spawn without an entry function.
	ErrNilEntry = errors.New("task entry was nil")
)
