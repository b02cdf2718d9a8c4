package scheduler

import (
	"strconv"
	"time"

	"github.com/viant/kernsim/service/allocator"
)

// TaskID identifies a task.  Ids start at 1 and are never reused.
type TaskID int

func (id TaskID) String() string {
	return strconv.Itoa(int(id))
}

// State represents a task lifecycle state
type State string

const (
	StateReady    State = "ready"
	StateRunning  State = "running"
	StateBlocked  State = "blocked"
	StateFinished State = "finished"
)

// Entry is the body of a task.  Returning ends the task.
type Entry func(task *Task) error

// ControlBlock describes one task.
type ControlBlock struct {
	ID         TaskID              `json:"id" yaml:"id"`
	Name       string              `json:"name" yaml:"name"`
	State      State               `json:"state" yaml:"state"`
	Stack      allocator.PageRun   `json:"stack" yaml:"stack"`
	Owned      []allocator.PageRun `json:"owned,omitempty" yaml:"owned,omitempty"`
	Err        error               `json:"-" yaml:"-"`
	Dispatches int                 `json:"dispatches" yaml:"dispatches"`
	SpawnedAt  time.Time           `json:"spawnedAt" yaml:"spawnedAt"`

	context *coroutine
}

// Clone returns a copy that shares no slices with the live block.
func (c *ControlBlock) Clone() ControlBlock {
	ret := *c
	ret.Owned = append([]allocator.PageRun(nil), c.Owned...)
	ret.context = nil
	return ret
}

// release drops the pages of run from the owned runs, keeping the parts of a
// partially freed run on either side of it.
func (c *ControlBlock) release(run allocator.PageRun) {
	var owned []allocator.PageRun
	for _, r := range c.Owned {
		if !r.Overlaps(run) {
			owned = append(owned, r)
			continue
		}
		if run.Start > r.Start {
			owned = append(owned, allocator.PageRun{Start: r.Start, Count: run.Start - r.Start})
		}
		if run.End() < r.End() {
			owned = append(owned, allocator.PageRun{Start: run.End(), Count: r.End() - run.End()})
		}
	}
	c.Owned = owned
}

// Transition records a state change of one task.
type Transition struct {
	TaskID TaskID    `json:"taskID"`
	Name   string    `json:"name"`
	From   State     `json:"from,omitempty"`
	To     State     `json:"to"`
	Err    string    `json:"err,omitempty"`
	At     time.Time `json:"at"`
}
