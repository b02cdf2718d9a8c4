package scheduler

import (
	"context"
	"fmt"

	"github.com/viant/kernsim/service/allocator"
)

// Task is the handle a running entry uses to talk to the scheduler.  Its
// methods must be called from the entry's own goroutine while the task
// holds control.
type Task struct {
	service *Service
	block   *ControlBlock
}

func (t *Task) ID() TaskID {
	return t.block.ID
}

func (t *Task) Name() string {
	return t.block.Name
}

// Stack returns the pages allocated for the task at spawn.
func (t *Task) Stack() allocator.PageRun {
	return t.block.Stack
}

// Context returns the context of the RunUntilIdle call dispatching the task.
func (t *Task) Context() context.Context {
	return t.service.ctx
}

func (t *Task) running() error {
	if t.service.current != t.block {
		return fmt.Errorf("%w: task %v is %s", ErrNotRunning, t.block.ID, t.block.State)
	}
	return nil
}

// Yield moves the task to the tail of the ready queue and returns once it is
// dispatched again.
func (t *Task) Yield() error {
	if err := t.running(); err != nil {
		return err
	}
	t.block.context.park(signalYield)
	return nil
}

// Block suspends the task until another task or the harness unblocks it.
func (t *Task) Block() error {
	if err := t.running(); err != nil {
		return err
	}
	t.block.context.park(signalBlock)
	return nil
}

// Unblock makes a blocked task READY.
func (t *Task) Unblock(id TaskID) error {
	if err := t.running(); err != nil {
		return err
	}
	return t.service.Unblock(t.service.ctx, id)
}

// Spawn creates a new task behind every task already READY.
func (t *Task) Spawn(entry Entry, options ...SpawnOption) (TaskID, error) {
	if err := t.running(); err != nil {
		return 0, err
	}
	return t.service.Spawn(t.service.ctx, entry, options...)
}

// Allocate reserves count pages owned by the task.  Runs still owned when
// the task finishes are freed with its stack.
func (t *Task) Allocate(count int) (allocator.PageRun, error) {
	if err := t.running(); err != nil {
		return allocator.PageRun{}, err
	}
	run, err := t.service.allocator.Allocate(count)
	if err != nil {
		return run, err
	}
	t.block.Owned = append(t.block.Owned, run)
	return run, nil
}

// Free returns run to the allocator.  Runs may be any part of what the task
// allocated.  Stacks and pages owned by other tasks are refused with
// ErrNotOwned; the scheduler frees those when their task finishes.
func (t *Task) Free(run allocator.PageRun) error {
	if err := t.running(); err != nil {
		return err
	}
	if owner := t.service.claimant(t.block, run); owner != nil {
		return fmt.Errorf("%w: %v belongs to task %v (%s)", ErrNotOwned, run, owner.ID, owner.Name)
	}
	if err := t.service.allocator.Free(run); err != nil {
		return err
	}
	t.block.release(run)
	return nil
}

// Bytes returns the memory of a live run.
func (t *Task) Bytes(run allocator.PageRun) ([]byte, error) {
	return t.service.allocator.Bytes(run)
}

// WriteLine appends text to the kernel console.
func (t *Task) WriteLine(text string) error {
	if t.service.console == nil {
		return nil
	}
	return t.service.console.WriteLine(text)
}
