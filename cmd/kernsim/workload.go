package main

import (
	"context"
	"fmt"

	"github.com/viant/kernsim"
	"github.com/viant/kernsim/progress"
	"github.com/viant/kernsim/service/scheduler"
)

// workload is the demo: a sleeper that blocks until the last of Workers
// worker tasks wakes it.  Every worker step holds a scratch page across a
// yield.
type workload struct {
	Workers int
	Yields  int
}

func (w workload) run(ctx context.Context, kernel *kernsim.Service) (scheduler.Status, error) {
	if w.Workers <= 0 {
		return "", fmt.Errorf("workload needs at least one worker, got %d", w.Workers)
	}
	if err := w.spawn(ctx, kernel); err != nil {
		return "", err
	}
	status, err := kernel.RunUntilIdle(ctx)
	if err != nil {
		return status, err
	}
	if status == scheduler.StatusBlocked {
		return status, fmt.Errorf("workload stalled with blocked tasks")
	}
	return status, nil
}

func (w workload) spawn(ctx context.Context, kernel *kernsim.Service) error {
	sleeper, err := kernel.Spawn(ctx, func(task *scheduler.Task) error {
		if err := task.WriteLine(task.Name() + ": waiting"); err != nil {
			return err
		}
		if err := task.Block(); err != nil {
			return err
		}
		if tracker, ok := progress.FromContext(task.Context()); ok {
			return task.WriteLine(fmt.Sprintf("%s: woken after %d dispatches", task.Name(), tracker.Snapshot().Switches))
		}
		return task.WriteLine(task.Name() + ": woken")
	}, scheduler.WithName("sleeper"))
	if err != nil {
		return err
	}
	for i := 1; i <= w.Workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		if _, err = kernel.Spawn(ctx, w.worker(sleeper, i == w.Workers), scheduler.WithName(name)); err != nil {
			return fmt.Errorf("failed to spawn %s: %w", name, err)
		}
	}
	return nil
}

func (w workload) worker(sleeper scheduler.TaskID, wakes bool) scheduler.Entry {
	return func(task *scheduler.Task) error {
		for step := 0; step <= w.Yields; step++ {
			run, err := task.Allocate(1)
			if err != nil {
				return err
			}
			data, err := task.Bytes(run)
			if err != nil {
				return err
			}
			copy(data, task.Name())
			if err = task.WriteLine(fmt.Sprintf("%s: step %d on %v", task.Name(), step, run)); err != nil {
				return err
			}
			if step < w.Yields {
				if err = task.Yield(); err != nil {
					return err
				}
			}
			if err = task.Free(run); err != nil {
				return err
			}
		}
		if wakes {
			return task.Unblock(sleeper)
		}
		return nil
	}
}
