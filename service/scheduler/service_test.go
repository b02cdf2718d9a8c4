package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/kernsim/progress"
	"github.com/viant/kernsim/service/allocator"
	"github.com/viant/kernsim/service/console"
	"github.com/viant/kernsim/service/event"
	"github.com/viant/kernsim/service/messaging/memory"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestScheduler(t *testing.T, arenaPages int, config Config, options ...Option) (*Service, *allocator.Service) {
	t.Helper()
	pages, err := allocator.New(allocator.Config{ArenaPages: arenaPages, PageSize: 64}, allocator.WithLogger(quietLogger()))
	require.NoError(t, err)
	options = append([]Option{WithLogger(quietLogger())}, options...)
	srv, err := New(config, pages, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, pages
}

func testConfig(maxTasks int) Config {
	config := DefaultConfig()
	config.MaxTasks = maxTasks
	return config
}

// yielder records its name on every dispatch and yields the given number of
// times before returning.
func yielder(name string, yields int, trace *[]string) Entry {
	return func(task *Task) error {
		for i := 0; i < yields; i++ {
			*trace = append(*trace, name)
			if err := task.Yield(); err != nil {
				return err
			}
		}
		*trace = append(*trace, name)
		return nil
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		config      Config
		expect      error
		valid       bool
	}{
		{description: "default", config: DefaultConfig(), valid: true},
		{description: "no tasks", config: Config{MaxTasks: 0, StackPages: 1, Policy: RoundRobin}},
		{description: "no stack", config: Config{MaxTasks: 1, StackPages: 0, Policy: RoundRobin}},
		{description: "priority policy", config: Config{MaxTasks: 1, StackPages: 1, Policy: "priority"}, expect: ErrUnsupportedPolicy},
		{description: "empty policy", config: Config{MaxTasks: 1, StackPages: 1}, expect: ErrUnsupportedPolicy},
	}
	for _, testCase := range testCases {
		err := testCase.config.Validate()
		if testCase.valid {
			assert.NoError(t, err, testCase.description)
			continue
		}
		assert.Error(t, err, testCase.description)
		if testCase.expect != nil {
			assert.ErrorIs(t, err, testCase.expect, testCase.description)
		}
	}
}

func TestService_RoundRobin(t *testing.T) {
	tracker := progress.New("test", nil)
	srv, pages := newTestScheduler(t, 16, testConfig(4), WithProgress(tracker))
	ctx := context.Background()

	var trace []string
	for _, name := range []string{"A", "B", "C"} {
		_, err := srv.Spawn(ctx, yielder(name, 2, &trace), WithName(name))
		require.NoError(t, err)
	}
	assert.Equal(t, []TaskID{1, 2, 3}, srv.ReadyQueue())

	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)

	expect := []string{"A", "B", "C", "A", "B", "C", "A", "B", "C"}
	if diff := cmp.Diff(expect, trace); diff != "" {
		t.Errorf("RUNNING sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]TaskID{1, 2, 3, 1, 2, 3, 1, 2, 3}, srv.Dispatches()); diff != "" {
		t.Errorf("dispatch history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, srv.Len())
	assert.Equal(t, 16, pages.FreePageCount())

	snapshot := tracker.Snapshot()
	assert.Equal(t, 3, snapshot.SpawnedTasks)
	assert.Equal(t, 3, snapshot.FinishedTasks)
	assert.Equal(t, 9, snapshot.Switches)
	assert.Equal(t, 0, tracker.Snapshot().Live())
}

func TestService_RoundRobinIsReproducible(t *testing.T) {
	run := func() []TaskID {
		srv, _ := newTestScheduler(t, 32, testConfig(8))
		ctx := context.Background()
		var trace []string
		for i, yields := range []int{3, 0, 1, 2} {
			_, err := srv.Spawn(ctx, yielder(string(rune('A'+i)), yields, &trace))
			require.NoError(t, err)
		}
		_, err := srv.RunUntilIdle(ctx)
		require.NoError(t, err)
		return srv.Dispatches()
	}
	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
	assert.Equal(t, []TaskID{1, 2, 3, 4, 1, 3, 4, 1, 4, 1}, first)
}

func TestService_BlockUnblock(t *testing.T) {
	srv, _ := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()

	var trace []string
	a, err := srv.Spawn(ctx, func(task *Task) error {
		trace = append(trace, "A")
		if err := task.Block(); err != nil {
			return err
		}
		trace = append(trace, "A")
		return nil
	}, WithName("A"))
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, yielder("B", 0, &trace), WithName("B"))
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, yielder("C", 0, &trace), WithName("C"))
	require.NoError(t, err)

	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, status)
	assert.Equal(t, []string{"A", "B", "C"}, trace)

	blocked, err := srv.Lookup(a)
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, blocked.State)

	// D is READY before A is unblocked, so A runs after D
	_, err = srv.Spawn(ctx, yielder("D", 0, &trace), WithName("D"))
	require.NoError(t, err)
	require.NoError(t, srv.Unblock(ctx, a))
	assert.Equal(t, []TaskID{4, a}, srv.ReadyQueue())

	status, err = srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, []string{"A", "B", "C", "D", "A"}, trace)
}

func TestService_UnblockFromTask(t *testing.T) {
	srv, _ := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()

	var trace []string
	sleeper, err := srv.Spawn(ctx, func(task *Task) error {
		trace = append(trace, "sleep")
		if err := task.Block(); err != nil {
			return err
		}
		trace = append(trace, "wake")
		return nil
	})
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, func(task *Task) error {
		trace = append(trace, "worker")
		if err := task.Yield(); err != nil {
			return err
		}
		trace = append(trace, "unblock")
		return task.Unblock(sleeper)
	})
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, yielder("other", 1, &trace))
	require.NoError(t, err)

	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, []string{"sleep", "worker", "other", "unblock", "other", "wake"}, trace)
}

func TestService_UnblockErrors(t *testing.T) {
	srv, _ := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()
	ready, err := srv.Spawn(ctx, func(task *Task) error { return nil })
	require.NoError(t, err)

	testCases := []struct {
		description string
		id          TaskID
		expect      error
	}{
		{description: "ready task", id: ready, expect: ErrNotBlocked},
		{description: "unknown task", id: 42, expect: ErrUnknownTask},
	}
	for _, testCase := range testCases {
		assert.ErrorIs(t, srv.Unblock(ctx, testCase.id), testCase.expect, testCase.description)
	}

	_, err = srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Unblock(ctx, ready), ErrUnknownTask, "finished task")
}

func TestService_TaskTableFull(t *testing.T) {
	const maxTasks = 3
	srv, pages := newTestScheduler(t, 16, testConfig(maxTasks))
	ctx := context.Background()

	var trace []string
	for i := 0; i < maxTasks; i++ {
		_, err := srv.Spawn(ctx, yielder(string(rune('A'+i)), 1, &trace))
		require.NoError(t, err)
	}
	free := pages.FreePageCount()
	_, err := srv.Spawn(ctx, yielder("overflow", 0, &trace))
	assert.ErrorIs(t, err, ErrTaskTableFull)
	assert.Equal(t, free, pages.FreePageCount(), "a rejected spawn allocates nothing")
	assert.Equal(t, maxTasks, srv.Len())

	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, []string{"A", "B", "C", "A", "B", "C"}, trace)

	// finished slots are reclaimed but ids are not reused
	id, err := srv.Spawn(ctx, yielder("D", 0, &trace))
	require.NoError(t, err)
	assert.Equal(t, TaskID(maxTasks+1), id)
}

func TestService_SpawnOutOfMemory(t *testing.T) {
	config := testConfig(4)
	config.StackPages = 3
	srv, pages := newTestScheduler(t, 4, config)
	ctx := context.Background()

	_, err := srv.Spawn(ctx, func(task *Task) error { return nil })
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, func(task *Task) error { return nil })
	assert.ErrorIs(t, err, allocator.ErrOutOfMemory)
	assert.Equal(t, 1, srv.Len())
	assert.NoError(t, pages.Fault())

	_, err = srv.Spawn(ctx, func(task *Task) error { return nil }, WithStackPages(1))
	assert.NoError(t, err)
	_, err = srv.Spawn(ctx, nil)
	assert.ErrorIs(t, err, ErrNilEntry)
}

func TestService_PagesReleasedOnFinish(t *testing.T) {
	config := testConfig(4)
	config.StackPages = 2
	srv, pages := newTestScheduler(t, 8, config)
	ctx := context.Background()

	var stack allocator.PageRun
	_, err := srv.Spawn(ctx, func(task *Task) error {
		stack = task.Stack()
		data, err := task.Bytes(stack)
		if err != nil {
			return err
		}
		copy(data, "frame")
		kept, err := task.Allocate(2)
		if err != nil {
			return err
		}
		freed, err := task.Allocate(1)
		if err != nil {
			return err
		}
		if err = task.Free(freed); err != nil {
			return err
		}
		if err = task.Yield(); err != nil {
			return err
		}
		_, err = task.Bytes(kept)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 6, pages.FreePageCount())

	_, err = srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, pages.FreePageCount(), "stack and owned runs return to the allocator")
	assert.Equal(t, allocator.PageRun{Start: 0, Count: 2}, stack)
	assert.NoError(t, pages.Fault())
}

func TestService_TaskFailures(t *testing.T) {
	sink := console.NewMemory()
	tracker := progress.New("test", nil)
	srv, pages := newTestScheduler(t, 8, testConfig(4), WithConsole(sink), WithProgress(tracker))
	ctx := context.Background()

	_, err := srv.Spawn(ctx, func(task *Task) error { return errors.New("boom") }, WithName("failing"))
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, func(task *Task) error {
		if err := task.WriteLine("about to panic"); err != nil {
			return err
		}
		panic("bad pointer")
	}, WithName("panicking"))
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, func(task *Task) error {
		_, err := task.Allocate(100)
		return err
	}, WithName("greedy"))
	require.NoError(t, err)

	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err, "task failures do not halt the kernel")
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, 8, pages.FreePageCount())

	lines := sink.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "task 1 (failing) failed: boom", lines[0])
	assert.Equal(t, "about to panic", lines[1])
	assert.Contains(t, lines[2], ErrTaskPanic.Error())
	assert.Contains(t, lines[2], "bad pointer")
	assert.Contains(t, lines[3], allocator.ErrOutOfMemory.Error())
	assert.Equal(t, 3, tracker.Snapshot().FailedTasks)
}

func TestService_PartialFree(t *testing.T) {
	testCases := []struct {
		description string
		free        func(run allocator.PageRun) []allocator.PageRun
		expect      []allocator.PageRun
	}{
		{
			description: "middle of a run",
			free: func(run allocator.PageRun) []allocator.PageRun {
				return []allocator.PageRun{{Start: run.Start + 1, Count: 2}}
			},
			expect: []allocator.PageRun{{Start: 1, Count: 1}, {Start: 4, Count: 1}},
		},
		{
			description: "head of a run",
			free: func(run allocator.PageRun) []allocator.PageRun {
				return []allocator.PageRun{{Start: run.Start, Count: 3}}
			},
			expect: []allocator.PageRun{{Start: 4, Count: 1}},
		},
		{
			description: "whole run in pieces",
			free: func(run allocator.PageRun) []allocator.PageRun {
				return []allocator.PageRun{{Start: run.Start + 2, Count: 2}, {Start: run.Start, Count: 2}}
			},
		},
	}
	for _, testCase := range testCases {
		srv, pages := newTestScheduler(t, 16, testConfig(4))
		ctx := context.Background()

		var owned []allocator.PageRun
		_, err := srv.Spawn(ctx, func(task *Task) error {
			run, err := task.Allocate(4)
			if err != nil {
				return err
			}
			for _, part := range testCase.free(run) {
				if err = task.Free(part); err != nil {
					return err
				}
			}
			block, err := srv.Lookup(task.ID())
			if err != nil {
				return err
			}
			owned = block.Owned
			return nil
		})
		require.NoError(t, err, testCase.description)

		status, err := srv.RunUntilIdle(ctx)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, StatusIdle, status, testCase.description)
		assert.Equal(t, testCase.expect, owned, testCase.description)
		assert.NoError(t, pages.Fault(), testCase.description)
		assert.Equal(t, 16, pages.FreePageCount(), testCase.description)
	}
}

func TestService_FreeOfForeignPages(t *testing.T) {
	srv, pages := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()

	var shared allocator.PageRun
	_, err := srv.Spawn(ctx, func(task *Task) error {
		run, err := task.Allocate(2)
		if err != nil {
			return err
		}
		shared = run
		return task.Yield()
	}, WithName("owner"))
	require.NoError(t, err)

	errs := map[string]error{}
	_, err = srv.Spawn(ctx, func(task *Task) error {
		errs["peer run"] = task.Free(allocator.PageRun{Start: shared.Start + 1, Count: 1})
		errs["peer stack"] = task.Free(allocator.PageRun{Start: 0, Count: 1})
		errs["own stack"] = task.Free(task.Stack())
		return nil
	}, WithName("intruder"))
	require.NoError(t, err)

	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
	require.Len(t, errs, 3)
	for description, freeErr := range errs {
		assert.ErrorIs(t, freeErr, ErrNotOwned, description)
		assert.False(t, allocator.IsFatal(freeErr), description)
	}
	assert.NoError(t, pages.Fault())
	assert.Equal(t, 16, pages.FreePageCount())
}

func TestService_DoubleFreeHalts(t *testing.T) {
	srv, pages := newTestScheduler(t, 8, testConfig(4))
	ctx := context.Background()

	var freeErr error
	var trace []string
	_, err := srv.Spawn(ctx, func(task *Task) error {
		run, err := task.Allocate(1)
		if err != nil {
			return err
		}
		if err = task.Free(run); err != nil {
			return err
		}
		freeErr = task.Free(run)
		return task.Yield()
	})
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, yielder("never", 0, &trace))
	require.NoError(t, err)

	status, err := srv.RunUntilIdle(ctx)
	assert.Equal(t, StatusHalted, status)
	assert.ErrorIs(t, err, allocator.ErrDoubleFree)
	assert.ErrorIs(t, freeErr, allocator.ErrDoubleFree)
	assert.Empty(t, trace, "no task is dispatched after a fault")
	assert.Equal(t, []TaskID{1}, srv.Dispatches())

	status, err = srv.RunUntilIdle(ctx)
	assert.Equal(t, StatusHalted, status)
	assert.ErrorIs(t, err, allocator.ErrDoubleFree)

	require.NoError(t, srv.Close())
	assert.Equal(t, 8, pages.FreePageCount())
}

func TestService_SpawnFromTask(t *testing.T) {
	srv, _ := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()

	var trace []string
	_, err := srv.Spawn(ctx, func(task *Task) error {
		trace = append(trace, "parent")
		if _, err := task.Spawn(yielder("child", 0, &trace), WithName("child")); err != nil {
			return err
		}
		if err := task.Yield(); err != nil {
			return err
		}
		trace = append(trace, "parent")
		return nil
	})
	require.NoError(t, err)

	_, err = srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent", "child", "parent"}, trace)
	assert.Equal(t, []TaskID{1, 2, 1}, srv.Dispatches())
}

func TestService_NotRunning(t *testing.T) {
	srv, _ := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()

	var leaked *Task
	_, err := srv.Spawn(ctx, func(task *Task) error {
		leaked = task
		return nil
	})
	require.NoError(t, err)
	_, err = srv.RunUntilIdle(ctx)
	require.NoError(t, err)

	require.NotNil(t, leaked)
	assert.ErrorIs(t, leaked.Yield(), ErrNotRunning)
	assert.ErrorIs(t, leaked.Block(), ErrNotRunning)
	_, err = leaked.Allocate(1)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = leaked.Spawn(func(task *Task) error { return nil })
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestService_Close(t *testing.T) {
	srv, pages := newTestScheduler(t, 16, testConfig(4))
	ctx := context.Background()

	unwound := false
	_, err := srv.Spawn(ctx, func(task *Task) error {
		defer func() { unwound = true }()
		if _, err := task.Allocate(2); err != nil {
			return err
		}
		return task.Block()
	})
	require.NoError(t, err)
	status, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, status)

	// never dispatched
	_, err = srv.Spawn(ctx, func(task *Task) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 12, pages.FreePageCount())

	require.NoError(t, srv.Close())
	assert.True(t, unwound, "blocked coroutine is unwound")
	assert.Equal(t, 16, pages.FreePageCount())
	assert.Equal(t, 0, srv.Len())
	assert.Empty(t, srv.ReadyQueue())

	_, err = srv.Spawn(ctx, func(task *Task) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	_, err = srv.RunUntilIdle(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, srv.Close())
}

func TestService_ContextCancellation(t *testing.T) {
	srv, _ := newTestScheduler(t, 16, testConfig(4))

	ctx, cancel := context.WithCancel(context.Background())
	var trace []string
	_, err := srv.Spawn(ctx, func(task *Task) error {
		trace = append(trace, "A")
		cancel()
		if err := task.Yield(); err != nil {
			return err
		}
		trace = append(trace, "A")
		return nil
	})
	require.NoError(t, err)
	_, err = srv.Spawn(ctx, yielder("B", 0, &trace))
	require.NoError(t, err)

	status, err := srv.RunUntilIdle(ctx)
	assert.Equal(t, StatusInterrupted, status)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"A"}, trace)
	assert.Equal(t, []TaskID{2, 1}, srv.ReadyQueue())

	status, err = srv.RunUntilIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, []string{"A", "B", "A"}, trace)
}

func TestService_HistoryLimit(t *testing.T) {
	config := testConfig(4)
	config.HistoryLimit = 4
	srv, _ := newTestScheduler(t, 16, config)
	ctx := context.Background()

	var trace []string
	for _, name := range []string{"A", "B", "C"} {
		_, err := srv.Spawn(ctx, yielder(name, 2, &trace))
		require.NoError(t, err)
	}
	_, err := srv.RunUntilIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TaskID{3, 1, 2, 3}, srv.Dispatches())
}

func TestService_Transitions(t *testing.T) {
	queue := memory.NewQueue[event.Event[Transition]](memory.DefaultConfig())
	srv, _ := newTestScheduler(t, 16, testConfig(4), WithPublisher(event.NewPublisher[Transition](queue)), WithKernelID("k1"))
	ctx := context.Background()

	_, err := srv.Spawn(ctx, func(task *Task) error {
		if err := task.Yield(); err != nil {
			return err
		}
		return errors.New("done badly")
	})
	require.NoError(t, err)
	_, err = srv.RunUntilIdle(ctx)
	require.NoError(t, err)

	var actual []string
	var last Transition
	for {
		message, ok := queue.TryConsume()
		if !ok {
			break
		}
		evt := message.T()
		assert.Equal(t, "k1", evt.Context.KernelID)
		assert.Equal(t, 1, evt.Context.TaskID)
		last = evt.Data
		actual = append(actual, string(evt.Data.From)+">"+string(evt.Data.To))
	}
	assert.Equal(t, ">ready,ready>running,running>ready,ready>running,running>finished", strings.Join(actual, ","))
	assert.Equal(t, "done badly", last.Err)
}
