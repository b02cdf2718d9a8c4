package scheduler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/viant/kernsim/internal/clock"
	"github.com/viant/kernsim/internal/logfields"
	"github.com/viant/kernsim/progress"
	"github.com/viant/kernsim/service/allocator"
	"github.com/viant/kernsim/service/console"
	"github.com/viant/kernsim/service/dao"
	"github.com/viant/kernsim/service/event"
)

// PageAllocator is the part of the allocator the scheduler depends on.
type PageAllocator interface {
	Allocate(count int) (allocator.PageRun, error)
	Free(run allocator.PageRun) error
	Bytes(run allocator.PageRun) ([]byte, error)
	// Fault returns the first fatal allocator violation, if any.
	Fault() error
}

// Status reports why RunUntilIdle returned.
type Status string

const (
	// StatusIdle means the ready queue drained and no task is blocked.
	StatusIdle Status = "idle"
	// StatusBlocked means the ready queue drained with blocked tasks left.
	StatusBlocked Status = "blocked"
	// StatusHalted means a fatal allocator fault stopped dispatching.
	StatusHalted Status = "halted"
	// StatusInterrupted means the context was done or the call was refused.
	StatusInterrupted Status = "interrupted"
)

// Service is a cooperative round-robin scheduler.  It is driven from one
// goroutine: the harness calls Spawn, Unblock and RunUntilIdle, and tasks
// call back through their Task handle only while they hold control.
type Service struct {
	config    Config
	allocator PageAllocator
	table     *Table
	ready     runQueue
	current   *ControlBlock
	nextID    TaskID
	history   []TaskID
	fault     error
	closed    bool
	ctx       context.Context
	logger    *logrus.Entry
	console   console.Sink
	publisher *event.Publisher[Transition]
	progress  *progress.Progress
	kernelID  string
}

// New creates a scheduler allocating task stacks from pages.
func New(config Config, pages PageAllocator, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if pages == nil {
		return nil, fmt.Errorf("page allocator is required")
	}
	s := &Service{
		config:    config,
		allocator: pages,
		table:     NewTable(config.MaxTasks),
		nextID:    1,
		ctx:       context.Background(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s.logger = s.logger.WithField(logfields.Component, "scheduler")
	if s.kernelID != "" {
		s.logger = s.logger.WithField(logfields.KernelID, s.kernelID)
	}
	return s, nil
}

// Config returns the scheduler configuration.
func (s *Service) Config() Config {
	return s.config
}

// Spawn creates a READY task at the tail of the ready queue.  Table capacity
// is checked before any stack page is allocated.
func (s *Service) Spawn(ctx context.Context, entry Entry, options ...SpawnOption) (TaskID, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if entry == nil {
		return 0, ErrNilEntry
	}
	opts := spawnOptions{stackPages: s.config.StackPages}
	for _, opt := range options {
		opt(&opts)
	}
	if s.table.Full() {
		s.logger.WithField(logfields.TaskName, opts.name).Warn("task table full")
		return 0, fmt.Errorf("%w: capacity %d", ErrTaskTableFull, s.table.Cap())
	}
	stack, err := s.allocator.Allocate(opts.stackPages)
	if err != nil {
		s.logger.WithError(err).WithField(logfields.Pages, opts.stackPages).Warn("failed to allocate stack")
		return 0, fmt.Errorf("failed to allocate %d stack pages: %w", opts.stackPages, err)
	}
	id := s.nextID
	if opts.name == "" {
		opts.name = "task-" + id.String()
	}
	block := &ControlBlock{
		ID:        id,
		Name:      opts.name,
		Stack:     stack,
		SpawnedAt: clock.Now(),
	}
	handle := &Task{service: s, block: block}
	block.context = newCoroutine(func() error { return entry(handle) })
	if err = s.table.Insert(ctx, block); err != nil {
		_ = s.allocator.Free(stack)
		return 0, err
	}
	s.nextID++
	s.progress.Update(progress.Delta{Spawned: 1})
	s.setState(ctx, block, StateReady)
	s.ready.push(block)
	return id, nil
}

// Unblock moves a BLOCKED task to the tail of the ready queue.
func (s *Service) Unblock(ctx context.Context, id TaskID) error {
	if s.closed {
		return ErrClosed
	}
	block, err := s.table.Load(ctx, id)
	if err != nil {
		return err
	}
	if block.State != StateBlocked {
		return fmt.Errorf("%w: task %v is %s", ErrNotBlocked, id, block.State)
	}
	s.setState(ctx, block, StateReady)
	s.ready.push(block)
	return nil
}

// RunUntilIdle dispatches READY tasks until the ready queue is empty, the
// allocator reports a fatal fault or ctx is done.  Cancellation is checked
// between dispatches; a running task is never interrupted.
func (s *Service) RunUntilIdle(ctx context.Context) (Status, error) {
	if s.closed {
		return StatusInterrupted, ErrClosed
	}
	if s.current != nil {
		return StatusInterrupted, fmt.Errorf("cannot run the scheduler from inside task %v", s.current.ID)
	}
	if err := s.checkFault(); err != nil {
		return StatusHalted, err
	}
	s.ctx = ctx
	defer func() { s.ctx = context.Background() }()
	for s.ready.len() > 0 {
		if err := ctx.Err(); err != nil {
			return StatusInterrupted, err
		}
		s.dispatch(ctx, s.ready.pop())
		if err := s.checkFault(); err != nil {
			return StatusHalted, err
		}
	}
	if blocked := s.table.Count(ctx, StateBlocked); blocked > 0 {
		s.logger.WithField(logfields.Status, StatusBlocked).Debugf("%d task(s) blocked", blocked)
		return StatusBlocked, nil
	}
	return StatusIdle, nil
}

func (s *Service) dispatch(ctx context.Context, block *ControlBlock) {
	block.Dispatches++
	s.record(block.ID)
	s.setState(ctx, block, StateRunning)
	s.current = block
	sig := block.context.switchTo()
	s.current = nil
	switch sig.kind {
	case signalYield:
		s.setState(ctx, block, StateReady)
		s.ready.push(block)
	case signalBlock:
		s.setState(ctx, block, StateBlocked)
	default:
		s.finish(ctx, block, sig.err)
	}
}

func (s *Service) finish(ctx context.Context, block *ControlBlock, err error) {
	block.Err = err
	logger := s.logger.WithFields(logrus.Fields{logfields.TaskID: block.ID, logfields.TaskName: block.Name})
	if err != nil {
		s.progress.Update(progress.Delta{Failed: 1})
		if allocator.IsFatal(err) {
			logger.WithError(err).Error("task hit an allocator fault")
		} else {
			logger.WithError(err).Warn("task failed")
			_ = console.Printf(s.console, "task %v (%s) failed: %v", block.ID, block.Name, err)
		}
	}
	s.release(block)
	s.setState(ctx, block, StateFinished)
	if err = s.table.Remove(ctx, block.ID); err != nil {
		logger.WithError(err).Warn("failed to reclaim task slot")
	}
}

// release returns the runs a task still owns and its stack to the allocator.
func (s *Service) release(block *ControlBlock) {
	runs := make([]allocator.PageRun, 0, len(block.Owned)+1)
	runs = append(runs, block.Owned...)
	runs = append(runs, block.Stack)
	for _, run := range runs {
		if err := s.allocator.Free(run); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				logfields.TaskID: block.ID,
				logfields.Run:    run.String(),
			}).Error("failed to release task pages")
		}
	}
	block.Owned = nil
}

// claimant returns the live task holding pages of run that self may not free:
// any task stack, or runs owned by another task.
func (s *Service) claimant(self *ControlBlock, run allocator.PageRun) *ControlBlock {
	blocks, _ := s.table.List(context.Background())
	for _, block := range blocks {
		if block.Stack.Overlaps(run) {
			return block
		}
		if block == self {
			continue
		}
		for _, owned := range block.Owned {
			if owned.Overlaps(run) {
				return block
			}
		}
	}
	return nil
}

func (s *Service) checkFault() error {
	if s.fault == nil {
		if fault := s.allocator.Fault(); fault != nil {
			s.fault = fault
			s.logger.WithError(fault).Error("allocator fault, dispatching halted")
		}
	}
	return s.fault
}

func (s *Service) record(id TaskID) {
	s.history = append(s.history, id)
	if limit := s.config.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = append(s.history[:0], s.history[len(s.history)-limit:]...)
	}
}

func (s *Service) setState(ctx context.Context, block *ControlBlock, to State) {
	from := block.State
	block.State = to
	delta := progress.Delta{}
	adjust(&delta, from, -1)
	adjust(&delta, to, 1)
	if to == StateRunning {
		delta.Switches = 1
	}
	s.progress.Update(delta)

	logger := s.logger.WithFields(logrus.Fields{
		logfields.TaskID:   block.ID,
		logfields.TaskName: block.Name,
		logfields.From:     from,
		logfields.To:       to,
	})
	logger.Debug("task transition")
	if s.publisher == nil {
		return
	}
	transition := Transition{TaskID: block.ID, Name: block.Name, From: from, To: to, At: clock.Now()}
	if to == StateFinished && block.Err != nil {
		transition.Err = block.Err.Error()
	}
	evt := event.NewEvent(&event.Context{KernelID: s.kernelID, TaskID: int(block.ID), EventType: "transition"}, transition)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		logger.WithError(err).Warn("failed to publish transition")
	}
}

func adjust(delta *progress.Delta, state State, by int) {
	switch state {
	case StateReady:
		delta.Ready += by
	case StateRunning:
		delta.Running += by
	case StateBlocked:
		delta.Blocked += by
	case StateFinished:
		delta.Finished += by
	}
}

// Close aborts every parked task and returns its pages.  A closed scheduler
// refuses further work.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	if s.current != nil {
		return fmt.Errorf("cannot close the scheduler from inside task %v", s.current.ID)
	}
	s.closed = true
	ctx := context.Background()
	blocks, err := s.table.List(ctx)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		block.context.abort()
		block.Err = ErrClosed
		s.release(block)
		s.setState(ctx, block, StateFinished)
		_ = s.table.Remove(ctx, block.ID)
	}
	s.ready.reset()
	s.logger.WithField(logfields.Status, "closed").Debugf("aborted %d task(s)", len(blocks))
	return nil
}

// Lookup returns a snapshot of the live task id.
func (s *Service) Lookup(id TaskID) (ControlBlock, error) {
	block, err := s.table.Load(context.Background(), id)
	if err != nil {
		return ControlBlock{}, err
	}
	return block.Clone(), nil
}

// Tasks returns snapshots of live tasks in id order, limited to states when
// any are given.
func (s *Service) Tasks(states ...State) []ControlBlock {
	var parameters []*dao.Parameter
	if len(states) > 0 {
		values := make([]string, len(states))
		for i, state := range states {
			values[i] = string(state)
		}
		parameters = append(parameters, dao.NewParameter("state", values...))
	}
	blocks, _ := s.table.List(context.Background(), parameters...)
	ret := make([]ControlBlock, len(blocks))
	for i, block := range blocks {
		ret[i] = block.Clone()
	}
	return ret
}

// Dispatches returns the order in which tasks were made RUNNING, most
// recent last.
func (s *Service) Dispatches() []TaskID {
	return append([]TaskID(nil), s.history...)
}

// ReadyQueue returns the ids of READY tasks, head first.
func (s *Service) ReadyQueue() []TaskID {
	return s.ready.ids()
}

// Current returns the RUNNING task id, zero when none holds control.
func (s *Service) Current() TaskID {
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// Len returns the number of live tasks.
func (s *Service) Len() int {
	return s.table.Len()
}
