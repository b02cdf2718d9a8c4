package kernsim

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/kernsim/internal/idgen"
	"github.com/viant/kernsim/internal/logfields"
	"github.com/viant/kernsim/progress"
	"github.com/viant/kernsim/service/allocator"
	"github.com/viant/kernsim/service/console"
	"github.com/viant/kernsim/service/event"
	"github.com/viant/kernsim/service/messaging"
	"github.com/viant/kernsim/service/messaging/memory"
	"github.com/viant/kernsim/service/scheduler"
	"github.com/viant/kernsim/tracing"
)

// Service is the kernel harness.  Like the scheduler it drives, it is meant
// to be used from a single goroutine.
type Service struct {
	id          string
	config      *Config
	allocator   *allocator.Service
	scheduler   *scheduler.Service
	console     console.Sink
	storage     *console.Storage
	fs          afs.Service
	events      *event.Service
	ownEvents   bool
	listener    event.Handler[scheduler.Transition]
	transitions *event.Publisher[scheduler.Transition]
	progress    *progress.Progress
	onProgress  func(progress.Counters)
	logger      *logrus.Entry
	halted      error
	closed      bool
}

// Stats is a snapshot of kernel counters.
type Stats struct {
	KernelID string          `json:"kernelID" yaml:"kernelID"`
	Memory   allocator.Stats `json:"memory" yaml:"memory"`
	Tasks    TaskStats       `json:"tasks" yaml:"tasks"`
	Events   *EventStats     `json:"events,omitempty" yaml:"events,omitempty"`
	Halted   string          `json:"halted,omitempty" yaml:"halted,omitempty"`
}

// EventStats reports the transition queue backlog.
type EventStats struct {
	Pending      int `json:"pending" yaml:"pending"`
	DeadLettered int `json:"deadLettered" yaml:"deadLettered"`
}

// TaskStats aggregates scheduler counters.
type TaskStats struct {
	Spawned  int `json:"spawned" yaml:"spawned"`
	Live     int `json:"live" yaml:"live"`
	Ready    int `json:"ready" yaml:"ready"`
	Blocked  int `json:"blocked" yaml:"blocked"`
	Finished int `json:"finished" yaml:"finished"`
	Failed   int `json:"failed" yaml:"failed"`
	Switches int `json:"switches" yaml:"switches"`
}

// New creates a kernel harness: it validates the configuration, then builds
// the allocator, the scheduler and the console sink.
func New(options ...Option) (*Service, error) {
	s := &Service{id: idgen.New(), config: DefaultConfig()}
	for _, opt := range options {
		opt(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kernel config: %w", err)
	}
	if s.logger == nil {
		s.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s.logger = s.logger.WithFields(logrus.Fields{logfields.Component: "kernel", logfields.KernelID: s.id})
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.console == nil {
		s.console = s.newConsole()
	}
	s.progress = progress.New(s.id, s.onProgress)

	var err error
	if s.allocator, err = allocator.New(s.config.AllocatorConfig(),
		allocator.WithLogger(s.logger),
		allocator.WithConsole(s.console)); err != nil {
		return nil, err
	}

	schedulerOptions := []scheduler.Option{
		scheduler.WithLogger(s.logger),
		scheduler.WithConsole(s.console),
		scheduler.WithProgress(s.progress),
		scheduler.WithKernelID(s.id),
	}
	if s.listener != nil && s.events == nil {
		if s.events, err = event.New(messaging.VendorMemory,
			event.WithLogger(s.logger),
			event.WithNewMemoryQueueConfig(s.eventQueueConfig)); err != nil {
			return nil, err
		}
		s.ownEvents = true
	}
	if s.events != nil {
		if s.transitions, err = event.PublisherOf[scheduler.Transition](s.events); err != nil {
			return nil, fmt.Errorf("failed to create transition publisher: %w", err)
		}
		schedulerOptions = append(schedulerOptions, scheduler.WithPublisher(s.transitions))
		if s.listener != nil {
			if err = event.SetListenerOf[scheduler.Transition](s.events, s.listener); err != nil {
				return nil, err
			}
		}
	}
	if s.scheduler, err = scheduler.New(s.config.SchedulerConfig(), s.allocator, schedulerOptions...); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		logfields.Pages: s.config.ArenaPages,
		"maxTasks":      s.config.MaxTasks,
		"policy":        s.config.SchedulingPolicy,
	}).Info("kernel initialised")
	return s, nil
}

func (s *Service) eventQueueConfig(string) memory.Config {
	config := memory.DefaultConfig()
	config.Capacity = s.config.EventQueueCapacity
	return config
}

func (s *Service) newConsole() console.Sink {
	switch s.config.Console {
	case "", ConsoleStdout:
		return console.NewWriter(os.Stdout)
	case ConsoleMemory:
		return console.NewMemory()
	}
	s.storage = console.NewStorage(s.fs, s.config.Console)
	return s.storage
}

func (s *Service) usable() error {
	if s.closed {
		return scheduler.ErrClosed
	}
	if s.halted == nil {
		if fault := s.allocator.Fault(); fault != nil {
			s.halt(fault)
		}
	}
	if s.halted != nil {
		return fmt.Errorf("%w: %w", ErrHalted, s.halted)
	}
	return nil
}

// Spawn creates a READY task.  Failures are logged and returned; the kernel
// keeps running.
func (s *Service) Spawn(ctx context.Context, entry scheduler.Entry, options ...scheduler.SpawnOption) (id scheduler.TaskID, err error) {
	ctx, span := tracing.StartSpan(progress.WithTracker(ctx, s.progress), "kernel.Spawn", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	if err = s.usable(); err != nil {
		return 0, err
	}
	if id, err = s.scheduler.Spawn(ctx, entry, options...); err != nil {
		s.logger.WithError(err).Warn("spawn rejected")
		return 0, err
	}
	span.WithInt("task.id", int(id))
	return id, nil
}

// Unblock makes a BLOCKED task READY.
func (s *Service) Unblock(ctx context.Context, id scheduler.TaskID) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.scheduler.Unblock(ctx, id)
}

// RunUntilIdle hands control to the scheduler until no task is READY.  Tasks
// find the kernel's progress tracker in Task.Context.  On a fatal allocator
// fault the kernel writes "kernel halted: <fault>" to the console and refuses
// further work.
func (s *Service) RunUntilIdle(ctx context.Context) (status scheduler.Status, err error) {
	ctx, span := tracing.StartSpan(progress.WithTracker(ctx, s.progress), "kernel.RunUntilIdle", "INTERNAL")
	defer func() {
		span.WithAttributes(map[string]string{"status": string(status)})
		tracing.EndSpan(span, err)
	}()
	if err = s.usable(); err != nil {
		if errors.Is(err, ErrHalted) {
			return scheduler.StatusHalted, err
		}
		return scheduler.StatusInterrupted, err
	}
	status, err = s.scheduler.RunUntilIdle(ctx)
	if status == scheduler.StatusHalted {
		s.halt(err)
		return status, fmt.Errorf("%w: %w", ErrHalted, err)
	}
	return status, err
}

func (s *Service) halt(fault error) {
	s.halted = fault
	s.logger.WithError(fault).Error("kernel halted")
	if err := console.Printf(s.console, "kernel halted: %v", fault); err != nil {
		s.logger.WithError(err).Warn("failed to write console")
	}
}

// Halted returns the fault that stopped the kernel, if any.
func (s *Service) Halted() error {
	return s.halted
}

// FreePageCount returns the number of free arena pages.
func (s *Service) FreePageCount() int {
	return s.allocator.FreePageCount()
}

// Stats returns a snapshot of allocator and scheduler counters.
func (s *Service) Stats() Stats {
	snapshot := s.progress.Snapshot()
	ret := Stats{
		KernelID: s.id,
		Memory:   s.allocator.Stats(),
		Tasks: TaskStats{
			Spawned:  snapshot.SpawnedTasks,
			Live:     snapshot.Live(),
			Ready:    snapshot.ReadyTasks,
			Blocked:  snapshot.BlockedTasks,
			Finished: snapshot.FinishedTasks,
			Failed:   snapshot.FailedTasks,
			Switches: snapshot.Switches,
		},
	}
	if s.transitions != nil {
		ret.Events = &EventStats{Pending: s.transitions.Pending(), DeadLettered: s.transitions.DeadLettered()}
	}
	if s.halted != nil {
		ret.Halted = s.halted.Error()
	}
	return ret
}

// ID returns the kernel instance id.
func (s *Service) ID() string {
	return s.id
}

// Config returns the kernel configuration.
func (s *Service) Config() Config {
	return *s.config
}

// Console returns the console sink.
func (s *Service) Console() console.Sink {
	return s.console
}

// Allocator returns the page allocator.
func (s *Service) Allocator() *allocator.Service {
	return s.allocator
}

// Scheduler returns the task scheduler.
func (s *Service) Scheduler() *scheduler.Service {
	return s.scheduler
}

// Close aborts remaining tasks, returns their pages, stops an owned event
// service once its listener has handled every queued transition, and
// persists a storage console.
func (s *Service) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if err := s.scheduler.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownEvents {
		s.events.Close()
	}
	if s.storage != nil {
		if err := s.storage.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.WithField(logfields.Free, s.allocator.FreePageCount()).Debug("kernel closed")
	return errors.Join(errs...)
}
