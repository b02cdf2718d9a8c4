package scheduler

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/kernsim/progress"
	"github.com/viant/kernsim/service/console"
	"github.com/viant/kernsim/service/event"
)

// Option configures the scheduler
type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConsole sets the sink tasks write to and task failures are reported on
func WithConsole(sink console.Sink) Option {
	return func(s *Service) {
		s.console = sink
	}
}

// WithPublisher publishes every state transition
func WithPublisher(publisher *event.Publisher[Transition]) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithProgress sets the counter tracker
func WithProgress(tracker *progress.Progress) Option {
	return func(s *Service) {
		s.progress = tracker
	}
}

// WithKernelID tags published events and log entries
func WithKernelID(id string) Option {
	return func(s *Service) {
		s.kernelID = id
	}
}

// SpawnOption configures a single spawned task
type SpawnOption func(o *spawnOptions)

type spawnOptions struct {
	name       string
	stackPages int
}

// WithName names the task; the default is "task-<id>"
func WithName(name string) SpawnOption {
	return func(o *spawnOptions) {
		o.name = name
	}
}

// WithStackPages overrides the configured stack size
func WithStackPages(pages int) SpawnOption {
	return func(o *spawnOptions) {
		o.stackPages = pages
	}
}
