package kernsim

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/kernsim/progress"
	"github.com/viant/kernsim/service/console"
	"github.com/viant/kernsim/service/event"
	"github.com/viant/kernsim/service/scheduler"
	"github.com/viant/kernsim/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the kernel harness
type Option func(s *Service)

// WithConfig sets the kernel configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithConsole sets the console sink, overriding Config.Console
func WithConsole(sink console.Sink) Option {
	return func(s *Service) {
		s.console = sink
	}
}

// WithLogger sets the logger shared by every component
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFileSystem sets the afs service used for a storage console
func WithFileSystem(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithEventService publishes task transitions on the supplied event service.
// The caller owns it: transitions are read through
// event.PublisherOf[scheduler.Transition], and its queues are bounded with
// event.WithNewMemoryQueueConfig.  Transitions that do not fit are dropped
// with a warning.
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.events = service
	}
}

// WithTransitionListener registers a handler receiving every task
// transition.  A handler error redelivers the transition until the queue's
// retries are exhausted.  An in-memory event service bounded by
// Config.EventQueueCapacity is created when none was set.
func WithTransitionListener(listener event.Handler[scheduler.Transition]) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

// WithProgressListener registers a callback invoked on every counter change
func WithProgressListener(listener func(progress.Counters)) Option {
	return func(s *Service) {
		s.onProgress = listener
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
