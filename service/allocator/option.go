package allocator

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/kernsim/service/console"
)

// Option configures the allocator service
type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConsole sets the diagnostic sink used to report faults
func WithConsole(sink console.Sink) Option {
	return func(s *Service) {
		s.console = sink
	}
}
