package kernsim

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/kernsim/internal/expand"
	"github.com/viant/kernsim/service/allocator"
	"github.com/viant/kernsim/service/scheduler"
	"gopkg.in/yaml.v3"
)

const (
	// ConsoleStdout writes console lines to standard output.
	ConsoleStdout = "stdout"
	// ConsoleMemory keeps console lines in memory.
	ConsoleMemory = "memory"
)

// Config is the serialisable kernel configuration.  Any value other than
// ConsoleStdout or ConsoleMemory in Console is treated as an afs URL the
// transcript is persisted to on Close.
type Config struct {
	ArenaPages       int    `json:"arena_pages" yaml:"arena_pages"`
	PageSizeBytes    int    `json:"page_size_bytes" yaml:"page_size_bytes"`
	MaxTasks         int    `json:"max_tasks" yaml:"max_tasks"`
	SchedulingPolicy string `json:"scheduling_policy" yaml:"scheduling_policy"`
	StackPages       int    `json:"stack_pages" yaml:"stack_pages"`
	ReservedPages    int    `json:"reserved_pages" yaml:"reserved_pages"`
	HistoryLimit     int    `json:"history_limit" yaml:"history_limit"`
	Console          string `json:"console" yaml:"console"`
	// EventQueueCapacity bounds the transition queue of a kernel owned event
	// service; zero is unbounded.
	EventQueueCapacity int `json:"event_queue_capacity" yaml:"event_queue_capacity"`
}

// DefaultConfig returns a Config populated with the package defaults of the
// allocator and scheduler.
func DefaultConfig() *Config {
	memory := allocator.DefaultConfig()
	tasks := scheduler.DefaultConfig()
	return &Config{
		ArenaPages:       memory.ArenaPages,
		PageSizeBytes:    memory.PageSize,
		MaxTasks:         tasks.MaxTasks,
		SchedulingPolicy: string(tasks.Policy),
		StackPages:       tasks.StackPages,
		ReservedPages:    memory.ReservedPages,
		HistoryLimit:     tasks.HistoryLimit,
		Console:          ConsoleStdout,

		EventQueueCapacity: 1024,
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config was nil")
	}
	var errs []error
	if err := c.AllocatorConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.StackPages > c.ArenaPages-c.ReservedPages && c.ArenaPages > 0 {
		errs = append(errs, fmt.Errorf("stack_pages %d exceeds the %d allocatable pages", c.StackPages, c.ArenaPages-c.ReservedPages))
	}
	if c.EventQueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("event_queue_capacity must be >= 0, got %d", c.EventQueueCapacity))
	}
	return errors.Join(errs...)
}

// AllocatorConfig returns the page allocator settings.
func (c *Config) AllocatorConfig() allocator.Config {
	return allocator.Config{
		ArenaPages:    c.ArenaPages,
		PageSize:      c.PageSizeBytes,
		ReservedPages: c.ReservedPages,
	}
}

// SchedulerConfig returns the scheduler settings.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxTasks:     c.MaxTasks,
		StackPages:   c.StackPages,
		Policy:       scheduler.Policy(c.SchedulingPolicy),
		HistoryLimit: c.HistoryLimit,
	}
}

// LoadConfig reads a YAML configuration from URL.  ${env.KEY} references are
// expanded before decoding; keys missing from the document keep their default
// values.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	if fs == nil {
		fs = afs.New()
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(expand.Env(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
