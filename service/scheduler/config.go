package scheduler

import (
	"fmt"
)

// Policy names a dispatch policy.
type Policy string

// RoundRobin dispatches the head of a FIFO ready queue.
const RoundRobin Policy = "round-robin"

// Config represents scheduler configuration
type Config struct {
	// MaxTasks is the fixed task table capacity.
	MaxTasks int `json:"maxTasks" yaml:"maxTasks"`
	// StackPages is the default stack size of a spawned task.
	StackPages int `json:"stackPages" yaml:"stackPages"`
	// Policy selects the dispatch policy.
	Policy Policy `json:"policy" yaml:"policy"`
	// HistoryLimit bounds the recorded dispatch history, zero keeps all.
	HistoryLimit int `json:"historyLimit" yaml:"historyLimit"`
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		MaxTasks:     16,
		StackPages:   1,
		Policy:       RoundRobin,
		HistoryLimit: 1024,
	}
}

// Validate returns an error describing the first invalid setting.
func (c Config) Validate() error {
	if c.MaxTasks <= 0 {
		return fmt.Errorf("maxTasks must be > 0")
	}
	if c.StackPages <= 0 {
		return fmt.Errorf("stackPages must be > 0")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("historyLimit must be >= 0")
	}
	switch c.Policy {
	case RoundRobin:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedPolicy, c.Policy)
	}
	return nil
}
