package progress

import (
	"context"
	"sync"
	"time"

	"github.com/viant/kernsim/internal/clock"
)

// Delta represents an incremental counter change emitted by the scheduler.
// Fields are signed, so a state change is expressed as -1 on the source
// state and +1 on the target state.
type Delta struct {
	Spawned  int
	Ready    int
	Running  int
	Blocked  int
	Finished int
	Failed   int
	Switches int
}

// Counters is a lock-free copy of the tracked task counters.
type Counters struct {
	KernelID  string    `json:"kernelID" yaml:"kernelID"`
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`

	SpawnedTasks  int `json:"spawned" yaml:"spawned"`
	ReadyTasks    int `json:"ready" yaml:"ready"`
	RunningTasks  int `json:"running" yaml:"running"`
	BlockedTasks  int `json:"blocked" yaml:"blocked"`
	FinishedTasks int `json:"finished" yaml:"finished"`
	FailedTasks   int `json:"failed" yaml:"failed"`
	Switches      int `json:"switches" yaml:"switches"`
}

// Live returns the number of tasks that have not finished.
func (c Counters) Live() int {
	return c.ReadyTasks + c.RunningTasks + c.BlockedTasks
}

// Progress keeps aggregated task counters.  It is safe for concurrent use.
type Progress struct {
	counters Counters
	mu       sync.Mutex
	onChange func(Counters)
}

// New creates a tracker for kernelID.
func New(kernelID string, onChange func(Counters)) *Progress {
	return &Progress{
		counters: Counters{KernelID: kernelID, StartedAt: clock.Now()},
		onChange: onChange,
	}
}

// Update applies the supplied delta.  The onChange callback, if any, runs
// outside the critical section with a copy of the updated counters.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.mu.Lock()
	c := &p.counters
	c.SpawnedTasks += d.Spawned
	c.ReadyTasks += d.Ready
	c.RunningTasks += d.Running
	c.BlockedTasks += d.Blocked
	c.FinishedTasks += d.Finished
	c.FailedTasks += d.Failed
	c.Switches += d.Switches
	snapshot := p.counters
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds tracker in a derived context.  The kernel attaches its
// tracker to the context its tasks run under.
func WithTracker(ctx context.Context, tracker *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// FromContext extracts the Progress tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}
