package allocator

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/kernsim/internal/logfields"
	"github.com/viant/kernsim/service/allocator/bitmap"
	"github.com/viant/kernsim/service/console"
)

// MaxArenaBytes bounds the memory backing one arena.
const MaxArenaBytes = 1 << 30

// Config represents allocator configuration
type Config struct {
	// ArenaPages is the total number of physical pages.
	ArenaPages int `json:"arenaPages" yaml:"arenaPages"`
	// PageSize is the fixed page size in bytes.
	PageSize int `json:"pageSize" yaml:"pageSize"`
	// ReservedPages are owned by the kernel itself from initialisation,
	// starting at page 0.
	ReservedPages int `json:"reservedPages" yaml:"reservedPages"`
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		ArenaPages: 256,
		PageSize:   4096,
	}
}

// Validate returns an error describing the first invalid setting.
func (c Config) Validate() error {
	if c.ArenaPages <= 0 {
		return fmt.Errorf("arenaPages must be > 0")
	}
	if c.PageSize <= 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("pageSize must be a positive power of two, got %d", c.PageSize)
	}
	if c.ArenaPages > MaxArenaBytes/c.PageSize {
		return fmt.Errorf("%w: %d pages of %d bytes exceed %d bytes", ErrArenaTooLarge, c.ArenaPages, c.PageSize, MaxArenaBytes)
	}
	if c.ReservedPages < 0 || c.ReservedPages >= c.ArenaPages {
		return fmt.Errorf("reservedPages must be in [0, %d), got %d", c.ArenaPages, c.ReservedPages)
	}
	return nil
}

// Stats reports allocator counters.
type Stats struct {
	ArenaPages     int `json:"arenaPages"`
	FreePages      int `json:"freePages"`
	UsedPages      int `json:"usedPages"`
	LargestFree    int `json:"largestFree"`
	Allocations    int `json:"allocations"`
	Frees          int `json:"frees"`
	FailedRequests int `json:"failedRequests"`
	Faults         int `json:"faults"`
}

// Service allocates contiguous page runs from a fixed arena.
type Service struct {
	config  Config
	mu      sync.Mutex
	bits    *bitmap.Bitmap
	memory  []byte
	kernel  PageRun
	fault   error
	stats   Stats
	logger  *logrus.Entry
	console console.Sink
}

// New creates an allocator for the configured arena.
func New(config Config, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid allocator config: %w", err)
	}
	s := &Service{
		config: config,
		bits:   bitmap.New(config.ArenaPages),
		memory: make([]byte, config.ArenaPages*config.PageSize),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s.logger = s.logger.WithField(logfields.Component, "allocator")
	if config.ReservedPages > 0 {
		s.kernel = PageRun{Start: 0, Count: config.ReservedPages}
		if err := s.bits.SetRange(0, config.ReservedPages); err != nil {
			return nil, err
		}
	}
	s.logger.WithFields(logrus.Fields{
		logfields.Pages: config.ArenaPages,
		"pageSize":      config.PageSize,
		"reserved":      config.ReservedPages,
	}).Debug("arena initialised")
	return s, nil
}

// Config returns the allocator configuration.
func (s *Service) Config() Config {
	return s.config
}

// KernelRun returns the pages reserved for the kernel itself.
func (s *Service) KernelRun() PageRun {
	return s.kernel
}

// Allocate reserves count contiguous pages using first fit.
func (s *Service) Allocate(count int) (PageRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count <= 0 {
		s.stats.FailedRequests++
		return PageRun{}, &Error{Op: "allocate", Run: PageRun{Count: count}, Kind: ErrInvalidCount}
	}
	start, ok := s.bits.FindClearRun(count, 0)
	if !ok {
		s.stats.FailedRequests++
		s.logger.WithFields(logrus.Fields{
			logfields.Pages: count,
			logfields.Free:  s.freePages(),
		}).Debug("allocation failed")
		return PageRun{}, &Error{Op: "allocate", Run: PageRun{Count: count}, Kind: ErrOutOfMemory}
	}
	run := PageRun{Start: start, Count: count}
	if err := s.bits.SetRange(run.Start, run.Count); err != nil {
		return PageRun{}, s.faultLocked(&Error{Op: "allocate", Run: run, Kind: err})
	}
	s.stats.Allocations++
	s.logger.WithField(logfields.Run, run.String()).Debug("allocated")
	return run, nil
}

// Free releases run.  The bitmap is only modified when every page of the run
// is currently allocated; otherwise ErrDoubleFree is returned and latched as
// a fault.
func (s *Service) Free(run PageRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.Count <= 0 {
		return &Error{Op: "free", Run: run, Kind: ErrInvalidCount}
	}
	page, hole, err := s.bits.FirstClear(run.Start, run.Count)
	if err != nil {
		return s.faultLocked(&Error{Op: "free", Run: run, Kind: ErrIndexOutOfRange})
	}
	if hole {
		return s.faultLocked(&Error{Op: "free", Run: run, Kind: ErrDoubleFree, Page: page})
	}
	if s.kernel.Overlaps(run) {
		return s.faultLocked(&Error{Op: "free", Run: run, Kind: ErrReserved})
	}
	if err = s.bits.ClearRange(run.Start, run.Count); err != nil {
		return s.faultLocked(&Error{Op: "free", Run: run, Kind: err})
	}
	mem := s.memory[run.Offset(s.config.PageSize) : run.End()*s.config.PageSize]
	for i := range mem {
		mem[i] = 0
	}
	s.stats.Frees++
	s.logger.WithField(logfields.Run, run.String()).Debug("freed")
	return nil
}

// Bytes returns the arena memory backing run.  The run must be allocated.
func (s *Service) Bytes(run PageRun) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.Count <= 0 {
		return nil, &Error{Op: "bytes", Run: run, Kind: ErrInvalidCount}
	}
	_, hole, err := s.bits.FirstClear(run.Start, run.Count)
	if err != nil {
		return nil, &Error{Op: "bytes", Run: run, Kind: ErrIndexOutOfRange}
	}
	if hole {
		return nil, &Error{Op: "bytes", Run: run, Kind: ErrNotAllocated}
	}
	from, to := run.Offset(s.config.PageSize), run.End()*s.config.PageSize
	return s.memory[from:to:to], nil
}

// IsAllocated reports whether page is owned.
func (s *Service) IsAllocated(page int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bits.IsSet(page)
}

// FreePageCount returns the number of free pages.
func (s *Service) FreePageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freePages()
}

// UsedPageCount returns the number of allocated pages, reserved ones included.
func (s *Service) UsedPageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bits.Count()
}

// LargestFreeRun returns the size of the largest request that can currently
// succeed.
func (s *Service) LargestFreeRun() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bits.LongestClearRun()
}

// Stats returns a snapshot of allocator counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := s.stats
	ret.ArenaPages = s.config.ArenaPages
	ret.UsedPages = s.bits.Count()
	ret.FreePages = s.freePages()
	ret.LargestFree = s.bits.LongestClearRun()
	return ret
}

// Map renders page ownership, '1' for allocated and '.' for free.
func (s *Service) Map() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bits.String()
}

// Fault returns the first fatal invariant violation observed, if any.
func (s *Service) Fault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

func (s *Service) freePages() int {
	return s.bits.Len() - s.bits.Count()
}

func (s *Service) faultLocked(err error) error {
	s.stats.Faults++
	if s.fault == nil {
		s.fault = err
	}
	s.logger.WithError(err).Error("allocator fault")
	_ = console.Printf(s.console, "allocator: %v", err)
	return err
}
