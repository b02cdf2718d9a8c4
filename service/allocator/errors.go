package allocator

import (
	"errors"
	"fmt"

	"github.com/viant/kernsim/service/allocator/bitmap"
)

var (
	// ErrOutOfMemory is returned when no contiguous run of the requested size
	// is free.  Callers may retry later.
	ErrOutOfMemory = errors.New("allocator: out of memory")

	// ErrDoubleFree is returned when a run being freed has at least one page
	// that is already free.  It indicates a bug in the caller.
	ErrDoubleFree = errors.New("allocator: double free detected")

	// ErrIndexOutOfRange is returned when a run reaches outside the arena.
	ErrIndexOutOfRange = bitmap.ErrIndexOutOfRange

	// ErrInvalidCount is returned for allocation requests of less than one page.
	ErrInvalidCount = errors.New("allocator: invalid page count")

	// ErrReserved is returned when a run overlaps the kernel's own pages.
	ErrReserved = errors.New("allocator: run overlaps reserved kernel pages")

	// ErrNotAllocated is returned when the memory of a free run is accessed.
	ErrNotAllocated = errors.New("allocator: run is not allocated")

	// ErrArenaTooLarge is returned by Validate when the arena would exceed
	// MaxArenaBytes.
	ErrArenaTooLarge = errors.New("allocator: arena too large")
)

// Error describes a failed allocator operation on a specific run.
type Error struct {
	Op   string
	Run  PageRun
	Kind error
	Page int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind == ErrDoubleFree {
		return fmt.Sprintf("%s %v: %v (page %d already free)", e.Op, e.Run, e.Kind, e.Page)
	}
	return fmt.Sprintf("%s %v: %v", e.Op, e.Run, e.Kind)
}

func (e *Error) Unwrap() error { return e.Kind }

// IsFatal reports whether err is an allocator invariant violation that leaves
// the kernel unable to trust its own bookkeeping.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDoubleFree) || errors.Is(err, ErrIndexOutOfRange) || errors.Is(err, ErrReserved)
}
