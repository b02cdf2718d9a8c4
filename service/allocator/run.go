package allocator

import "fmt"

// PageRun names a contiguous span of pages allocated together.  The zero
// value is an empty run.
type PageRun struct {
	Start int `json:"start" yaml:"start"`
	Count int `json:"count" yaml:"count"`
}

// End returns the index one past the last page.
func (r PageRun) End() int {
	return r.Start + r.Count
}

// IsZero reports whether the run names no pages.
func (r PageRun) IsZero() bool {
	return r.Count == 0
}

// Contains reports whether page belongs to the run.
func (r PageRun) Contains(page int) bool {
	return page >= r.Start && page < r.End()
}

// Overlaps reports whether both runs share at least one page.
func (r PageRun) Overlaps(other PageRun) bool {
	if r.IsZero() || other.IsZero() {
		return false
	}
	return r.Start < other.End() && other.Start < r.End()
}

// Offset returns the byte offset of the run inside an arena of pageSize pages.
func (r PageRun) Offset(pageSize int) int {
	return r.Start * pageSize
}

func (r PageRun) String() string {
	return fmt.Sprintf("pages[%d,%d)", r.Start, r.End())
}
