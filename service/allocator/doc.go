// Package allocator owns the physical arena and its bitmap index and is the
// only component allowed to mutate page ownership.  Pages are handed out as
// contiguous PageRun handles using a first-fit scan; there is no compaction,
// so a fragmented arena may fail a request even when enough pages are free.
package allocator
