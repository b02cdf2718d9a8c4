// Package scheduler runs cooperative tasks over the page allocator.
//
// Every task is a coroutine backed by its own goroutine, but control is
// handed over on channels so exactly one side runs at any time: the
// scheduler loop while it picks the next task, or the dispatched task until
// it yields, blocks or returns.  Ready tasks are dispatched in strict FIFO
// order; spawned, yielded and unblocked tasks join the tail of the queue.
// Given the same sequence of spawn, yield, block and unblock calls the
// dispatch order is identical across runs.
//
// The Task Table holds one ControlBlock per live task and has a fixed
// capacity.  A task's stack pages are allocated at spawn and returned to the
// allocator when the task finishes, together with any run it allocated and
// did not free.
package scheduler
