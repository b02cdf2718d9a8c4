// Package console provides the kernel's diagnostic sink: an append-only,
// ordered stream of text lines written by tasks, the allocator and the
// harness.  Sinks can keep lines in memory, forward them to an io.Writer or
// persist them to any afs-supported storage URL.
package console
