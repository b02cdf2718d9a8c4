// Package idgen issues opaque identifiers for kernel instances and queued
// messages.  NewFunc can be replaced in tests for stable ids.
package idgen
