// Package progress aggregates scheduler counters for a single kernel run.
// Components report signed deltas; observers read snapshots or register a
// change callback.
package progress
