package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sink receives diagnostic lines in the order they are written.
type Sink interface {
	WriteLine(text string) error
}

// Printf formats a line and writes it to sink; a nil sink is a no-op.
func Printf(sink Sink, format string, args ...interface{}) error {
	if sink == nil {
		return nil
	}
	return sink.WriteLine(fmt.Sprintf(format, args...))
}

// Memory keeps every line in memory.
type Memory struct {
	mu    sync.Mutex
	lines []string
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// WriteLine appends text.
func (m *Memory) WriteLine(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, text)
	return nil
}

// Lines returns a copy of the lines written so far.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, len(m.lines))
	copy(ret, m.lines)
	return ret
}

// Writer forwards each line, newline terminated, to an io.Writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine writes text followed by a newline.
func (w *Writer) WriteLine(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w.w, text)
	return err
}

// Tee duplicates every line to all sinks; the first error wins but every
// sink is still written.
type Tee []Sink

// WriteLine writes text to all sinks.
func (t Tee) WriteLine(text string) error {
	var first error
	for _, sink := range t {
		if err := sink.WriteLine(text); err != nil && first == nil {
			first = err
		}
	}
	return first
}
