package console

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// Storage buffers lines and persists the whole transcript to an afs URL
// (file://, mem://, gs://, s3:// ...) on Flush.
type Storage struct {
	fs      afs.Service
	URL     string
	mu      sync.Mutex
	lines   []string
	flushed int
}

// NewStorage creates a storage-backed sink for URL.
func NewStorage(fs afs.Service, URL string) *Storage {
	if fs == nil {
		fs = afs.New()
	}
	return &Storage{fs: fs, URL: URL}
}

// WriteLine buffers text until the next Flush.
func (s *Storage) WriteLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, strings.TrimSuffix(text, "\n"))
	return nil
}

// Pending returns the number of lines written since the last Flush.
func (s *Storage) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) - s.flushed
}

// Flush uploads the transcript written so far.
func (s *Storage) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed == len(s.lines) && s.flushed > 0 {
		return nil
	}
	buf := &bytes.Buffer{}
	for _, line := range s.lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := s.fs.Upload(ctx, s.URL, file.DefaultFileOsMode, buf); err != nil {
		return fmt.Errorf("failed to upload console to %s: %w", s.URL, err)
	}
	s.flushed = len(s.lines)
	return nil
}
