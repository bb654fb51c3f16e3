package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"docsync/internal/docsync"
)

// LineExtractor reads a file from disk and yields one chunk per non-empty line.
type LineExtractor struct {
	mu    sync.Mutex
	calls map[string]int

	// Err, when set, fails extraction of matching paths.
	Err func(path string) error
}

func (e *LineExtractor) Extract(ctx context.Context, path string) ([]docsync.Chunk, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[path]++
	e.mu.Unlock()

	if e.Err != nil {
		if err := e.Err(path); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docsync.ErrExtraction, err)
	}

	var chunks []docsync.Chunk
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		chunks = append(chunks, docsync.Chunk{Text: line, Source: path, FromLine: i + 1, ToLine: i + 1})
	}
	return chunks, nil
}

// Calls returns how many times path was extracted.
func (e *LineExtractor) Calls(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[path]
}

// StaticExtractor returns a fixed set of chunks for every path.
type StaticExtractor struct {
	Chunks []string
}

func (e *StaticExtractor) Extract(_ context.Context, path string) ([]docsync.Chunk, error) {
	chunks := make([]docsync.Chunk, len(e.Chunks))
	for i, text := range e.Chunks {
		chunks[i] = docsync.Chunk{Text: text, Source: path, FromLine: i + 1, ToLine: i + 1}
	}
	return chunks, nil
}
