package docsync

import "context"

// Extractor turns a file into text chunks. It returns an error wrapping
// ErrNoExtractor when the file type has no handler and ErrExtraction when the
// file could not be read or parsed.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Chunk, error)
}
