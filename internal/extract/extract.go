// Package extract turns supported files into text chunks ready for embedding.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"docsync/internal/config"
	"docsync/internal/docsync"
)

// Section is a unit of text produced by a Loader before splitting. Page is
// 1-based for paged formats and zero otherwise.
type Section struct {
	Text string
	Page int
}

// Loader reads one file format.
type Loader interface {
	Load(ctx context.Context, path string) ([]Section, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) ([]Section, error)

func (f LoaderFunc) Load(ctx context.Context, path string) ([]Section, error) { return f(ctx, path) }

// Registry dispatches files to loaders by extension and splits the result.
type Registry struct {
	loaders  map[string]Loader
	splitter *Splitter
}

// NewRegistry creates a Registry with no loaders.
func NewRegistry(splitter *Splitter) *Registry {
	return &Registry{loaders: make(map[string]Loader), splitter: splitter}
}

// NewDefaultRegistry creates a Registry with every built-in loader.
func NewDefaultRegistry(splitter *Splitter) *Registry {
	r := NewRegistry(splitter)
	r.Register(LoaderFunc(loadText), ".txt", ".md")
	r.Register(LoaderFunc(loadCSV), ".csv")
	r.Register(LoaderFunc(loadPDF), ".pdf")
	r.Register(LoaderFunc(loadDocx), ".docx")
	r.Register(LoaderFunc(loadXLSX), ".xlsx")
	return r
}

// NewFromConfig builds the default registry with a splitter from cfg.
func NewFromConfig(cfg config.ChunkingConfig) (*Registry, error) {
	length := CharLength
	if cfg.Length == "tokens" {
		var err error
		length, err = TokenLength(cfg.Encoding)
		if err != nil {
			return nil, err
		}
	}
	splitter, err := NewSplitter(cfg.Size, cfg.Overlap, length)
	if err != nil {
		return nil, err
	}
	return NewDefaultRegistry(splitter), nil
}

// Register associates loader with each extension, replacing any previous one.
func (r *Registry) Register(loader Loader, extensions ...string) {
	for _, ext := range extensions {
		r.loaders[strings.ToLower(ext)] = loader
	}
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Supports reports whether a loader is registered for ext.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.loaders[strings.ToLower(ext)]
	return ok
}

// Extract loads path with the loader for its extension and splits every
// section into chunks.
func (r *Registry) Extract(ctx context.Context, path string) ([]docsync.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", docsync.ErrNoExtractor, ext)
	}

	sections, err := loader.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", docsync.ErrExtraction, path, err)
	}

	var chunks []docsync.Chunk
	for _, s := range sections {
		for _, piece := range r.splitter.Split(s.Text) {
			chunks = append(chunks, docsync.Chunk{
				Text:     piece.Text,
				Source:   path,
				Page:     s.Page,
				FromLine: piece.FromLine,
				ToLine:   piece.ToLine,
			})
		}
	}
	return chunks, nil
}

var _ docsync.Extractor = (*Registry)(nil)
