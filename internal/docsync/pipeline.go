package docsync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Limits bounds concurrent work within a cycle. Embeddings and IndexWrites are
// shared by every file in flight.
type Limits struct {
	Files       int
	Embeddings  int
	IndexWrites int
}

func (l Limits) normalized() Limits {
	if l.Files < 1 {
		l.Files = 1
	}
	if l.Embeddings < 1 {
		l.Embeddings = 1
	}
	if l.IndexWrites < 1 {
		l.IndexWrites = 1
	}
	return l
}

// Pipeline turns one file into index documents: extract, embed each chunk,
// then write each document to learn its id.
type Pipeline struct {
	extractor Extractor
	embedder  Embedder
	index     VectorIndex
	embedSem  *semaphore.Weighted
	writeSem  *semaphore.Weighted
	recorder  Recorder
	logger    Logger
}

// NewPipeline creates a Pipeline whose embedding and index-write pools are
// sized from limits.
func NewPipeline(extractor Extractor, embedder Embedder, index VectorIndex, limits Limits, recorder Recorder, logger Logger) *Pipeline {
	limits = limits.normalized()
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		embedSem:  semaphore.NewWeighted(int64(limits.Embeddings)),
		writeSem:  semaphore.NewWeighted(int64(limits.IndexWrites)),
		recorder:  recorder,
		logger:    logger,
	}
}

// Run indexes the file described by fp and returns the new document ids in
// chunk order. Either every chunk ends up in the index or none does: when a
// write fails, documents already written for this file are deleted before
// the error is returned.
func (p *Pipeline) Run(ctx context.Context, fp *Fingerprint) ([]string, error) {
	chunks, err := p.extractor.Extract(ctx, fp.Path)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		g.Go(func() error {
			if err := p.writeSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.writeSem.Release(1)

			id, err := p.index.Write(gctx, &Document{
				Text:     c.Text,
				Vector:   vectors[i],
				Metadata: ChunkMetadata(c, fp),
			})
			p.recorder.RecordIndexWrite(gctx, err)
			if err != nil {
				return fmt.Errorf("writing chunk %d: %w", i, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Join(err, p.discard(ctx, ids))
	}

	return ids, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		g.Go(func() error {
			if err := p.embedSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.embedSem.Release(1)

			v, err := p.embedder.Embed(gctx, c.Text)
			p.recorder.RecordEmbedding(gctx, err)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Discard deletes index documents written for a file that will not be
// persisted. It runs even if ctx was cancelled.
func (p *Pipeline) Discard(ctx context.Context, ids []string) error {
	return p.discard(ctx, ids)
}

func (p *Pipeline) discard(ctx context.Context, ids []string) error {
	written := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			written = append(written, id)
		}
	}
	if len(written) == 0 {
		return nil
	}
	if err := p.index.BulkDelete(context.WithoutCancel(ctx), written); err != nil {
		p.logger.Error("orphaned index documents", "count", len(written), "error", err)
		return fmt.Errorf("discarding %d written documents: %w", len(written), err)
	}
	return nil
}

// ChunkMetadata merges a chunk's location with the file attributes that are
// stored on every index document.
func ChunkMetadata(c Chunk, fp *Fingerprint) map[string]any {
	loc := map[string]any{
		"from": c.FromLine,
		"to":   c.ToLine,
	}
	if c.Page > 0 {
		loc["page"] = c.Page
	}

	md := map[string]any{
		"source": c.Source,
		"loc":    loc,
		"mtime":  fp.Mtime.UnixMilli(),
		"size":   fp.Size,
	}
	if fp.ACL != nil {
		md["acl"] = fp.ACL.Map()
	}
	return md
}
