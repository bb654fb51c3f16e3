package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"docsync/internal/docsync"
)

// Cached memoizes embeddings by content hash. Unchanged chunks of an edited
// file are not sent to the provider again.
type Cached struct {
	next  docsync.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

// NewCached wraps next with an LRU cache of size entries.
func NewCached(next docsync.Embedder, model string, size int) (*Cached, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, model: model, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.model, text)
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v), nil
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(v))
	return v, nil
}

// Validate forwards to the wrapped embedder when it supports validation.
func (c *Cached) Validate(ctx context.Context) error {
	if v, ok := c.next.(Validator); ok {
		return v.Validate(ctx)
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

var (
	_ docsync.Embedder = (*Cached)(nil)
	_ Validator        = (*Cached)(nil)
)
