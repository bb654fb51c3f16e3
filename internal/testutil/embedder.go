package testutil

import (
	"context"
	"sync"
)

// FakeEmbedder returns a deterministic vector derived from the text length.
type FakeEmbedder struct {
	mu    sync.Mutex
	calls int

	// Err, when set, is consulted before every call.
	Err func(text string) error
}

func (e *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		if err := e.Err(text); err != nil {
			return nil, err
		}
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

// Calls returns how many times Embed was invoked.
func (e *FakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
