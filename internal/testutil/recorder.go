package testutil

import (
	"context"
	"sync"

	"docsync/internal/docsync"
)

// FakeRecorder counts recorded events.
type FakeRecorder struct {
	mu           sync.Mutex
	Cycles       []*docsync.CycleReport
	DroppedTicks int
	Embeddings   int
	IndexWrites  int
}

func (r *FakeRecorder) RecordCycle(_ context.Context, report *docsync.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *report
	r.Cycles = append(r.Cycles, &cp)
}

func (r *FakeRecorder) RecordDroppedTick(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DroppedTicks++
}

func (r *FakeRecorder) RecordEmbedding(context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Embeddings++
}

func (r *FakeRecorder) RecordIndexWrite(context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IndexWrites++
}

// Dropped returns the dropped tick count.
func (r *FakeRecorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.DroppedTicks
}
