package testutil

import (
	"context"
	"fmt"
	"sync"

	"docsync/internal/docsync"
)

// FakeIndex is an in-memory VectorIndex. Safe for concurrent use.
type FakeIndex struct {
	mu      sync.Mutex
	counter int
	docs    map[string]*docsync.Document

	// WriteErr, when set, is consulted before every Write. Returning a
	// non-nil error fails that write.
	WriteErr func(doc *docsync.Document) error
	// UpdateErr and DeleteErr fail every BulkUpdate or BulkDelete call.
	UpdateErr error
	DeleteErr error

	Writes  int
	Updates [][]string
	Deletes [][]string
}

// NewFakeIndex creates an empty FakeIndex.
func NewFakeIndex() *FakeIndex {
	return &FakeIndex{docs: make(map[string]*docsync.Document)}
}

func (f *FakeIndex) Write(_ context.Context, doc *docsync.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteErr != nil {
		if err := f.WriteErr(doc); err != nil {
			return "", err
		}
	}
	f.counter++
	f.Writes++
	id := fmt.Sprintf("doc-%d", f.counter)
	f.docs[id] = doc
	return id, nil
}

func (f *FakeIndex) BulkUpdate(_ context.Context, ids []string, partial map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Updates = append(f.Updates, append([]string(nil), ids...))
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	meta, _ := partial["metadata"].(map[string]any)
	for _, id := range ids {
		doc, ok := f.docs[id]
		if !ok {
			return &docsync.BulkError{Op: "update", Failed: 1, Total: len(ids), Reason: "missing " + id}
		}
		merged := make(map[string]any, len(doc.Metadata)+len(meta))
		for k, v := range doc.Metadata {
			merged[k] = v
		}
		for k, v := range meta {
			merged[k] = v
		}
		doc.Metadata = merged
	}
	return nil
}

func (f *FakeIndex) BulkDelete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Deletes = append(f.Deletes, append([]string(nil), ids...))
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

// Get returns the stored document for id, or nil.
func (f *FakeIndex) Get(id string) *docsync.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

// Len returns the number of stored documents.
func (f *FakeIndex) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// Sources returns the number of stored documents per metadata source.
func (f *FakeIndex) Sources() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]int)
	for _, doc := range f.docs {
		src, _ := doc.Metadata["source"].(string)
		out[src]++
	}
	return out
}
