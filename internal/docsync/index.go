package docsync

import "context"

// VectorIndex is the document store that receives embedded chunks. The index
// name is bound when the implementation is constructed.
type VectorIndex interface {
	// Write stores one document and returns the id the index assigned to it.
	Write(ctx context.Context, doc *Document) (string, error)

	// BulkUpdate merges partial into every listed document. It fails unless
	// every id was updated.
	BulkUpdate(ctx context.Context, ids []string, partial map[string]any) error

	// BulkDelete removes every listed document. It fails unless every id was
	// deleted.
	BulkDelete(ctx context.Context, ids []string) error
}
