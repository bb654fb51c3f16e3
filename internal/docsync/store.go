package docsync

import (
	"context"
	"time"
)

// MetadataStore remembers which files were indexed and which index documents
// each one produced. Every method is atomic. Lookups that find nothing return
// nil and no error.
type MetadataStore interface {
	// FindByInode returns the file record for an inode.
	FindByInode(ctx context.Context, inode uint64) (*FileRecord, error)

	// FindByID returns a file record together with its documents.
	FindByID(ctx context.Context, id int64) (*FileWithDocuments, error)

	// Insert creates a file record and returns its id. Inode must be unique.
	Insert(ctx context.Context, rec *FileRecord) (int64, error)

	// InsertDocuments records index documents for a file, in chunk order.
	InsertDocuments(ctx context.Context, fileID int64, indexDocumentIDs []string) error

	// InsertFileWithDocuments runs Insert and InsertDocuments in one transaction.
	InsertFileWithDocuments(ctx context.Context, rec *FileRecord, indexDocumentIDs []string) (int64, error)

	// UpdateGeneration stamps a file record with a generation.
	UpdateGeneration(ctx context.Context, id int64, generationID string) error

	// UpdateCtime persists a new change time for a file record.
	UpdateCtime(ctx context.Context, id int64, ctime time.Time) error

	// DeleteByID deletes a file record and its documents.
	DeleteByID(ctx context.Context, id int64) error

	// DeleteByIDs deletes several file records and their documents in one transaction.
	DeleteByIDs(ctx context.Context, ids []int64) error

	// FindWhereGenerationNot returns every file record, with documents, whose
	// generation differs from generationID.
	FindWhereGenerationNot(ctx context.Context, generationID string) ([]*FileWithDocuments, error)

	// DeleteWhereGenerationNot deletes every file record whose generation
	// differs from generationID and returns what it deleted.
	DeleteWhereGenerationNot(ctx context.Context, generationID string) ([]*FileWithDocuments, error)
}

// CycleStore keeps the history of sync cycles.
type CycleStore interface {
	// StartCycle records a running cycle and returns its id.
	StartCycle(ctx context.Context, generationID string, startedAt time.Time) (int64, error)

	// FinishCycle stores the final state of a cycle.
	FinishCycle(ctx context.Context, report *CycleReport) error

	// ListCycles returns the most recent cycles, newest first.
	ListCycles(ctx context.Context, limit int) ([]*CycleReport, error)
}

// StoreStats is a point-in-time count of store contents.
type StoreStats struct {
	Files     int64
	Documents int64
}
