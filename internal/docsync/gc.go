package docsync

import (
	"context"
	"fmt"
)

// GarbageCollector removes files that were not seen in the current generation.
type GarbageCollector struct {
	store  MetadataStore
	index  VectorIndex
	logger Logger
}

// NewGarbageCollector creates a GarbageCollector.
func NewGarbageCollector(store MetadataStore, index VectorIndex, logger Logger) *GarbageCollector {
	return &GarbageCollector{store: store, index: index, logger: logger}
}

// Collect deletes every file record whose generation is not generationID,
// together with its index documents, and returns how many files it removed.
// Records whose inode is in present were scanned this cycle but failed; they
// keep their old state so the next cycle can retry them.
//
// Index documents are deleted first. If that fails the store is not touched.
func (gc *GarbageCollector) Collect(ctx context.Context, generationID string, present map[uint64]struct{}) (int, error) {
	stale, err := gc.store.FindWhereGenerationNot(ctx, generationID)
	if err != nil {
		return 0, fmt.Errorf("finding stale files: %w", err)
	}

	victims := make([]*FileWithDocuments, 0, len(stale))
	for _, f := range stale {
		if _, ok := present[f.File.Inode]; ok {
			continue
		}
		victims = append(victims, f)
	}
	if len(victims) == 0 {
		gc.logger.Debug("no deleted files identified", "retained", len(stale))
		return 0, nil
	}

	var ids []string
	fileIDs := make([]int64, len(victims))
	for i, v := range victims {
		ids = append(ids, v.IndexDocumentIDs()...)
		fileIDs[i] = v.File.ID
		gc.logger.Info("file removed", "path", v.File.Path, "inode", v.File.Inode, "documents", len(v.Documents))
	}

	if len(ids) > 0 {
		if err := gc.index.BulkDelete(ctx, ids); err != nil {
			return 0, fmt.Errorf("deleting %d documents of %d removed files: %w", len(ids), len(victims), err)
		}
	}

	if len(victims) == len(stale) {
		deleted, err := gc.store.DeleteWhereGenerationNot(ctx, generationID)
		if err != nil {
			return 0, fmt.Errorf("deleting stale files: %w", err)
		}
		return len(deleted), nil
	}

	if err := gc.store.DeleteByIDs(ctx, fileIDs); err != nil {
		return 0, fmt.Errorf("deleting stale files: %w", err)
	}
	return len(fileIDs), nil
}
