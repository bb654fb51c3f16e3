package docsync

import (
	"context"
	"errors"
	"fmt"
)

// Reconciler decides, per fingerprint, what work a file needs and carries it
// out against the store and the index.
type Reconciler struct {
	store    MetadataStore
	index    VectorIndex
	pipeline *Pipeline
	logger   Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store MetadataStore, index VectorIndex, pipeline *Pipeline, logger Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		index:    index,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Reconcile brings the stored state of one file in line with fp and stamps it
// with generationID. On error the file is left unstamped and the returned
// action is ActionFailed.
func (r *Reconciler) Reconcile(ctx context.Context, fp *Fingerprint, generationID string) (Action, error) {
	rec, err := r.store.FindByInode(ctx, fp.Inode)
	if err != nil {
		return ActionFailed, fmt.Errorf("finding file by inode: %w", err)
	}

	action := ActionNew
	if rec != nil {
		if rec.Mtime.Equal(fp.Mtime) {
			if rec.Ctime.Equal(fp.Ctime) {
				if err := r.store.UpdateGeneration(ctx, rec.ID, generationID); err != nil {
					return ActionFailed, fmt.Errorf("stamping generation: %w", err)
				}
				return ActionUnchanged, nil
			}
			if err := r.updateAttributes(ctx, rec, fp, generationID); err != nil {
				return ActionFailed, err
			}
			return ActionAttributesChanged, nil
		}

		if err := r.removeContent(ctx, rec); err != nil {
			return ActionFailed, err
		}
		action = ActionContentChanged
	}

	if err := r.indexFile(ctx, fp, generationID); err != nil {
		return ActionFailed, err
	}
	return action, nil
}

// updateAttributes pushes the current ACL to every document of the file
// without re-embedding anything. An ACL that failed to resolve never
// overwrites the indexed one.
func (r *Reconciler) updateAttributes(ctx context.Context, rec *FileRecord, fp *Fingerprint, generationID string) error {
	if fp.ACLUnresolved {
		return fmt.Errorf("inode %d: %w", fp.Inode, ErrACLUnavailable)
	}
	file, err := r.store.FindByID(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	if file == nil {
		return fmt.Errorf("file %d for inode %d: %w", rec.ID, fp.Inode, ErrUnexpectedState)
	}

	if ids := file.IndexDocumentIDs(); len(ids) > 0 && fp.ACL != nil {
		partial := map[string]any{
			"metadata": map[string]any{"acl": fp.ACL.Map()},
		}
		if err := r.index.BulkUpdate(ctx, ids, partial); err != nil {
			return fmt.Errorf("updating attributes of %d documents: %w", len(ids), err)
		}
	}

	if err := r.store.UpdateCtime(ctx, rec.ID, fp.Ctime); err != nil {
		return fmt.Errorf("updating ctime: %w", err)
	}
	if err := r.store.UpdateGeneration(ctx, rec.ID, generationID); err != nil {
		return fmt.Errorf("stamping generation: %w", err)
	}
	return nil
}

// removeContent deletes the documents of a file from the index and then the
// file itself from the store. The store is untouched if the index delete fails.
func (r *Reconciler) removeContent(ctx context.Context, rec *FileRecord) error {
	file, err := r.store.FindByID(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	if file == nil {
		return fmt.Errorf("file %d for inode %d: %w", rec.ID, rec.Inode, ErrUnexpectedState)
	}

	if ids := file.IndexDocumentIDs(); len(ids) > 0 {
		if err := r.index.BulkDelete(ctx, ids); err != nil {
			return fmt.Errorf("deleting %d stale documents: %w", len(ids), err)
		}
	}

	if err := r.store.DeleteByID(ctx, rec.ID); err != nil {
		return fmt.Errorf("deleting stale file record: %w", err)
	}
	return nil
}

// indexFile runs the pipeline and persists the file with its documents. If the
// store rejects the insert the new documents are removed from the index again.
func (r *Reconciler) indexFile(ctx context.Context, fp *Fingerprint, generationID string) error {
	ids, err := r.pipeline.Run(ctx, fp)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	_, err = r.store.InsertFileWithDocuments(ctx, &FileRecord{
		Inode:        fp.Inode,
		Mtime:        fp.Mtime,
		Ctime:        fp.Ctime,
		GenerationID: generationID,
		Path:         fp.Path,
		Size:         fp.Size,
	}, ids)
	if err != nil {
		err = fmt.Errorf("persisting file: %w", err)
		return errors.Join(err, r.pipeline.Discard(ctx, ids))
	}
	return nil
}
