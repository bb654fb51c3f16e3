package index

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"docsync/internal/docsync"
)

// Chromem is an embedded vector index, in memory or persisted to a
// directory. Metadata is flattened to dotted string keys since chromem only
// stores strings.
type Chromem struct {
	db  *chromem.DB
	col *chromem.Collection

	// serializes read-modify-write updates
	mu sync.Mutex
}

// NewChromem opens the collection name. An empty persistPath keeps the index
// in memory.
func NewChromem(persistPath string, compress bool, name string) (*Chromem, error) {
	var db *chromem.DB
	if persistPath == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db at %s: %w", persistPath, err)
		}
	}

	// Documents always carry their vector, so the embedding func is never used.
	col, err := db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening chromem collection %s: %w", name, err)
	}
	return &Chromem{db: db, col: col}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: documents must be written with a vector")
}

func (c *Chromem) Write(ctx context.Context, doc *docsync.Document) (string, error) {
	id := uuid.NewString()
	err := c.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   doc.Text,
		Metadata:  FlattenMetadata(doc.Metadata),
		Embedding: doc.Vector,
	})
	if err != nil {
		return "", fmt.Errorf("chromem: adding document: %w", err)
	}
	return id, nil
}

func (c *Chromem) BulkUpdate(ctx context.Context, ids []string, partial map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	md := metadataOf(partial)
	changes := FlattenMetadata(md)
	failed := 0
	var reason string
	var docs []chromem.Document
	for _, id := range ids {
		doc, err := c.col.GetByID(ctx, id)
		if err != nil {
			failed++
			if reason == "" {
				reason = err.Error()
			}
			continue
		}
		doc.Metadata = mergeFlat(doc.Metadata, md, changes)
		docs = append(docs, doc)
	}
	if failed > 0 {
		return &docsync.BulkError{Op: "update", Failed: failed, Total: len(ids), Reason: reason}
	}
	if len(docs) == 0 {
		return nil
	}
	if err := c.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &docsync.BulkError{Op: "update", Failed: len(ids), Total: len(ids), Reason: err.Error()}
	}
	return nil
}

func (c *Chromem) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return &docsync.BulkError{Op: "delete", Failed: len(ids), Total: len(ids), Reason: err.Error()}
	}
	return nil
}

// Count returns the number of documents in the collection.
func (c *Chromem) Count() int {
	return c.col.Count()
}

// Get returns the flattened metadata and text of one document.
func (c *Chromem) Get(ctx context.Context, id string) (map[string]string, string, error) {
	doc, err := c.col.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return doc.Metadata, doc.Content, nil
}

// metadataOf extracts the "metadata" object of a partial document update.
func metadataOf(partial map[string]any) map[string]any {
	md, _ := partial["metadata"].(map[string]any)
	return md
}

// mergeFlat drops every key in current that lives under a top-level key of
// partial, then adds changes, the flattened form of partial.
func mergeFlat(current map[string]string, partial map[string]any, changes map[string]string) map[string]string {
	replaced := make(map[string]bool, len(partial))
	for k := range partial {
		replaced[k] = true
	}

	merged := make(map[string]string, len(current)+len(changes))
	for k, v := range current {
		top, _, _ := strings.Cut(k, ".")
		if !replaced[top] {
			merged[k] = v
		}
	}
	for k, v := range changes {
		merged[k] = v
	}
	return merged
}

// FlattenMetadata renders nested metadata as dotted string keys. Lists are
// JSON encoded.
func FlattenMetadata(md map[string]any) map[string]string {
	out := make(map[string]string)
	flatten("", md, out)
	return out
}

func flatten(prefix string, md map[string]any, out map[string]string) {
	for k, v := range md {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		case nil:
		case []any, []string:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[key] = string(b)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

var _ docsync.VectorIndex = (*Chromem)(nil)
