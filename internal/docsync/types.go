package docsync

import (
	"time"
)

// ACL is the set of security identifiers allowed and denied read access to a
// file. Either set may be empty.
type ACL struct {
	Allowed []string
	Denied  []string
}

// Map renders the ACL as index document metadata.
func (a *ACL) Map() map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"allowed": stringsToAny(a.Allowed),
		"denied":  stringsToAny(a.Denied),
	}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// Fingerprint is the scanned state of one file at one point in time.
// It is never persisted as-is.
type Fingerprint struct {
	Path  string
	Inode uint64
	Mtime time.Time
	Ctime time.Time
	Size  int64
	ACL   *ACL // nil when ACL resolution is disabled or failed

	// ACLUnresolved is set when an ACL lookup was attempted and failed.
	ACLUnresolved bool
}

// FileRecord is the persisted state of a file as of the last cycle that
// successfully processed it.
type FileRecord struct {
	ID           int64
	Inode        uint64
	Mtime        time.Time
	Ctime        time.Time
	GenerationID string
	Path         string
	Size         int64
}

// DocumentRecord links one index document to the file it was produced from.
type DocumentRecord struct {
	ID              int64
	IndexDocumentID string
	FileID          int64
	ChunkIndex      int
}

// FileWithDocuments is a FileRecord together with its documents in chunk order.
type FileWithDocuments struct {
	File      *FileRecord
	Documents []*DocumentRecord
}

// IndexDocumentIDs returns the index ids of all documents of the file.
func (f *FileWithDocuments) IndexDocumentIDs() []string {
	ids := make([]string, len(f.Documents))
	for i, d := range f.Documents {
		ids[i] = d.IndexDocumentID
	}
	return ids
}

// Chunk is a bounded piece of extracted text with its location in the source.
type Chunk struct {
	Text     string
	Source   string
	Page     int // 1-based for paged sources, 0 otherwise
	FromLine int
	ToLine   int
}

// Document is what gets written to the vector index for a single chunk.
type Document struct {
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// Action is the outcome of reconciling one fingerprint.
type Action string

const (
	ActionNew               Action = "new"
	ActionUnchanged         Action = "unchanged"
	ActionAttributesChanged Action = "attributes_changed"
	ActionContentChanged    Action = "content_changed"
	ActionFailed            Action = "failed"
)

// CycleStatus is the terminal state of a sync cycle.
type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleSucceeded CycleStatus = "succeeded"
	CycleFailed    CycleStatus = "failed"
	CycleCancelled CycleStatus = "cancelled"
)

// CycleReport summarizes one sync cycle.
type CycleReport struct {
	ID           int64
	GenerationID string
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       CycleStatus
	Scanned      int
	New          int
	Unchanged    int
	AttrsChanged int
	Changed      int
	Failed       int
	Removed      int
	Error        string
}

// Duration returns how long the cycle ran.
func (r *CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *CycleReport) count(a Action) {
	switch a {
	case ActionNew:
		r.New++
	case ActionUnchanged:
		r.Unchanged++
	case ActionAttributesChanged:
		r.AttrsChanged++
	case ActionContentChanged:
		r.Changed++
	case ActionFailed:
		r.Failed++
	}
}
