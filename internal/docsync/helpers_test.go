package docsync_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"docsync/internal/docsync"
	"docsync/internal/testutil"
)

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// writeFile creates a file under dir and returns a fingerprint for it with
// the given inode. Times are derived from baseTime so tests control them.
func writeFile(t *testing.T, dir, name, content string, inode uint64) *docsync.Fingerprint {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return &docsync.Fingerprint{
		Path:  path,
		Inode: inode,
		Mtime: baseTime,
		Ctime: baseTime,
		Size:  int64(len(content)),
	}
}

type harness struct {
	store     docsync.MetadataStore
	index     *testutil.FakeIndex
	embedder  *testutil.FakeEmbedder
	extractor *testutil.LineExtractor
	pipeline  *docsync.Pipeline
	rec       *docsync.Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     testutil.NewTestStore(t),
		index:     testutil.NewFakeIndex(),
		embedder:  &testutil.FakeEmbedder{},
		extractor: &testutil.LineExtractor{},
	}
	limits := docsync.Limits{Files: 2, Embeddings: 2, IndexWrites: 2}
	h.pipeline = docsync.NewPipeline(h.extractor, h.embedder, h.index, limits, nil, docsync.NewNopLogger())
	h.rec = docsync.NewReconciler(h.store, h.index, h.pipeline, docsync.NewNopLogger())
	return h
}
