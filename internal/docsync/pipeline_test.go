package docsync_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"docsync/internal/docsync"
	"docsync/internal/testutil"
)

func TestChunkMetadata(t *testing.T) {
	fp := &docsync.Fingerprint{
		Path:  "/data/report.pdf",
		Mtime: time.UnixMilli(1700000000123),
		Size:  2048,
	}

	t.Run("without page or acl", func(t *testing.T) {
		md := docsync.ChunkMetadata(docsync.Chunk{Source: fp.Path, FromLine: 3, ToLine: 9}, fp)

		if md["source"] != "/data/report.pdf" {
			t.Errorf("source = %v", md["source"])
		}
		loc := md["loc"].(map[string]any)
		if loc["from"] != 3 || loc["to"] != 9 {
			t.Errorf("loc = %v", loc)
		}
		if _, ok := loc["page"]; ok {
			t.Error("loc has page for a non-paged chunk")
		}
		if md["mtime"] != int64(1700000000123) || md["size"] != int64(2048) {
			t.Errorf("mtime, size = %v, %v", md["mtime"], md["size"])
		}
		if _, ok := md["acl"]; ok {
			t.Error("acl present without resolver data")
		}
	})

	t.Run("with page and acl", func(t *testing.T) {
		withACL := *fp
		withACL.ACL = &docsync.ACL{Allowed: []string{"a"}}
		md := docsync.ChunkMetadata(docsync.Chunk{Source: fp.Path, Page: 2, FromLine: 1, ToLine: 4}, &withACL)

		if md["loc"].(map[string]any)["page"] != 2 {
			t.Errorf("page = %v, want 2", md["loc"])
		}
		acl := md["acl"].(map[string]any)
		if len(acl["allowed"].([]any)) != 1 || len(acl["denied"].([]any)) != 0 {
			t.Errorf("acl = %v", acl)
		}
	})
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ids in chunk order", func(t *testing.T) {
		var texts []string
		for i := range 20 {
			texts = append(texts, fmt.Sprintf("chunk %d %s", i, strings.Repeat("x", i)))
		}
		index := testutil.NewFakeIndex()
		rec := &testutil.FakeRecorder{}
		p := docsync.NewPipeline(&testutil.StaticExtractor{Chunks: texts}, &testutil.FakeEmbedder{}, index,
			docsync.Limits{Embeddings: 4, IndexWrites: 3}, rec, docsync.NewNopLogger())

		ids, err := p.Run(ctx, &docsync.Fingerprint{Path: "/data/a.txt"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(ids) != len(texts) {
			t.Fatalf("len(ids) = %d, want %d", len(ids), len(texts))
		}
		for i, id := range ids {
			doc := index.Get(id)
			if doc.Text != texts[i] {
				t.Errorf("ids[%d] -> %q, want %q", i, doc.Text, texts[i])
			}
			if doc.Vector[0] != float32(len(texts[i])) {
				t.Errorf("ids[%d] carries the vector of another chunk", i)
			}
		}
		if rec.Embeddings != 20 || rec.IndexWrites != 20 {
			t.Errorf("recorded %d embeddings and %d writes, want 20 each", rec.Embeddings, rec.IndexWrites)
		}
	})

	t.Run("empty file yields no documents", func(t *testing.T) {
		index := testutil.NewFakeIndex()
		p := docsync.NewPipeline(&testutil.StaticExtractor{}, &testutil.FakeEmbedder{}, index,
			docsync.Limits{}, nil, docsync.NewNopLogger())

		ids, err := p.Run(ctx, &docsync.Fingerprint{Path: "/data/empty.txt"})
		if err != nil || len(ids) != 0 {
			t.Errorf("Run() = %v, %v; want no ids", ids, err)
		}
	})

	t.Run("cancelled context stops embedding", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		embedder := &testutil.FakeEmbedder{}
		index := testutil.NewFakeIndex()
		p := docsync.NewPipeline(&testutil.StaticExtractor{Chunks: []string{"a", "b"}}, embedder, index,
			docsync.Limits{}, nil, docsync.NewNopLogger())

		if _, err := p.Run(cctx, &docsync.Fingerprint{Path: "/data/a.txt"}); err == nil {
			t.Fatal("Run() expected error for cancelled context")
		}
		if index.Len() != 0 {
			t.Errorf("index holds %d documents, want 0", index.Len())
		}
	})
}
