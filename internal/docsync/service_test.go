package docsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docsync/internal/database"
	"docsync/internal/docsync"
	"docsync/internal/testutil"
)

type serviceHarness struct {
	store     *database.SQLiteStore
	scanner   *testutil.StaticScanner
	index     *testutil.FakeIndex
	embedder  *testutil.FakeEmbedder
	extractor *testutil.LineExtractor
	recorder  *testutil.FakeRecorder
	snapshots *countingSnapshotter
	ids       *testutil.StubIDGenerator
	svc       *docsync.Service
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	h := &serviceHarness{
		store:     testutil.NewTestStore(t),
		scanner:   testutil.NewStaticScanner(),
		index:     testutil.NewFakeIndex(),
		embedder:  &testutil.FakeEmbedder{},
		extractor: &testutil.LineExtractor{},
		recorder:  &testutil.FakeRecorder{},
		snapshots: &countingSnapshotter{},
		ids:       testutil.NewStubIDGenerator(),
	}
	clock := testutil.FixedClock()
	clock.Step = time.Second
	h.svc = docsync.NewService("/data", docsync.Limits{Files: 3, Embeddings: 2, IndexWrites: 2}, docsync.Dependencies{
		Store:       h.store,
		Cycles:      h.store,
		Scanner:     h.scanner,
		Extractor:   h.extractor,
		Embedder:    h.embedder,
		Index:       h.index,
		Snapshotter: h.snapshots,
		Recorder:    h.recorder,
		Clock:       clock,
		IDGen:       h.ids,
	})
	return h
}

type countingSnapshotter struct {
	mu    sync.Mutex
	calls []string
}

func (s *countingSnapshotter) Snapshot(_ context.Context, r *docsync.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, r.GenerationID)
	return nil
}

func TestService_RunCycle(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	dir := t.TempDir()

	a := writeFile(t, dir, "a.txt", "alpha\nbeta\n", 1)
	b := writeFile(t, dir, "b.txt", "gamma\n", 2)
	h.scanner.Set(a, b)

	report, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}
	if report.GenerationID != "gen-1" || report.Status != docsync.CycleSucceeded {
		t.Errorf("report = %s/%s, want gen-1/succeeded", report.GenerationID, report.Status)
	}
	if report.Duration() <= 0 {
		t.Errorf("Duration() = %v, want positive", report.Duration())
	}
	if h.ids.Last() != report.GenerationID {
		t.Errorf("Last() = %s, want %s", h.ids.Last(), report.GenerationID)
	}
	if report.Scanned != 2 || report.New != 2 || report.Removed != 0 {
		t.Errorf("first cycle counts = %+v", report)
	}
	if got := h.index.Sources(); got[a.Path] != 2 || got[b.Path] != 1 {
		t.Errorf("indexed sources = %v", got)
	}

	// a.txt is rewritten and b.txt is deleted.
	a = writeFile(t, dir, "a.txt", "alpha\nbeta\ndelta\n", 1)
	a.Mtime = a.Mtime.Add(time.Minute)
	h.scanner.Set(a)

	report, err = h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if report.GenerationID != "gen-2" {
		t.Errorf("GenerationID = %s, want gen-2", report.GenerationID)
	}
	if report.Scanned != 1 || report.Changed != 1 || report.Removed != 1 {
		t.Errorf("second cycle counts = %+v", report)
	}
	got := h.index.Sources()
	if len(got) != 1 || got[a.Path] != 3 {
		t.Errorf("indexed sources = %v, want only a.txt with 3 documents", got)
	}

	st, _ := h.store.Stats(ctx)
	if st.Files != 1 || st.Documents != 3 {
		t.Errorf("Stats() = %+v, want 1 file and 3 documents", st)
	}
	rec, _ := h.store.FindByInode(ctx, 1)
	if rec.GenerationID != "gen-2" {
		t.Errorf("a.txt generation = %s, want gen-2", rec.GenerationID)
	}

	// Nothing changes in the third cycle.
	embeds := h.embedder.Calls()
	writes, updates, deletes := h.index.Writes, len(h.index.Updates), len(h.index.Deletes)
	report, err = h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("third RunCycle() error = %v", err)
	}
	if report.Unchanged != 1 || h.embedder.Calls() != embeds {
		t.Errorf("idle cycle did work: %+v, %d embeddings", report, h.embedder.Calls()-embeds)
	}
	if h.index.Writes != writes || len(h.index.Updates) != updates || len(h.index.Deletes) != deletes {
		t.Errorf("idle cycle touched the index: writes %d->%d, updates %d->%d, deletes %d->%d",
			writes, h.index.Writes, updates, len(h.index.Updates), deletes, len(h.index.Deletes))
	}
	if idle, _ := h.store.Stats(ctx); idle != st {
		t.Errorf("idle cycle Stats() = %+v, want %+v", idle, st)
	}

	cycles, err := h.store.ListCycles(ctx, 10)
	if err != nil {
		t.Fatalf("ListCycles() error = %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("cycles = %d, want 3", len(cycles))
	}
	if cycles[1].GenerationID != "gen-2" || cycles[1].Status != docsync.CycleSucceeded || cycles[1].Removed != 1 {
		t.Errorf("cycle history entry = %+v", cycles[1])
	}
	if len(h.recorder.Cycles) != 3 {
		t.Errorf("recorded cycles = %d, want 3", len(h.recorder.Cycles))
	}
	if len(h.snapshots.calls) != 3 {
		t.Errorf("snapshots = %v, want one per successful cycle", h.snapshots.calls)
	}
}

func TestService_HardLinks(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	dir := t.TempDir()

	a := writeFile(t, dir, "a.txt", "shared\n", 7)
	link := *a
	link.Path = dir + "/link.txt"
	h.scanner.Set(a, &link)

	report, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Scanned != 1 || report.New != 1 {
		t.Errorf("report = %+v, want one new file", report)
	}
	if h.extractor.Calls(link.Path) != 0 {
		t.Error("second hard link was extracted")
	}
	if h.index.Len() != 1 {
		t.Errorf("index holds %d documents, want 1", h.index.Len())
	}
}

func TestService_FailedFileIsRetained(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	dir := t.TempDir()

	a := writeFile(t, dir, "a.txt", "alpha\n", 1)
	b := writeFile(t, dir, "b.txt", "beta\n", 2)
	h.scanner.Set(a, b)
	if _, err := h.svc.RunCycle(ctx); err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}

	h.index.UpdateErr = errors.New("index unavailable")
	a.Ctime = a.Ctime.Add(time.Minute)
	a.ACL = &docsync.ACL{Allowed: []string{"S-1-1-0"}}
	h.scanner.Set(a, b)

	report, err := h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if report.Failed != 1 || report.Unchanged != 1 || report.Removed != 0 {
		t.Errorf("report = %+v", report)
	}
	rec, _ := h.store.FindByInode(ctx, 1)
	if rec == nil {
		t.Fatal("failed file was garbage collected")
	}
	if rec.GenerationID != "gen-1" {
		t.Errorf("failed file generation = %s, want gen-1", rec.GenerationID)
	}

	h.index.UpdateErr = nil
	report, err = h.svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("third RunCycle() error = %v", err)
	}
	if report.AttrsChanged != 1 {
		t.Errorf("retry report = %+v, want one attribute change", report)
	}
}

func TestService_Cancelled(t *testing.T) {
	h := newServiceHarness(t)
	dir := t.TempDir()
	h.scanner.Set(writeFile(t, dir, "a.txt", "alpha\n", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.svc.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunCycle() error = %v, want context.Canceled", err)
	}
	if report.Status != docsync.CycleCancelled {
		t.Errorf("Status = %s, want %s", report.Status, docsync.CycleCancelled)
	}
	if len(h.snapshots.calls) != 0 {
		t.Error("snapshot taken for a cancelled cycle")
	}

	cycles, _ := h.store.ListCycles(context.Background(), 1)
	if len(cycles) != 1 || cycles[0].Status != docsync.CycleCancelled {
		t.Errorf("cycle history = %+v", cycles)
	}
}

func TestService_ScanFailure(t *testing.T) {
	h := newServiceHarness(t)
	h.scanner.Err = errors.New("root missing")

	report, err := h.svc.RunCycle(context.Background())
	if err == nil {
		t.Fatal("RunCycle() expected error")
	}
	if report.Status != docsync.CycleFailed || report.Error == "" {
		t.Errorf("report = %+v, want failed with error", report)
	}
}
