package docsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dependencies are the collaborators a Service is built from. Cycles,
// Snapshotter and Recorder are optional.
type Dependencies struct {
	Store       MetadataStore
	Cycles      CycleStore
	Scanner     Scanner
	Extractor   Extractor
	Embedder    Embedder
	Index       VectorIndex
	Snapshotter Snapshotter
	Recorder    Recorder
	Logger      Logger
	Clock       Clock
	IDGen       IDGenerator
}

// Service runs sync cycles: scan, reconcile every file, then collect garbage.
// A Service must not run two cycles at once; Scheduler enforces that.
type Service struct {
	root        string
	limits      Limits
	store       MetadataStore
	cycles      CycleStore
	scanner     Scanner
	reconciler  *Reconciler
	gc          *GarbageCollector
	snapshotter Snapshotter
	recorder    Recorder
	logger      Logger
	clock       Clock
	idgen       IDGenerator
}

// NewService creates a Service that keeps the index in sync with root.
func NewService(root string, limits Limits, deps Dependencies) *Service {
	limits = limits.normalized()
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.IDGen == nil {
		deps.IDGen = UUIDGenerator{}
	}

	pipeline := NewPipeline(deps.Extractor, deps.Embedder, deps.Index, limits, deps.Recorder, deps.Logger)
	return &Service{
		root:        root,
		limits:      limits,
		store:       deps.Store,
		cycles:      deps.Cycles,
		scanner:     deps.Scanner,
		reconciler:  NewReconciler(deps.Store, deps.Index, pipeline, deps.Logger),
		gc:          NewGarbageCollector(deps.Store, deps.Index, deps.Logger),
		snapshotter: deps.Snapshotter,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		clock:       deps.Clock,
		idgen:       deps.IDGen,
	}
}

// RunCycle mints a generation and runs one full sync cycle. Per-file failures
// are logged and counted in the report; the returned error is non-nil only
// when the cycle as a whole failed or was cancelled.
func (s *Service) RunCycle(ctx context.Context) (*CycleReport, error) {
	gen := s.idgen.New()
	report := &CycleReport{
		GenerationID: gen,
		StartedAt:    s.clock.Now(),
		Status:       CycleRunning,
	}
	log := s.logger.With("generation", gen)
	log.Info("sync cycle started", "root", s.root)

	// Bookkeeping writes ignore cancellation so that a cycle interrupted by
	// shutdown still lands in history.
	bookCtx := context.WithoutCancel(ctx)
	if s.cycles != nil {
		id, err := s.cycles.StartCycle(bookCtx, gen, report.StartedAt)
		if err != nil {
			log.Warn("recording cycle start failed", "error", err)
		}
		report.ID = id
	}

	err := s.run(ctx, log, report)

	report.FinishedAt = s.clock.Now()
	switch {
	case err == nil:
		report.Status = CycleSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		report.Status = CycleCancelled
		report.Error = err.Error()
	default:
		report.Status = CycleFailed
		report.Error = err.Error()
	}

	if s.cycles != nil && report.ID != 0 {
		if ferr := s.cycles.FinishCycle(bookCtx, report); ferr != nil {
			log.Warn("recording cycle finish failed", "error", ferr)
		}
	}
	s.recorder.RecordCycle(bookCtx, report)

	if report.Status == CycleSucceeded && s.snapshotter != nil {
		if serr := s.snapshotter.Snapshot(bookCtx, report); serr != nil {
			log.Error("metadata snapshot failed", "error", serr)
		}
	}

	log.Info("sync cycle finished",
		"status", report.Status,
		"duration", report.Duration(),
		"scanned", report.Scanned,
		"new", report.New,
		"unchanged", report.Unchanged,
		"attrs_changed", report.AttrsChanged,
		"changed", report.Changed,
		"failed", report.Failed,
		"removed", report.Removed,
	)
	return report, err
}

func (s *Service) run(ctx context.Context, log Logger, report *CycleReport) error {
	scanned, err := s.scanner.Scan(ctx, s.root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", s.root, err)
	}
	fps := dedupeInodes(scanned, log)
	report.Scanned = len(fps)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.limits.Files)
	for i, fp := range fps {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			flog := log.With("path", fp.Path, "inode", fp.Inode)
			flog.Debug("handling file", "n", i+1, "of", len(fps))

			action, err := s.reconciler.Reconcile(ctx, fp, report.GenerationID)
			if err != nil {
				flog.Error("file skipped", "error", err)
			} else {
				flog.Debug("file reconciled", "action", action)
			}

			mu.Lock()
			report.count(action)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("cycle cancelled, skipping garbage collection")
		return err
	}

	present := make(map[uint64]struct{}, len(fps))
	for _, fp := range fps {
		present[fp.Inode] = struct{}{}
	}
	removed, err := s.gc.Collect(ctx, report.GenerationID, present)
	if err != nil {
		return fmt.Errorf("garbage collection: %w", err)
	}
	report.Removed = removed
	return nil
}

// dedupeInodes keeps the first fingerprint of every inode so hard links are
// reconciled once per cycle.
func dedupeInodes(fps []*Fingerprint, log Logger) []*Fingerprint {
	seen := make(map[uint64]string, len(fps))
	out := make([]*Fingerprint, 0, len(fps))
	for _, fp := range fps {
		if first, ok := seen[fp.Inode]; ok {
			log.Debug("hard link skipped", "path", fp.Path, "inode", fp.Inode, "indexed_as", first)
			continue
		}
		seen[fp.Inode] = fp.Path
		out = append(out, fp)
	}
	return out
}
