package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"docsync/internal/config"
	"docsync/internal/database"
	"docsync/internal/docsync"
	"docsync/internal/embedder"
	"docsync/internal/extract"
	"docsync/internal/fs"
	"docsync/internal/index"
	"docsync/internal/observability"
	"docsync/internal/snapshot"
	"docsync/internal/watch"
)

// aclTimeout bounds a single getcifsacl call.
const aclTimeout = 30 * time.Second

// App is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes the high-level
// commands, and manages the store and log lifecycle on Close.
type App struct {
	cfg     *config.Config
	store   *database.SQLiteStore
	logger  docsync.Logger
	logFile *os.File
	runID   string

	skipMigrationCheck bool

	// built on first use by engine
	extractor   *extract.Registry
	embedder    docsync.Embedder
	index       docsync.VectorIndex
	snapshotter *snapshot.Snapshotter
	metrics     *observability.Metrics
	service     *docsync.Service
}

// Option customizes an App.
type Option func(*App)

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e docsync.Embedder) Option {
	return func(a *App) { a.embedder = e }
}

// WithIndex replaces the configured vector index.
func WithIndex(idx docsync.VectorIndex) Option {
	return func(a *App) { a.index = idx }
}

// WithoutMigrationCheck opens the store without requiring a current schema.
// The migrate command uses it.
func WithoutMigrationCheck() Option {
	return func(a *App) { a.skipMigrationCheck = true }
}

// NewApp opens the log and the metadata store for cfg. command names the CLI
// command being run and prefixes the run id on every log line. The caller
// must call Close when done.
func NewApp(cfg *config.Config, command string, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		runID: command + "-" + time.Now().UTC().Format("20060102T150405Z"),
	}
	for _, opt := range opts {
		opt(a)
	}

	l, logFile, err := newLogger(cfg.LogDir, cfg.LogLevel, a.runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logger = &slogAdapter{l: l}
	a.logFile = logFile

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		a.closeLog()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	a.store = store

	// An in-memory store starts empty every time, so it is always migrated.
	if cfg.Database.Type == "memory" {
		if err := store.MigrateUp(); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
	} else if !a.skipMigrationCheck {
		if err := store.CheckMigrations(); err != nil {
			a.Close()
			return nil, fmt.Errorf("database schema out of date, run 'docsync migrate': %w", err)
		}
	}

	return a, nil
}

// Logger returns the run's logger.
func (a *App) Logger() docsync.Logger { return a.logger }

// engine builds the sync service and everything it depends on. It is safe to
// call more than once.
func (a *App) engine(ctx context.Context) (*docsync.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	cfg := a.cfg

	var acl docsync.ACLResolver = docsync.NopACLResolver{}
	if cfg.Scanner.ACL == "cifs" {
		acl = fs.NewCIFSResolver(nil, aclTimeout)
	}
	scanner := fs.NewScanner(cfg.Scanner.Extensions, cfg.Scanner.Ignore, acl, a.logger)

	if a.extractor == nil {
		reg, err := extract.NewFromConfig(cfg.Chunking)
		if err != nil {
			return nil, fmt.Errorf("creating extractors: %w", err)
		}
		a.extractor = reg
	}

	if a.embedder == nil {
		e, err := embedder.NewEmbedderFromConfig(ctx, cfg.Embedder)
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		a.embedder = e
	}

	if a.index == nil {
		idx, err := index.NewIndexFromConfig(ctx, cfg.Index, a.logger)
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
		a.index = idx
	}

	deps := docsync.Dependencies{
		Store:     a.store,
		Cycles:    a.store,
		Scanner:   scanner,
		Extractor: a.extractor,
		Embedder:  a.embedder,
		Index:     a.index,
		Logger:    a.logger,
	}

	snap, err := snapshot.NewSnapshotterFromConfig(ctx, cfg.Snapshot, a.store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating snapshotter: %w", err)
	}
	if snap != nil {
		a.snapshotter = snap
		deps.Snapshotter = snap
	}

	if cfg.Metrics.Enabled && a.metrics == nil {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
		a.metrics = m
	}
	if a.metrics != nil {
		deps.Recorder = a.metrics
	}

	limits := docsync.Limits{
		Files:       cfg.Concurrency.Files,
		Embeddings:  cfg.Concurrency.Embeddings,
		IndexWrites: cfg.Concurrency.IndexWrites,
	}
	a.service = docsync.NewService(cfg.Scanner.RootDir, limits, deps)
	return a.service, nil
}

// Validate runs every startup check and returns all failures joined.
func (a *App) Validate(ctx context.Context) error {
	cfg := a.cfg
	var errs []error

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	info, err := os.Stat(cfg.Scanner.RootDir)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("root directory: %w", err))
	case !info.IsDir():
		errs = append(errs, fmt.Errorf("root directory %s is not a directory", cfg.Scanner.RootDir))
	}

	if cfg.Database.Type != "memory" {
		if err := a.store.CheckMigrations(); err != nil {
			errs = append(errs, fmt.Errorf("database schema: %w", err))
		}
	}

	if cfg.Concurrency.Embeddings > cfg.Concurrency.Files {
		a.logger.Warn("more embedding workers than file workers, the extra workers stay idle",
			"embeddings", cfg.Concurrency.Embeddings, "files", cfg.Concurrency.Files)
	}

	if _, err := a.engine(ctx); err != nil {
		// nothing below can be checked without the engine
		return errors.Join(append(errs, err)...)
	}

	for _, ext := range cfg.Scanner.Extensions {
		if !a.extractor.Supports(normalizeExt(ext)) {
			errs = append(errs, fmt.Errorf("%w %s", docsync.ErrNoExtractor, ext))
		}
	}

	if v, ok := a.embedder.(embedder.Validator); ok {
		if err := v.Validate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("embedder: %w", err))
		}
	}
	if p, ok := a.index.(index.Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			errs = append(errs, fmt.Errorf("index: %w", err))
		}
	}
	if a.snapshotter != nil {
		if err := a.snapshotter.ValidateSetup(); err != nil {
			errs = append(errs, fmt.Errorf("snapshots: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Once validates and runs a single sync cycle.
func (a *App) Once(ctx context.Context) (*docsync.CycleReport, error) {
	if err := a.Validate(ctx); err != nil {
		return nil, fmt.Errorf("startup validation: %w", err)
	}
	svc, err := a.engine(ctx)
	if err != nil {
		return nil, err
	}
	return svc.RunCycle(ctx)
}

// Run validates, then runs cycles on the configured interval until ctx is
// cancelled. The watcher and the metrics server run alongside when enabled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Validate(ctx); err != nil {
		return fmt.Errorf("startup validation: %w", err)
	}
	svc, err := a.engine(ctx)
	if err != nil {
		return err
	}
	cfg := a.cfg

	var opts []docsync.SchedulerOption
	if a.metrics != nil {
		opts = append(opts, docsync.WithRecorder(a.metrics))
	}
	scheduler := docsync.NewScheduler(svc, cfg.Schedule.Interval.Duration, a.logger, opts...)

	a.logger.Info("docsync started",
		"root", cfg.Scanner.RootDir,
		"interval", cfg.Schedule.Interval.Duration,
		"index", cfg.Index.Type,
		"embedder", cfg.Embedder.Type,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })

	if cfg.Schedule.Watch {
		w := watch.New(cfg.Scanner.RootDir, cfg.Scanner.Ignore, cfg.Schedule.WatchDebounce.Duration, scheduler, a.logger)
		g.Go(func() error { return w.Run(gctx) })
	}

	if cfg.Metrics.Enabled {
		srv := observability.NewServer(cfg.Metrics.Listen, a.metrics, a.healthFunc(scheduler), a.logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	err = g.Wait()
	a.logger.Info("docsync stopped")
	return err
}

// healthFunc reports the scheduler state and the most recent cycle.
func (a *App) healthFunc(s *docsync.Scheduler) observability.HealthFunc {
	return func(ctx context.Context) observability.Health {
		h := observability.Health{Status: "ok", State: s.State().String()}
		cycles, err := a.store.ListCycles(ctx, 1)
		if err != nil {
			h.Status = "error"
			return h
		}
		if len(cycles) > 0 {
			c := cycles[0]
			h.LastCycle = &observability.LastCycle{
				Generation: c.GenerationID,
				Status:     string(c.Status),
				FinishedAt: c.FinishedAt,
				Failed:     c.Failed,
			}
			if c.Status == docsync.CycleFailed {
				h.Status = "degraded"
			}
		}
		return h
	}
}

// Status is a summary of the metadata store.
type Status struct {
	Root      string
	Files     int64
	Documents int64
	LastCycle *docsync.CycleReport
}

// Status returns store counts and the most recent cycle.
func (a *App) Status(ctx context.Context) (*Status, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store stats: %w", err)
	}
	st := &Status{Root: a.cfg.Scanner.RootDir, Files: stats.Files, Documents: stats.Documents}

	cycles, err := a.store.ListCycles(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("reading last cycle: %w", err)
	}
	if len(cycles) > 0 {
		st.LastCycle = cycles[0]
	}
	return st, nil
}

// History returns the most recent cycles, newest first.
func (a *App) History(ctx context.Context, limit int) ([]*docsync.CycleReport, error) {
	return a.store.ListCycles(ctx, limit)
}

// Files returns the indexed files whose path starts with prefix.
func (a *App) Files(ctx context.Context, prefix string) ([]*docsync.FileRecord, error) {
	if prefix != "" {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		prefix = abs
	}
	return a.store.ListFiles(ctx, prefix)
}

// Migrate applies all pending schema migrations.
func (a *App) Migrate() error {
	if err := a.store.MigrateUp(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	a.logger.Info("database migrated", "path", a.store.Path())
	return nil
}

// Close releases the index, metrics, store and log file.
func (a *App) Close() error {
	var errs []error

	if c, ok := a.index.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing index: %w", err))
		}
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down metrics: %w", err))
		}
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	a.closeLog()

	return errors.Join(errs...)
}

func (a *App) closeLog() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

func normalizeExt(ext string) string {
	if ext != "" && ext[0] != '.' {
		return "." + ext
	}
	return ext
}
