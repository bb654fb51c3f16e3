// Package snapshot ships copies of the metadata database to a filesystem
// directory or an S3 bucket after successful sync cycles, optionally
// encrypted with age.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"docsync/internal/docsync"
)

// Sink stores snapshot objects by name.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	Describe() string
}

// Backuper writes a consistent copy of the metadata store to a path.
type Backuper interface {
	BackupTo(ctx context.Context, destPath string) error
}

// Snapshotter copies the store with BackupTo and uploads the copy to a sink.
type Snapshotter struct {
	store     Backuper
	sink      Sink
	encryptor *AgeEncryptor // nil for plaintext snapshots
	tmpDir    string
	logger    docsync.Logger
}

func NewSnapshotter(store Backuper, sink Sink, encryptor *AgeEncryptor, logger docsync.Logger) *Snapshotter {
	if logger == nil {
		logger = docsync.NewNopLogger()
	}
	return &Snapshotter{
		store:     store,
		sink:      sink,
		encryptor: encryptor,
		logger:    logger,
	}
}

// ValidateSetup checks the sink when it can check itself.
func (s *Snapshotter) ValidateSetup() error {
	if v, ok := s.sink.(interface{ ValidateSetup() error }); ok {
		return v.ValidateSetup()
	}
	return nil
}

// Name returns the object name for the snapshot taken after report's cycle.
func Name(report *docsync.CycleReport, encrypted bool) string {
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = report.StartedAt
	}
	name := fmt.Sprintf("docsync-%s-%s.db", finished.UTC().Format("20060102T150405Z"), report.GenerationID)
	if encrypted {
		name += ".age"
	}
	return name
}

func (s *Snapshotter) Snapshot(ctx context.Context, report *docsync.CycleReport) error {
	start := time.Now()

	dir, err := os.MkdirTemp(s.tmpDir, "docsync-snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "metadata.db")
	if err := s.store.BackupTo(ctx, path); err != nil {
		return err
	}

	if s.encryptor != nil {
		encrypted := path + ".age"
		if err := s.encryptFile(path, encrypted); err != nil {
			return err
		}
		path = encrypted
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	name := Name(report, s.encryptor != nil)
	if err := s.sink.Put(ctx, name, f, info.Size()); err != nil {
		return fmt.Errorf("uploading snapshot %s to %s: %w", name, s.sink.Describe(), err)
	}

	s.logger.Info("metadata snapshot stored",
		"name", name,
		"sink", s.sink.Describe(),
		"bytes", info.Size(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (s *Snapshotter) encryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	if err := s.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var _ docsync.Snapshotter = (*Snapshotter)(nil)
