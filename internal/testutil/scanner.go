package testutil

import (
	"context"
	"sync"

	"docsync/internal/docsync"
)

// StaticScanner returns a caller-controlled set of fingerprints.
type StaticScanner struct {
	mu    sync.Mutex
	files []*docsync.Fingerprint
	Err   error
}

// NewStaticScanner creates a scanner returning files.
func NewStaticScanner(files ...*docsync.Fingerprint) *StaticScanner {
	return &StaticScanner{files: files}
}

// Set replaces the fingerprints returned by subsequent scans.
func (s *StaticScanner) Set(files ...*docsync.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = files
}

func (s *StaticScanner) Scan(ctx context.Context, _ string) ([]*docsync.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*docsync.Fingerprint, len(s.files))
	for i, fp := range s.files {
		cp := *fp
		out[i] = &cp
	}
	return out, nil
}
