package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"docsync/internal/docsync"
)

// aclWorkers bounds concurrent ACL lookups during a scan.
const aclWorkers = 8

// Scanner walks a directory tree and fingerprints every regular file with a
// supported extension. Symlinks and special files are skipped.
type Scanner struct {
	extensions map[string]struct{}
	ignore     []string
	acl        docsync.ACLResolver
	logger     docsync.Logger
}

// NewScanner creates a Scanner. Extensions are matched case-insensitively and
// may be given with or without the leading dot.
func NewScanner(extensions, ignore []string, acl docsync.ACLResolver, logger docsync.Logger) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	if acl == nil {
		acl = docsync.NopACLResolver{}
	}
	return &Scanner{extensions: exts, ignore: ignore, acl: acl, logger: logger}
}

// Scan returns one fingerprint per supported file under root. A file that
// cannot be stat'ed is logged and left out; an unreadable root fails the scan.
func (s *Scanner) Scan(ctx context.Context, root string) ([]*docsync.Fingerprint, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	patterns, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		s.logger.Warn("ignore file unreadable", "error", err)
	}
	matcher := NewIgnoreMatcher(append(append([]string{IgnoreFileName}, s.ignore...), patterns...))

	var fps []*docsync.Fingerprint
	var dirents int
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			s.logger.Warn("skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		dirents++

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(p))]; !ok {
			return nil
		}

		// DirEntry.Info is an lstat for entries produced by WalkDir.
		info, err := d.Info()
		if err != nil {
			s.logger.Warn("stat failed, file skipped", "path", p, "error", err)
			return nil
		}
		fp, err := fingerprint(p, info)
		if err != nil {
			s.logger.Warn("stat failed, file skipped", "path", p, "error", err)
			return nil
		}
		fps = append(fps, fp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	s.logger.Debug("scan complete", "root", root, "dirents", dirents, "files", len(fps))

	if err := s.resolveACLs(ctx, fps); err != nil {
		return nil, err
	}
	return fps, nil
}

// resolveACLs attaches ACLs in place. Lookup failures leave the ACL absent
// and mark the fingerprint unresolved.
func (s *Scanner) resolveACLs(ctx context.Context, fps []*docsync.Fingerprint) error {
	if _, ok := s.acl.(docsync.NopACLResolver); ok {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aclWorkers)
	for _, fp := range fps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			acl, err := s.acl.Resolve(gctx, fp.Path)
			if err != nil {
				s.logger.Warn("failed to get ACL", "path", fp.Path, "error", err)
				fp.ACLUnresolved = true
				return nil
			}
			fp.ACL = acl
			return nil
		})
	}
	return g.Wait()
}

var _ docsync.Scanner = (*Scanner)(nil)
