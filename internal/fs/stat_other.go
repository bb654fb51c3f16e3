//go:build !linux && !darwin

package fs

import (
	"fmt"
	"io/fs"
	"runtime"

	"docsync/internal/docsync"
)

func fingerprint(path string, _ fs.FileInfo) (*docsync.Fingerprint, error) {
	return nil, fmt.Errorf("inode fingerprints are not supported on %s: %s", runtime.GOOS, path)
}
