//go:build linux

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"docsync/internal/docsync"
)

func fingerprint(path string, info fs.FileInfo) (*docsync.Fingerprint, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}

	return &docsync.Fingerprint{
		Path:  path,
		Inode: uint64(stat.Ino),
		Mtime: info.ModTime(),
		Ctime: time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec)),
		Size:  info.Size(),
	}, nil
}
