package fs

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"docsync/internal/docsync"
)

// readMasks are the getcifsacl permission masks that grant read access.
var readMasks = []string{"R", "FULL", "READ", "CHANGE"}

// CommandRunner runs an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// CIFSResolver reads Windows ACLs of files on a CIFS mount with getcifsacl.
type CIFSResolver struct {
	run     CommandRunner
	timeout time.Duration
}

// NewCIFSResolver creates a CIFSResolver. A nil runner uses ExecRunner.
func NewCIFSResolver(run CommandRunner, timeout time.Duration) *CIFSResolver {
	if run == nil {
		run = ExecRunner
	}
	return &CIFSResolver{run: run, timeout: timeout}
}

// Resolve returns the SIDs allowed and denied read access to path.
func (r *CIFSResolver) Resolve(ctx context.Context, path string) (*docsync.ACL, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.run(ctx, "getcifsacl", path)
	if err != nil {
		return nil, fmt.Errorf("reading CIFS ACL: %w", err)
	}
	return ParseCIFSACL(string(out)), nil
}

// ParseCIFSACL parses getcifsacl output. Entry lines look like
// "ACL:<sid>:<ALLOWED|DENIED>/<flags>/<mask>"; entries whose mask does not
// grant read access are dropped, and SIDs are de-duplicated in order.
func ParseCIFSACL(out string) *docsync.ACL {
	acl := &docsync.ACL{Allowed: []string{}, Denied: []string{}}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ACL") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		sid := parts[1]
		perms := strings.Split(parts[2], "/")
		if len(perms) != 3 || !slices.Contains(readMasks, perms[2]) {
			continue
		}

		switch perms[0] {
		case "ALLOWED":
			if !slices.Contains(acl.Allowed, sid) {
				acl.Allowed = append(acl.Allowed, sid)
			}
		case "DENIED":
			if !slices.Contains(acl.Denied, sid) {
				acl.Denied = append(acl.Denied, sid)
			}
		}
	}
	return acl
}

var _ docsync.ACLResolver = (*CIFSResolver)(nil)
