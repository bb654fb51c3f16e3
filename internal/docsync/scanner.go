package docsync

import "context"

// Scanner produces a fingerprint for every supported regular file under root.
// Files that cannot be stat'ed are omitted and logged, never fatal.
type Scanner interface {
	Scan(ctx context.Context, root string) ([]*Fingerprint, error)
}

// ACLResolver looks up access control information for a file. Resolution is
// best-effort: a nil ACL with a nil error means none is available.
type ACLResolver interface {
	Resolve(ctx context.Context, path string) (*ACL, error)
}

// NopACLResolver never resolves an ACL.
type NopACLResolver struct{}

func (NopACLResolver) Resolve(context.Context, string) (*ACL, error) { return nil, nil }
