package docsync

import "context"

// Snapshotter ships a copy of the metadata store somewhere durable after a
// successful cycle.
type Snapshotter interface {
	Snapshot(ctx context.Context, report *CycleReport) error
}
