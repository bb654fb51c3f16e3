package docsync

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedState is returned when the metadata store is missing a
	// record the reconciler just observed.
	ErrUnexpectedState = errors.New("unexpected metadata state")

	// ErrBulkFailed is returned when a bulk index operation did not succeed
	// for every id it was given.
	ErrBulkFailed = errors.New("bulk operation failed")

	// ErrNoExtractor is returned when a configured extension has no handler.
	ErrNoExtractor = errors.New("no extractor for extension")

	// ErrExtraction marks a file whose text could not be extracted.
	ErrExtraction = errors.New("extraction failed")

	// ErrACLUnavailable marks an attribute change whose new ACL could not
	// be read. The file keeps its previous state until a later cycle.
	ErrACLUnavailable = errors.New("acl unavailable")

	// ErrCycleRunning is returned by RunOnce when a cycle is already in flight.
	ErrCycleRunning = errors.New("sync cycle already running")
)

// BulkError reports a partially failed bulk operation. Any failure counts as
// failure of the whole operation.
type BulkError struct {
	Op     string
	Failed int
	Total  int
	Reason string
}

func (e *BulkError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bulk %s: %d of %d items failed: %s", e.Op, e.Failed, e.Total, e.Reason)
	}
	return fmt.Sprintf("bulk %s: %d of %d items failed", e.Op, e.Failed, e.Total)
}

func (e *BulkError) Unwrap() error { return ErrBulkFailed }
