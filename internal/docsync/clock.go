package docsync

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so cycle timing is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator mints generation ids. Ids must be unique over the lifetime
// of a metadata store.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
