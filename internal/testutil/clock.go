package testutil

import (
	"fmt"
	"sync"
	"time"

	"docsync/internal/docsync"
)

var (
	_ docsync.Clock       = (*StubClock)(nil)
	_ docsync.IDGenerator = (*StubIDGenerator)(nil)
)

// StubClock is a manual clock for cycle timestamps. With a non-zero Step,
// every call to Now moves it forward so cycles get a measurable duration.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock stopped at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.Step)
	return now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator mints sequential generation ids: "gen-1", "gen-2", ...
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("gen-%d", g.next)
}

// Last returns the most recently minted id, or "" before the first.
func (g *StubIDGenerator) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next == 0 {
		return ""
	}
	return fmt.Sprintf("gen-%d", g.next)
}
