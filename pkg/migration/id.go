package migration

import (
	"fmt"
	"sync"
	"time"
)

// IDAllocator hands out migration identifiers derived from UTC timestamps.
// Identifiers allocated by one allocator are strictly increasing even when
// several are requested within the same second, which guarantees a
// deterministic apply order for migrations created in the same process.
type IDAllocator struct {
	mu   sync.Mutex
	now  func() time.Time
	last uint64
}

// NewIDAllocator creates an allocator using the wall clock.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{now: time.Now}
}

// NewIDAllocatorWithClock creates an allocator with an injectable clock.
func NewIDAllocatorWithClock(now func() time.Time) *IDAllocator {
	return &IDAllocator{now: now}
}

// Next returns the next identifier, formatted as a 14-digit UTC timestamp
// (yyyyMMddHHmmss). Same-second allocations bump the numeric value past the
// previous id instead of colliding.
func (a *IDAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.now().UTC()
	id := uint64(ts.Year())*1e10 +
		uint64(ts.Month())*1e8 +
		uint64(ts.Day())*1e6 +
		uint64(ts.Hour())*1e4 +
		uint64(ts.Minute())*1e2 +
		uint64(ts.Second())

	if id <= a.last {
		id = a.last + 1
	}
	a.last = id

	return fmt.Sprintf("%014d", id)
}

// DefaultName returns the fallback migration name for a timestamp, used when
// the caller supplies none.
func DefaultName(ts time.Time) string {
	return "Migration_" + ts.UTC().Format("20060102150405")
}

// defaultAllocator serves ids for callers that don't carry their own.
var defaultAllocator = NewIDAllocator()

// NextID returns the next identifier from the process-wide allocator.
func NextID() string {
	return defaultAllocator.Next()
}
