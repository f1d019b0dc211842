package flowcache

import "time"

// Config is the flow cache's sizing and timeout surface.
type Config struct {
	// Capacity is the number of hash-table rows, C. Must be a power of
	// two.
	Capacity int
	// RowSize is the maximum number of flows kept per row before the
	// LRU entry is evicted, L.
	RowSize int
	// Shards is the number of independent shards the cache is split
	// into, each intended to be driven by its own worker goroutine.
	// Must be a power of two and divide Capacity evenly.
	Shards int
	// ActiveTimeout bounds last_seen - first_seen before a flow is
	// forced out regardless of activity.
	ActiveTimeout time.Duration
	// InactiveTimeout bounds now - last_seen before an idle flow is
	// evicted.
	InactiveTimeout time.Duration
	// Split, when true, enables bidirectional flow keying: the reverse
	// orientation of a new flow's key is tried on a forward miss, so a
	// response packet joins the same biflow as its request. When
	// false, every five-tuple orientation gets its own unidirectional
	// flow.
	Split bool
}

// DefaultActiveTimeout and DefaultInactiveTimeout mirror the spec's
// documented defaults.
const (
	DefaultActiveTimeout   = 300 * time.Second
	DefaultInactiveTimeout = 30 * time.Second
)
