package eventstore

// Driver is the storage contract every backend implements with identical
// observable semantics.
//
// Load and LoadRange return committed and uncommitted events alike: events
// are visible as soon as Append returns. Commit is bookkeeping for writers
// recovering through LoadUncommitted, not read isolation.
type Driver interface {
	// Load all events of a stream in append order
	Load(streamID string) ([]*Event, error)
	// LoadRange loads the events at 1-based inclusive positions [start, end]
	LoadRange(streamID string, start, end int64) ([]*Event, error)
	// LoadUncommitted loads the events of a transaction not yet committed
	LoadUncommitted(streamID, transactionID string) ([]*Event, error)
	// Version is the number of events ever appended to a stream
	Version(streamID string) (int64, error)
	// Append adds events iff expectedVersion equals the current version,
	// failing with *ConcurrencyError otherwise
	Append(streamID, transactionID string, expectedVersion int64, events []*Event) error
	// Commit marks the transaction's uncommitted events as committed
	Commit(streamID, transactionID string) error
}

// clipRange turns 1-based inclusive positions into a half-open slice range
// over a stream of the given length. ok is false when nothing overlaps.
func clipRange(start, end, length int64) (from, to int64, ok bool) {
	if start < 1 {
		start = 1
	}
	if end > length {
		end = length
	}
	if end < start {
		return 0, 0, false
	}
	return start - 1, end, true
}
