package eventstore

import (
	"sync"
)

const inMemoryDriverName = "in-memory"

// NewInMemoryDriver creates a new InMemoryDriver
func NewInMemoryDriver() *InMemoryDriver {
	return &InMemoryDriver{
		streams: map[string]*memoryStream{},
	}
}

// InMemoryDriver keeps streams in process memory. The stream table and each
// stream are locked independently so operations on different streams never
// block each other.
type InMemoryDriver struct {
	mu      sync.RWMutex
	streams map[string]*memoryStream
}

type memoryStream struct {
	mu      sync.Mutex
	records []*record
}

// stream returns the stream for id, creating it when create is set. Two
// concurrent creators of the same id always get the same stream.
func (s *InMemoryDriver) stream(streamID string, create bool) *memoryStream {
	s.mu.RLock()
	stream, ok := s.streams[streamID]
	s.mu.RUnlock()
	if ok || !create {
		return stream
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stream, ok = s.streams[streamID]; ok {
		return stream
	}
	stream = &memoryStream{}
	s.streams[streamID] = stream
	return stream
}

// Load all events by stream ID
func (s *InMemoryDriver) Load(streamID string) ([]*Event, error) {
	return s.read(streamID, func(records []*record) []*record {
		return records
	})
}

// LoadRange loads events at positions [start, end], clipped to the stream
func (s *InMemoryDriver) LoadRange(streamID string, start, end int64) ([]*Event, error) {
	return s.read(streamID, func(records []*record) []*record {
		from, to, ok := clipRange(start, end, int64(len(records)))
		if !ok {
			return nil
		}
		return records[from:to]
	})
}

// LoadUncommitted loads the uncommitted events of a transaction
func (s *InMemoryDriver) LoadUncommitted(streamID, transactionID string) ([]*Event, error) {
	return s.read(streamID, func(records []*record) []*record {
		var matching []*record
		for _, r := range records {
			if r.TransactionID == transactionID && !r.Committed {
				matching = append(matching, r)
			}
		}
		return matching
	})
}

// Version of a stream
func (s *InMemoryDriver) Version(streamID string) (int64, error) {
	stream := s.stream(streamID, false)
	if stream == nil {
		return 0, nil
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	return int64(len(stream.records)), nil
}

// Append events to a stream at expectedVersion
func (s *InMemoryDriver) Append(streamID, transactionID string, expectedVersion int64, events []*Event) error {
	stream := s.stream(streamID, true)

	stream.mu.Lock()
	defer stream.mu.Unlock()

	version := int64(len(stream.records))
	if version != expectedVersion {
		return &ConcurrencyError{
			StreamID:        streamID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   version,
		}
	}

	records, err := toRecords(streamID, transactionID, version, events)
	if err != nil {
		return err
	}

	stream.records = append(stream.records, records...)
	return nil
}

// Commit marks the uncommitted events of a transaction as committed
func (s *InMemoryDriver) Commit(streamID, transactionID string) error {
	stream := s.stream(streamID, false)
	if stream == nil {
		return nil
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()

	for _, r := range stream.records {
		if r.TransactionID == transactionID && !r.Committed {
			r.Committed = true
		}
	}
	return nil
}

func (s *InMemoryDriver) read(streamID string, filter func([]*record) []*record) ([]*Event, error) {
	stream := s.stream(streamID, false)
	if stream == nil {
		return []*Event{}, nil
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()

	events, err := toEvents(filter(stream.records))
	if err != nil {
		return nil, driverError(inMemoryDriverName, "load", streamID, err)
	}
	return events, nil
}
