package eventstore

import (
	"github.com/indebted-modules/uuid"
)

// Store implementation
type Store struct {
	driver Driver
}

// NewStore creates a new store
func NewStore(driver Driver) *Store {
	return &Store{
		driver: driver,
	}
}

// Load loads all events of a stream along with its version
func (s *Store) Load(streamID string) ([]*Event, int64, error) {
	if streamID == "" {
		return []*Event{}, 0, nil
	}

	events, err := s.driver.Load(streamID)
	if err != nil {
		return nil, 0, err
	}
	return events, int64(len(events)), nil
}

// Save appends events under a new transaction and commits it. When the
// commit fails the transaction ID is still returned so it can be finalised
// later with Recover.
func (s *Store) Save(streamID string, expectedVersion int64, events []*Event) (string, error) {
	transactionID := uuid.NewID()

	err := s.driver.Append(streamID, transactionID, expectedVersion, events)
	if err != nil {
		return "", err
	}

	err = s.driver.Commit(streamID, transactionID)
	if err != nil {
		return transactionID, err
	}
	return transactionID, nil
}

// Recover commits the events a writer appended but never committed and
// returns them
func (s *Store) Recover(streamID, transactionID string) ([]*Event, error) {
	events, err := s.driver.LoadUncommitted(streamID, transactionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return events, nil
	}

	err = s.driver.Commit(streamID, transactionID)
	if err != nil {
		return nil, err
	}
	return events, nil
}
