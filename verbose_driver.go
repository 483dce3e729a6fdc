package eventstore

import "github.com/rs/zerolog/log"

// NewVerboseDriver creates a new VerboseDriver
func NewVerboseDriver(driver Driver) *VerboseDriver {
	return &VerboseDriver{Driver: driver}
}

// VerboseDriver logs every write going through the wrapped driver
type VerboseDriver struct {
	Driver Driver
}

// Load delegates to internal driver
func (s *VerboseDriver) Load(streamID string) ([]*Event, error) {
	return s.Driver.Load(streamID)
}

// LoadRange delegates to internal driver
func (s *VerboseDriver) LoadRange(streamID string, start, end int64) ([]*Event, error) {
	return s.Driver.LoadRange(streamID, start, end)
}

// LoadUncommitted delegates to internal driver
func (s *VerboseDriver) LoadUncommitted(streamID, transactionID string) ([]*Event, error) {
	return s.Driver.LoadUncommitted(streamID, transactionID)
}

// Version delegates to internal driver
func (s *VerboseDriver) Version(streamID string) (int64, error) {
	return s.Driver.Version(streamID)
}

// Append delegates to internal driver and logs all appended events
func (s *VerboseDriver) Append(streamID, transactionID string, expectedVersion int64, events []*Event) error {
	err := s.Driver.Append(streamID, transactionID, expectedVersion, events)
	if IsConcurrencyError(err) {
		log.
			Warn().
			Err(err).
			Str("StreamID", streamID).
			Str("TransactionID", transactionID).
			Int64("ExpectedVersion", expectedVersion).
			Msg("Rejected append")
		return err
	}
	if err != nil {
		return err
	}

	for i, event := range events {
		log.
			Info().
			Str("EventID", event.ID).
			Str("EventType", event.Type).
			Str("StreamID", streamID).
			Int64("Sequence", expectedVersion+int64(i)+1).
			Str("TransactionID", transactionID).
			Time("Created", event.Created).
			Msg("Appended event")
	}

	return nil
}

// Commit delegates to internal driver
func (s *VerboseDriver) Commit(streamID, transactionID string) error {
	err := s.Driver.Commit(streamID, transactionID)
	if err != nil {
		return err
	}

	log.
		Info().
		Str("StreamID", streamID).
		Str("TransactionID", transactionID).
		Msg("Committed transaction")

	return nil
}
