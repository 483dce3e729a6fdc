package eventstore

import "github.com/rs/zerolog/log"

// Notifier publishes a message to downstream subscribers
type Notifier interface {
	Publish(data interface{}) error
}

// Packet is published once per commit that finalised events
type Packet struct {
	StreamID      string
	TransactionID string
	Types         []string
}

type notificationDriver struct {
	notifier Notifier
	driver   Driver
}

// NewNotificationDriver wraps a driver so that every Commit finalising at
// least one event publishes a Packet. Subscribers get at-least-once
// delivery: a failed publish is logged and the commit still succeeds.
func NewNotificationDriver(notifier Notifier, driver Driver) Driver {
	return &notificationDriver{
		notifier: notifier,
		driver:   driver,
	}
}

func (s *notificationDriver) Load(streamID string) ([]*Event, error) {
	return s.driver.Load(streamID)
}

func (s *notificationDriver) LoadRange(streamID string, start, end int64) ([]*Event, error) {
	return s.driver.LoadRange(streamID, start, end)
}

func (s *notificationDriver) LoadUncommitted(streamID, transactionID string) ([]*Event, error) {
	return s.driver.LoadUncommitted(streamID, transactionID)
}

func (s *notificationDriver) Version(streamID string) (int64, error) {
	return s.driver.Version(streamID)
}

func (s *notificationDriver) Append(streamID, transactionID string, expectedVersion int64, events []*Event) error {
	return s.driver.Append(streamID, transactionID, expectedVersion, events)
}

func (s *notificationDriver) Commit(streamID, transactionID string) error {
	events, err := s.driver.LoadUncommitted(streamID, transactionID)
	if err != nil {
		return err
	}

	err = s.driver.Commit(streamID, transactionID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	err = s.notifier.Publish(Packet{
		StreamID:      streamID,
		TransactionID: transactionID,
		Types:         Types(events),
	})
	if err != nil {
		log.
			Warn().
			Err(err).
			Str("StreamID", streamID).
			Str("TransactionID", transactionID).
			Msg("Failed publishing commit notification")
	}

	return nil
}
