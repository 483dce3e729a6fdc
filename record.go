package eventstore

import (
	"encoding/json"
	"time"
)

// record is the serialised form every driver persists
type record struct {
	ID            string `bson:"event_id"`
	Type          string `bson:"type"`
	StreamID      string `bson:"stream_id"`
	Sequence      int64  `bson:"sequence"`
	TransactionID string `bson:"transaction_id"`
	Committed     bool   `bson:"committed"`
	Payload       string `bson:"payload"`
	Created       string `bson:"created"`
}

func (r *record) toEvent() (*Event, error) {
	payload, err := resolveType(r.Type)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal([]byte(r.Payload), payload)
	if err != nil {
		return nil, err
	}

	created, err := time.Parse(time.RFC3339Nano, r.Created)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            r.ID,
		Type:          r.Type,
		StreamID:      r.StreamID,
		Sequence:      r.Sequence,
		TransactionID: r.TransactionID,
		Committed:     r.Committed,
		Payload:       payload,
		Created:       created,
	}, nil
}

func toRecord(e *Event) (*record, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	return &record{
		ID:            e.ID,
		Type:          e.Type,
		StreamID:      e.StreamID,
		Sequence:      e.Sequence,
		TransactionID: e.TransactionID,
		Committed:     e.Committed,
		Payload:       string(payload),
		Created:       e.Created.UTC().Format(time.RFC3339Nano),
	}, nil
}

// toRecords serialises events as the next positions of a stream at version
func toRecords(streamID, transactionID string, version int64, events []*Event) ([]*record, error) {
	if err := checkRegistered(events); err != nil {
		return nil, err
	}

	records := make([]*record, 0, len(events))
	for i, event := range events {
		r, err := toRecord(event)
		if err != nil {
			return nil, err
		}
		r.StreamID = streamID
		r.Sequence = version + int64(i) + 1
		r.TransactionID = transactionID
		r.Committed = false
		records = append(records, r)
	}
	return records, nil
}

func toEvents(records []*record) ([]*Event, error) {
	events := make([]*Event, 0, len(records))
	for _, r := range records {
		event, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
