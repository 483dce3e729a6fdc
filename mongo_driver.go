package eventstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoDriverName = "mongo"

// NewMongoDriver creates a new MongoDriver on the given database and
// collection. Append uses multi-document transactions, so the deployment
// must be a replica set or sharded cluster.
func NewMongoDriver(client *mongo.Client, database, collection string) *MongoDriver {
	return &MongoDriver{
		Client:     client,
		Collection: client.Database(database).Collection(collection),
	}
}

// MongoDriver implementation for deployed environments. A unique index on
// (stream_id, sequence) rejects racing writers.
type MongoDriver struct {
	Client     *mongo.Client
	Collection *mongo.Collection
}

// CreateIndexes creates the unique stream position index. It is idempotent.
func (s *MongoDriver) CreateIndexes() error {
	_, err := s.Collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "stream_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return driverError(mongoDriverName, "create indexes", s.Collection.Name(), err)
}

// Load all events by stream ID
func (s *MongoDriver) Load(streamID string) ([]*Event, error) {
	return s.find("load", streamID, bson.M{"stream_id": streamID})
}

// LoadRange loads events at positions [start, end]
func (s *MongoDriver) LoadRange(streamID string, start, end int64) ([]*Event, error) {
	if start < 1 {
		start = 1
	}
	if end < start {
		return []*Event{}, nil
	}
	return s.find("load range", streamID, bson.M{
		"stream_id": streamID,
		"sequence":  bson.M{"$gte": start, "$lte": end},
	})
}

// LoadUncommitted loads the uncommitted events of a transaction
func (s *MongoDriver) LoadUncommitted(streamID, transactionID string) ([]*Event, error) {
	return s.find("load uncommitted", streamID, bson.M{
		"stream_id":      streamID,
		"transaction_id": transactionID,
		"committed":      false,
	})
}

// Version of a stream
func (s *MongoDriver) Version(streamID string) (int64, error) {
	version, err := s.version(context.Background(), streamID)
	if err != nil {
		return 0, driverError(mongoDriverName, "version", streamID, err)
	}
	return version, nil
}

// Append checks the version and inserts the events in one transaction
func (s *MongoDriver) Append(streamID, transactionID string, expectedVersion int64, events []*Event) error {
	records, err := toRecords(streamID, transactionID, expectedVersion, events)
	if err != nil {
		return err
	}

	ctx := context.Background()
	session, err := s.Client.StartSession()
	if err != nil {
		return driverError(mongoDriverName, "append", streamID, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		version, err := s.version(txCtx, streamID)
		if err != nil {
			return nil, err
		}
		if version != expectedVersion {
			return nil, &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: version}
		}
		if len(records) == 0 {
			return nil, nil
		}

		docs := make([]any, len(records))
		for i, r := range records {
			docs[i] = r
		}
		_, err = s.Collection.InsertMany(txCtx, docs)
		return nil, err
	})
	if err == nil {
		return nil
	}

	var concurrencyErr *ConcurrencyError
	if errors.As(err, &concurrencyErr) {
		return concurrencyErr
	}
	if mongo.IsDuplicateKeyError(err) {
		version, verr := s.Version(streamID)
		if verr != nil {
			return verr
		}
		return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: version}
	}
	return driverError(mongoDriverName, "append", streamID, err)
}

// Commit marks the uncommitted events of a transaction as committed
func (s *MongoDriver) Commit(streamID, transactionID string) error {
	_, err := s.Collection.UpdateMany(context.Background(),
		bson.M{
			"stream_id":      streamID,
			"transaction_id": transactionID,
			"committed":      false,
		},
		bson.M{"$set": bson.M{"committed": true}},
	)
	return driverError(mongoDriverName, "commit", streamID, err)
}

func (s *MongoDriver) version(ctx context.Context, streamID string) (int64, error) {
	var last record
	err := s.Collection.FindOne(ctx,
		bson.M{"stream_id": streamID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Sequence, nil
}

func (s *MongoDriver) find(op, streamID string, filter bson.M) ([]*Event, error) {
	ctx := context.Background()
	cursor, err := s.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, driverError(mongoDriverName, op, streamID, err)
	}
	defer cursor.Close(ctx)

	records := []*record{}
	err = cursor.All(ctx, &records)
	if err != nil {
		return nil, driverError(mongoDriverName, op, streamID, err)
	}

	events, err := toEvents(records)
	if err != nil {
		return nil, driverError(mongoDriverName, op, streamID, err)
	}
	return events, nil
}
