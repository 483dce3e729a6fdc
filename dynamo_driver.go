package eventstore

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/indebted-modules/cfg"
)

const (
	dynamoDriverName = "dynamo"
	// maxTransactItems is the DynamoDB limit of items per TransactWriteItems
	maxTransactItems = 100
	// headPosition holds the stream's version; events start at position 1
	headPosition = 0
)

// NewDynamoDriver creates a new DynamoDriver
func NewDynamoDriver(tableName string) *DynamoDriver {
	return &DynamoDriver{
		Client:    dynamodb.New(cfg.Sess),
		TableName: tableName,
	}
}

// DynamoDriver implementation for deployed environments.
//
// The table is keyed by StreamID (HASH) and StreamPosition (RANGE). The item
// at position 0 is the stream head carrying the version; Append updates it
// conditionally in the same transaction that puts the events, so the check
// happens server-side. Commit never touches the head.
type DynamoDriver struct {
	Client    *dynamodb.DynamoDB
	TableName string
}

// CreateTable creates the events table unless it already exists
func (s *DynamoDriver) CreateTable() error {
	_, err := s.Client.CreateTable(&dynamodb.CreateTableInput{
		TableName: aws.String(s.TableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("StreamID"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("StreamPosition"),
				KeyType:       aws.String("RANGE"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("StreamID"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("StreamPosition"),
				AttributeType: aws.String("N"),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeResourceInUseException {
		return nil
	}
	return driverError(dynamoDriverName, "create table", s.TableName, err)
}

// Load all events by stream ID
func (s *DynamoDriver) Load(streamID string) ([]*Event, error) {
	return s.query("load", streamID, &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#stream = :stream AND #position >= :first"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":stream": {S: aws.String(streamID)},
			":first":  {N: aws.String("1")},
		},
	})
}

// LoadRange loads events at positions [start, end]
func (s *DynamoDriver) LoadRange(streamID string, start, end int64) ([]*Event, error) {
	if start < 1 {
		start = 1
	}
	if end < start {
		return []*Event{}, nil
	}
	return s.query("load range", streamID, &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#stream = :stream AND #position BETWEEN :start AND :end"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":stream": {S: aws.String(streamID)},
			":start":  {N: aws.String(strconv.FormatInt(start, 10))},
			":end":    {N: aws.String(strconv.FormatInt(end, 10))},
		},
	})
}

// LoadUncommitted loads the uncommitted events of a transaction
func (s *DynamoDriver) LoadUncommitted(streamID, transactionID string) ([]*Event, error) {
	return s.query("load uncommitted", streamID, s.uncommittedQuery(streamID, transactionID))
}

// Version of a stream, read from its head item
func (s *DynamoDriver) Version(streamID string) (int64, error) {
	out, err := s.Client.GetItem(&dynamodb.GetItemInput{
		TableName:      aws.String(s.TableName),
		ConsistentRead: aws.Bool(true),
		Key:            s.key(streamID, headPosition),
	})
	if err != nil {
		return 0, driverError(dynamoDriverName, "version", streamID, err)
	}

	version, ok := out.Item["Version"]
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(aws.StringValue(version.N), 10, 64)
	if err != nil {
		return 0, driverError(dynamoDriverName, "version", streamID, err)
	}
	return v, nil
}

// Append moves the head from expectedVersion to the new version and puts all
// events in one transaction
func (s *DynamoDriver) Append(streamID, transactionID string, expectedVersion int64, events []*Event) error {
	records, err := toRecords(streamID, transactionID, expectedVersion, events)
	if err != nil {
		return err
	}

	if len(records) == 0 || expectedVersion < 0 {
		version, err := s.Version(streamID)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: version}
		}
		return nil
	}

	if len(records)+1 > maxTransactItems {
		return driverError(dynamoDriverName, "append", streamID,
			fmt.Errorf("%d events exceed the limit of %d per append", len(records), maxTransactItems-1))
	}

	head := &dynamodb.Update{
		TableName:        aws.String(s.TableName),
		Key:              s.key(streamID, headPosition),
		UpdateExpression: aws.String("SET #version = :version"),
		ExpressionAttributeNames: map[string]*string{
			"#version": aws.String("Version"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":version": {N: aws.String(strconv.FormatInt(expectedVersion+int64(len(records)), 10))},
		},
	}
	if expectedVersion == 0 {
		head.ConditionExpression = aws.String("attribute_not_exists(#version)")
	} else {
		head.ConditionExpression = aws.String("#version = :expected")
		head.ExpressionAttributeValues[":expected"] = &dynamodb.AttributeValue{
			N: aws.String(strconv.FormatInt(expectedVersion, 10)),
		}
	}

	items := []*dynamodb.TransactWriteItem{{Update: head}}
	for _, r := range records {
		items = append(items, &dynamodb.TransactWriteItem{
			Put: &dynamodb.Put{
				TableName:           aws.String(s.TableName),
				ConditionExpression: aws.String("attribute_not_exists(StreamPosition)"),
				Item:                toItem(r),
			},
		})
	}

	_, err = s.Client.TransactWriteItems(&dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}

	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeTransactionCanceledException {
		version, verr := s.Version(streamID)
		if verr != nil {
			return verr
		}
		if version != expectedVersion {
			return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: version}
		}
	}
	return driverError(dynamoDriverName, "append", streamID, err)
}

// Commit flips the Committed flag of the transaction's uncommitted events.
// Flags are flipped in transactions of up to maxTransactItems events; a
// failure part way leaves the rest uncommitted for a later Commit.
func (s *DynamoDriver) Commit(streamID, transactionID string) error {
	input := s.uncommittedQuery(streamID, transactionID)
	input.ProjectionExpression = aws.String("#stream, #position")
	records, err := s.records(input)
	if err != nil {
		return driverError(dynamoDriverName, "commit", streamID, err)
	}

	for from := 0; from < len(records); from += maxTransactItems {
		to := from + maxTransactItems
		if to > len(records) {
			to = len(records)
		}

		items := []*dynamodb.TransactWriteItem{}
		for _, r := range records[from:to] {
			items = append(items, &dynamodb.TransactWriteItem{
				Update: &dynamodb.Update{
					TableName:           aws.String(s.TableName),
					Key:                 s.key(streamID, r.Sequence),
					UpdateExpression:    aws.String("SET Committed = :committed"),
					ConditionExpression: aws.String("attribute_exists(StreamPosition)"),
					ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
						":committed": {BOOL: aws.Bool(true)},
					},
				},
			})
		}

		_, err = s.Client.TransactWriteItems(&dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err != nil {
			return driverError(dynamoDriverName, "commit", streamID, err)
		}
	}
	return nil
}

func (s *DynamoDriver) uncommittedQuery(streamID, transactionID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#stream = :stream AND #position >= :first"),
		FilterExpression:       aws.String("#tx = :tx AND #committed = :committed"),
		ExpressionAttributeNames: map[string]*string{
			"#tx":        aws.String("TransactionID"),
			"#committed": aws.String("Committed"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":stream":    {S: aws.String(streamID)},
			":first":     {N: aws.String("1")},
			":tx":        {S: aws.String(transactionID)},
			":committed": {BOOL: aws.Bool(false)},
		},
	}
}

func (s *DynamoDriver) query(op, streamID string, input *dynamodb.QueryInput) ([]*Event, error) {
	records, err := s.records(input)
	if err != nil {
		return nil, driverError(dynamoDriverName, op, streamID, err)
	}
	events, err := toEvents(records)
	if err != nil {
		return nil, driverError(dynamoDriverName, op, streamID, err)
	}
	return events, nil
}

// records runs a consistent query over all pages, ordered by position
func (s *DynamoDriver) records(input *dynamodb.QueryInput) ([]*record, error) {
	input.TableName = aws.String(s.TableName)
	input.ConsistentRead = aws.Bool(true)
	if input.ExpressionAttributeNames == nil {
		input.ExpressionAttributeNames = map[string]*string{}
	}
	input.ExpressionAttributeNames["#stream"] = aws.String("StreamID")
	input.ExpressionAttributeNames["#position"] = aws.String("StreamPosition")

	records := []*record{}
	var itemErr error
	err := s.Client.QueryPages(input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, item := range page.Items {
			r, err := fromItem(item)
			if err != nil {
				itemErr = err
				return false
			}
			records = append(records, r)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, itemErr
}

func (s *DynamoDriver) key(streamID string, position int64) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"StreamID":       {S: aws.String(streamID)},
		"StreamPosition": {N: aws.String(strconv.FormatInt(position, 10))},
	}
}

func toItem(r *record) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"ID":             {S: aws.String(r.ID)},
		"Type":           {S: aws.String(r.Type)},
		"StreamID":       {S: aws.String(r.StreamID)},
		"StreamPosition": {N: aws.String(strconv.FormatInt(r.Sequence, 10))},
		"TransactionID":  {S: aws.String(r.TransactionID)},
		"Committed":      {BOOL: aws.Bool(r.Committed)},
		"Payload":        {S: aws.String(r.Payload)},
		"Created":        {S: aws.String(r.Created)},
	}
}

// fromItem reads a record from an item; attributes missing from a
// projection are left empty
func fromItem(item map[string]*dynamodb.AttributeValue) (*record, error) {
	r := &record{}
	if position, ok := item["StreamPosition"]; ok {
		sequence, err := strconv.ParseInt(aws.StringValue(position.N), 10, 64)
		if err != nil {
			return nil, err
		}
		r.Sequence = sequence
	}
	if committed, ok := item["Committed"]; ok {
		r.Committed = aws.BoolValue(committed.BOOL)
	}
	r.ID = stringAttribute(item, "ID")
	r.Type = stringAttribute(item, "Type")
	r.StreamID = stringAttribute(item, "StreamID")
	r.TransactionID = stringAttribute(item, "TransactionID")
	r.Payload = stringAttribute(item, "Payload")
	r.Created = stringAttribute(item, "Created")
	return r, nil
}

func stringAttribute(item map[string]*dynamodb.AttributeValue, name string) string {
	if value, ok := item[name]; ok {
		return aws.StringValue(value.S)
	}
	return ""
}
