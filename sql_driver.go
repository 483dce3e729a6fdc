package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const recordColumns = `ID, Type, StreamID, StreamPosition, TransactionID, Committed, Payload, Created`

// dialect captures what differs between the SQL databases
type dialect struct {
	name        string
	placeholder func(n int) string
	quote       func(identifier string) string
	isDuplicate func(err error) bool
}

// sqlDriver implements Driver on any database/sql backend. The primary key
// on (StreamID, StreamPosition) is the server-side guard that serialises
// writers running in different processes.
type sqlDriver struct {
	DB      *sql.DB
	Table   string
	dialect dialect
}

// CreateTable creates the events table if it does not exist yet
func (d *sqlDriver) CreateTable() error {
	_, err := d.DB.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			StreamID       VARCHAR(255) NOT NULL,
			StreamPosition BIGINT NOT NULL,
			ID             VARCHAR(64) NOT NULL,
			TransactionID  VARCHAR(255) NOT NULL,
			Committed      BOOLEAN NOT NULL,
			Type           VARCHAR(255) NOT NULL,
			Payload        TEXT NOT NULL,
			Created        VARCHAR(64) NOT NULL,
			PRIMARY KEY (StreamID, StreamPosition)
		)
	`, d.tableName()))
	return driverError(d.dialect.name, "create table", d.Table, err)
}

// Load all events by stream ID
func (d *sqlDriver) Load(streamID string) ([]*Event, error) {
	return d.query("load", streamID, d.sql(`
		SELECT %s FROM %s
		WHERE StreamID = $1
		ORDER BY StreamPosition
	`, recordColumns, d.tableName()), streamID)
}

// LoadRange loads events at positions [start, end]
func (d *sqlDriver) LoadRange(streamID string, start, end int64) ([]*Event, error) {
	if start < 1 {
		start = 1
	}
	if end < start {
		return []*Event{}, nil
	}
	return d.query("load range", streamID, d.sql(`
		SELECT %s FROM %s
		WHERE StreamID = $1 AND StreamPosition BETWEEN $2 AND $3
		ORDER BY StreamPosition
	`, recordColumns, d.tableName()), streamID, start, end)
}

// LoadUncommitted loads the uncommitted events of a transaction
func (d *sqlDriver) LoadUncommitted(streamID, transactionID string) ([]*Event, error) {
	return d.query("load uncommitted", streamID, d.sql(`
		SELECT %s FROM %s
		WHERE StreamID = $1 AND TransactionID = $2 AND Committed = $3
		ORDER BY StreamPosition
	`, recordColumns, d.tableName()), streamID, transactionID, false)
}

// Version of a stream
func (d *sqlDriver) Version(streamID string) (int64, error) {
	version, err := d.version(d.DB, streamID)
	if err != nil {
		return 0, driverError(d.dialect.name, "version", streamID, err)
	}
	return version, nil
}

// Append inserts events at the positions following expectedVersion within a
// single database transaction
func (d *sqlDriver) Append(streamID, transactionID string, expectedVersion int64, events []*Event) error {
	records, err := toRecords(streamID, transactionID, expectedVersion, events)
	if err != nil {
		return err
	}

	tx, err := d.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return driverError(d.dialect.name, "append", streamID, err)
	}

	version, err := d.version(tx, streamID)
	if err != nil {
		_ = tx.Rollback()
		return driverError(d.dialect.name, "append", streamID, err)
	}
	if version != expectedVersion {
		_ = tx.Rollback()
		return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: version}
	}

	if len(records) == 0 {
		return driverError(d.dialect.name, "append", streamID, tx.Commit())
	}

	stmt, err := tx.Prepare(d.sql(`
		INSERT INTO %s (%s) VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.tableName(), recordColumns))
	if err != nil {
		_ = tx.Rollback()
		return driverError(d.dialect.name, "append", streamID, err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.Exec(r.ID, r.Type, r.StreamID, r.Sequence, r.TransactionID, r.Committed, r.Payload, r.Created)
		if err != nil {
			_ = tx.Rollback()
			if d.dialect.isDuplicate(err) {
				return d.conflict(streamID, expectedVersion)
			}
			return driverError(d.dialect.name, "append", streamID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		if d.dialect.isDuplicate(err) {
			return d.conflict(streamID, expectedVersion)
		}
		return driverError(d.dialect.name, "append", streamID, err)
	}
	return nil
}

// Commit marks the uncommitted events of a transaction as committed with a
// single UPDATE
func (d *sqlDriver) Commit(streamID, transactionID string) error {
	_, err := d.DB.Exec(d.sql(`
		UPDATE %s SET Committed = $1
		WHERE StreamID = $2 AND TransactionID = $3 AND Committed = $4
	`, d.tableName()), true, streamID, transactionID, false)
	return driverError(d.dialect.name, "commit", streamID, err)
}

// conflict reports a racing writer that won the positions after expectedVersion
func (d *sqlDriver) conflict(streamID string, expectedVersion int64) error {
	version, err := d.version(d.DB, streamID)
	if err != nil {
		return driverError(d.dialect.name, "append", streamID, err)
	}
	return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: version}
}

type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (d *sqlDriver) version(q queryer, streamID string) (int64, error) {
	var version int64
	err := q.QueryRow(d.sql(`
		SELECT COALESCE(MAX(StreamPosition), 0) FROM %s WHERE StreamID = $1
	`, d.tableName()), streamID).Scan(&version)
	return version, err
}

func (d *sqlDriver) query(op, streamID, query string, args ...interface{}) ([]*Event, error) {
	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, driverError(d.dialect.name, op, streamID, err)
	}
	defer rows.Close()

	records := []*record{}
	for rows.Next() {
		var r record
		err := rows.Scan(&r.ID, &r.Type, &r.StreamID, &r.Sequence, &r.TransactionID, &r.Committed, &r.Payload, &r.Created)
		if err != nil {
			return nil, driverError(d.dialect.name, op, streamID, err)
		}
		records = append(records, &r)
	}
	err = rows.Err()
	if err != nil {
		return nil, driverError(d.dialect.name, op, streamID, err)
	}

	events, err := toEvents(records)
	if err != nil {
		return nil, driverError(d.dialect.name, op, streamID, err)
	}
	return events, nil
}

// sql formats a statement written with $n placeholders for the dialect
func (d *sqlDriver) sql(format string, args ...interface{}) string {
	statement := fmt.Sprintf(format, args...)
	for n := 8; n >= 1; n-- {
		statement = strings.ReplaceAll(statement, fmt.Sprintf("$%d", n), d.dialect.placeholder(n))
	}
	return statement
}

func (d *sqlDriver) tableName() string {
	return d.dialect.quote(d.Table)
}
