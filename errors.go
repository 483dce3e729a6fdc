package eventstore

import (
	"errors"
	"fmt"
)

// ConcurrencyError is returned by Append when the expected version does not
// match the stream's current version. The stream is left unchanged.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf(
		"optimistic locking violation on stream '%s': expected version %d, actual version %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion,
	)
}

// IsConcurrencyError reports whether err is, or wraps, a ConcurrencyError
func IsConcurrencyError(err error) bool {
	var concurrencyErr *ConcurrencyError
	return errors.As(err, &concurrencyErr)
}

// DriverError wraps failures of the underlying storage medium. It is never
// used for optimistic locking violations.
type DriverError struct {
	Driver   string
	Op       string
	StreamID string
	Err      error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %s '%s': %v", e.Driver, e.Op, e.StreamID, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// IsDriverError reports whether err is, or wraps, a DriverError
func IsDriverError(err error) bool {
	var driverErr *DriverError
	return errors.As(err, &driverErr)
}

func driverError(driver, op, streamID string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Driver: driver, Op: op, StreamID: streamID, Err: err}
}
