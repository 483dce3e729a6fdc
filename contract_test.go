package eventstore_test

import (
	"errors"
	"sync"

	es "github.com/indebted-modules/eventstore"
	"github.com/indebted-modules/uuid"
	"github.com/stretchr/testify/suite"
)

// DriverContractSuite holds the behaviour every Driver must share. Each
// backend runs it with its own constructor.
type DriverContractSuite struct {
	suite.Suite
	NewDriver func() es.Driver
	driver    es.Driver
}

func (s *DriverContractSuite) SetupTest() {
	s.driver = s.NewDriver()
}

func (s *DriverContractSuite) streamID() string {
	return "stream-" + uuid.NewID()
}

func (s *DriverContractSuite) load(streamID string) []string {
	events, err := s.driver.Load(streamID)
	s.Require().NoError(err)
	return data(events)
}

func (s *DriverContractSuite) version(streamID string) int64 {
	version, err := s.driver.Version(streamID)
	s.Require().NoError(err)
	return version
}

func (s *DriverContractSuite) TestUnknownStreamReadsAreEmpty() {
	streamID := s.streamID()

	events, err := s.driver.Load(streamID)
	s.NoError(err)
	s.Empty(events)

	events, err = s.driver.LoadRange(streamID, 1, 10)
	s.NoError(err)
	s.Empty(events)

	events, err = s.driver.LoadUncommitted(streamID, "tx")
	s.NoError(err)
	s.Empty(events)

	s.Equal(int64(0), s.version(streamID))
}

func (s *DriverContractSuite) TestVersionIsSumOfAppendedEvents() {
	streamID := s.streamID()

	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a", "b")))
	s.Equal(int64(2), s.version(streamID))

	s.NoError(s.driver.Append(streamID, "tx-2", 2, happened("c")))
	s.Equal(int64(3), s.version(streamID))

	s.NoError(s.driver.Append(streamID, "tx-3", 3, happened("d", "e", "f")))
	s.Equal(int64(6), s.version(streamID))

	s.NoError(s.driver.Commit(streamID, "tx-1"))
	s.Equal(int64(6), s.version(streamID), "Commit never changes the version")
}

func (s *DriverContractSuite) TestAppendRejectsStaleVersion() {
	streamID := s.streamID()
	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a", "b")))
	before := s.load(streamID)

	err := s.driver.Append(streamID, "tx-2", 1, happened("c"))

	var concurrencyErr *es.ConcurrencyError
	s.Require().True(errors.As(err, &concurrencyErr))
	s.Equal(&es.ConcurrencyError{StreamID: streamID, ExpectedVersion: 1, ActualVersion: 2}, concurrencyErr)
	s.Equal(before, s.load(streamID))
	s.Equal(int64(2), s.version(streamID))
}

func (s *DriverContractSuite) TestAppendRejectsVersionAhead() {
	streamID := s.streamID()

	err := s.driver.Append(streamID, "tx-1", 3, happened("a"))

	var concurrencyErr *es.ConcurrencyError
	s.Require().True(errors.As(err, &concurrencyErr))
	s.Equal(int64(3), concurrencyErr.ExpectedVersion)
	s.Equal(int64(0), concurrencyErr.ActualVersion)
	s.Empty(s.load(streamID))

	err = s.driver.Append(streamID, "tx-1", -1, happened("a"))
	s.True(es.IsConcurrencyError(err))
	s.Empty(s.load(streamID))
}

func (s *DriverContractSuite) TestAppendNoEvents() {
	streamID := s.streamID()

	s.NoError(s.driver.Append(streamID, "tx-1", 0, []*es.Event{}))
	s.Equal(int64(0), s.version(streamID))

	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a")))
	s.NoError(s.driver.Append(streamID, "tx-2", 1, nil))
	s.Equal(int64(1), s.version(streamID))

	err := s.driver.Append(streamID, "tx-3", 0, nil)
	s.True(es.IsConcurrencyError(err))
}

func (s *DriverContractSuite) TestAppendUnregisteredPayloadFails() {
	streamID := s.streamID()

	err := s.driver.Append(streamID, "tx-1", 0, []*es.Event{
		{ID: uuid.NewID(), Type: "NeverRegistered", Payload: &SomethingHappened{}},
	})
	s.Error(err)
	s.False(es.IsConcurrencyError(err))
	s.Equal(int64(0), s.version(streamID))
}

func (s *DriverContractSuite) TestLoadedEventsCarryStoreFields() {
	streamID := s.streamID()
	events := happened("a", "b")
	s.NoError(s.driver.Append(streamID, "tx-1", 0, events))
	s.NoError(s.driver.Append(streamID, "tx-2", 2, []*es.Event{
		es.NewEvent(&SomethingElseHappened{Data: "c"}),
	}))
	s.NoError(s.driver.Commit(streamID, "tx-1"))

	loaded, err := s.driver.Load(streamID)
	s.NoError(err)
	s.Require().Len(loaded, 3)

	for i, event := range loaded {
		s.Equal(streamID, event.StreamID)
		s.Equal(int64(i+1), event.Sequence)
	}
	s.Equal(events[0].ID, loaded[0].ID)
	s.Equal(events[1].ID, loaded[1].ID)
	s.Equal("SomethingHappened", loaded[0].Type)
	s.Equal("SomethingElseHappened", loaded[2].Type)
	s.Equal(&SomethingHappened{Data: "a"}, loaded[0].Payload)
	s.Equal(&SomethingElseHappened{Data: "c"}, loaded[2].Payload)
	s.True(events[0].Created.Equal(loaded[0].Created))

	s.Equal("tx-1", loaded[0].TransactionID)
	s.True(loaded[0].Committed)
	s.True(loaded[1].Committed)
	s.Equal("tx-2", loaded[2].TransactionID)
	s.False(loaded[2].Committed)
}

func (s *DriverContractSuite) TestReadsReturnIndependentCopies() {
	streamID := s.streamID()
	payload := &SomethingHappened{Data: "original"}
	event := es.NewEvent(payload)
	s.NoError(s.driver.Append(streamID, "tx-1", 0, []*es.Event{event}))

	payload.Data = "changed by writer"
	event.Type = "SomethingElseHappened"

	loaded, err := s.driver.Load(streamID)
	s.NoError(err)
	loaded[0].Payload.(*SomethingHappened).Data = "changed by reader"
	loaded[0].Committed = true

	loaded, err = s.driver.Load(streamID)
	s.NoError(err)
	s.Equal(&SomethingHappened{Data: "original"}, loaded[0].Payload)
	s.False(loaded[0].Committed)
}

func (s *DriverContractSuite) TestCommitIsIdempotent() {
	streamID := s.streamID()
	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a", "b")))

	s.NoError(s.driver.Commit(streamID, "tx-1"))
	once, err := s.driver.Load(streamID)
	s.NoError(err)

	s.NoError(s.driver.Commit(streamID, "tx-1"))
	twice, err := s.driver.Load(streamID)
	s.NoError(err)

	s.Equal(len(once), len(twice))
	for i := range once {
		s.Equal(once[i].Committed, twice[i].Committed)
		s.Equal(once[i].ID, twice[i].ID)
	}

	s.NoError(s.driver.Commit(streamID, "tx-without-events"))
	s.Equal([]string{"a", "b"}, s.load(streamID))
}

func (s *DriverContractSuite) TestCommitUnknownStreamIsNoop() {
	streamID := s.streamID()
	s.NoError(s.driver.Commit(streamID, "tx-1"))
	s.Equal(int64(0), s.version(streamID))
}

func (s *DriverContractSuite) TestUncommittedIsolatedByTransaction() {
	streamID := s.streamID()
	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("e1", "e2")))
	s.NoError(s.driver.Append(streamID, "tx-2", 2, happened("e3")))

	events, err := s.driver.LoadUncommitted(streamID, "tx-1")
	s.NoError(err)
	s.Equal([]string{"e1", "e2"}, data(events))

	events, err = s.driver.LoadUncommitted(streamID, "tx-2")
	s.NoError(err)
	s.Equal([]string{"e3"}, data(events))

	s.NoError(s.driver.Commit(streamID, "tx-1"))

	events, err = s.driver.LoadUncommitted(streamID, "tx-1")
	s.NoError(err)
	s.Empty(events)

	events, err = s.driver.LoadUncommitted(streamID, "tx-2")
	s.NoError(err)
	s.Equal([]string{"e3"}, data(events))
}

func (s *DriverContractSuite) TestUncommittedTransactionSpanningAppends() {
	streamID := s.streamID()
	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a")))
	s.NoError(s.driver.Append(streamID, "tx-2", 1, happened("b")))
	s.NoError(s.driver.Append(streamID, "tx-1", 2, happened("c")))

	events, err := s.driver.LoadUncommitted(streamID, "tx-1")
	s.NoError(err)
	s.Equal([]string{"a", "c"}, data(events))
}

func (s *DriverContractSuite) TestLoadIncludesUncommittedEvents() {
	streamID := s.streamID()
	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a", "b", "c")))

	s.Equal([]string{"a", "b", "c"}, s.load(streamID))

	events, err := s.driver.LoadRange(streamID, 1, 3)
	s.NoError(err)
	s.Equal([]string{"a", "b", "c"}, data(events))
}

func (s *DriverContractSuite) TestLoadRangeClipsToStream() {
	streamID := s.streamID()
	s.NoError(s.driver.Append(streamID, "tx-1", 0, happened("a", "b", "c")))

	events, err := s.driver.LoadRange(streamID, 2, 100)
	s.NoError(err)
	s.Equal([]string{"b", "c"}, data(events))

	events, err = s.driver.LoadRange(streamID, 2, 2)
	s.NoError(err)
	s.Equal([]string{"b"}, data(events))

	events, err = s.driver.LoadRange(streamID, 4, 10)
	s.NoError(err)
	s.Empty(events)

	events, err = s.driver.LoadRange(streamID, 3, 2)
	s.NoError(err)
	s.Empty(events)

	events, err = s.driver.LoadRange(streamID, 0, 1)
	s.NoError(err)
	s.Equal([]string{"a"}, data(events))
}

func (s *DriverContractSuite) TestConcurrentFirstAppendHasOneWinner() {
	streamID := s.streamID()
	batches := [][]*es.Event{
		happened("a1", "a2"),
		happened("b1", "b2", "b3"),
	}

	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = s.driver.Append(streamID, uuid.NewID(), 0, batches[i])
		}(i)
	}
	close(start)
	wg.Wait()

	winner, loser := 0, 1
	if errs[0] != nil {
		winner, loser = 1, 0
	}
	s.Require().NoError(errs[winner])

	var concurrencyErr *es.ConcurrencyError
	s.Require().True(errors.As(errs[loser], &concurrencyErr))
	s.Equal(int64(0), concurrencyErr.ExpectedVersion)
	s.Equal(int64(len(batches[winner])), concurrencyErr.ActualVersion)
	s.Equal(int64(len(batches[winner])), s.version(streamID))
	s.Len(s.load(streamID), len(batches[winner]))
}

func (s *DriverContractSuite) TestConcurrentWritersRetryingOnConflict() {
	streamID := s.streamID()
	writers := 8

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 100; attempt++ {
				version, err := s.driver.Version(streamID)
				if err != nil {
					continue
				}
				err = s.driver.Append(streamID, uuid.NewID(), version, happened("x"))
				if err == nil {
					return
				}
			}
			s.Fail("writer gave up")
		}()
	}
	wg.Wait()

	events, err := s.driver.Load(streamID)
	s.NoError(err)
	s.Len(events, writers)
	for i, event := range events {
		s.Equal(int64(i+1), event.Sequence)
	}
}

func (s *DriverContractSuite) TestOrderScenario() {
	streamID := "order-" + uuid.NewID()

	s.NoError(s.driver.Append(streamID, "tx-a", 0, happened("A", "B")))
	s.Equal(int64(2), s.version(streamID))

	err := s.driver.Append(streamID, "tx-a", 0, happened("C"))
	var concurrencyErr *es.ConcurrencyError
	s.Require().True(errors.As(err, &concurrencyErr))
	s.Equal(int64(0), concurrencyErr.ExpectedVersion)
	s.Equal(int64(2), concurrencyErr.ActualVersion)

	s.NoError(s.driver.Append(streamID, "tx-a", 2, happened("C")))
	s.Equal(int64(3), s.version(streamID))

	s.NoError(s.driver.Commit(streamID, "tx-a"))

	events, err := s.driver.LoadUncommitted(streamID, "tx-a")
	s.NoError(err)
	s.Empty(events)
	s.Equal([]string{"A", "B", "C"}, s.load(streamID))
}
