package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"electa/internal/election/models"
	"electa/internal/election/store"
	id "electa/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type message struct {
	key     string
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	sent     []message
	failFrom int
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, key string, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && len(p.sent) >= p.failFrom {
		return p.err
	}
	p.sent = append(p.sent, message{key: key, value: value, headers: headers})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type RelaySuite struct {
	suite.Suite
	store      *store.InMemoryStore
	publisher  *fakePublisher
	relay      *Relay
	electionID id.ElectionID
	base       time.Time
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.publisher = &fakePublisher{}
	s.electionID = id.NewElectionID()
	s.base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	relay, err := NewRelay(s.store, s.publisher, WithBatchSize(2), WithPollInterval(5*time.Millisecond))
	s.Require().NoError(err)
	s.relay = relay
}

func (s *RelaySuite) appendEvents(n int) []*models.OutboxEvent {
	events := make([]*models.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		event, err := models.NewOutboxEvent(models.EventElectionTransitioned, s.electionID, models.TransitionedPayload{
			ElectionID: s.electionID,
			From:       models.StatusDraft,
			To:         models.StatusOpen,
		}, s.base.Add(time.Duration(i)*time.Second))
		s.Require().NoError(err)
		s.Require().NoError(s.store.AppendOutbox(context.Background(), event))
		events = append(events, event)
	}
	return events
}

func (s *RelaySuite) pending() int {
	rows, err := s.store.FetchPendingOutbox(context.Background(), 100)
	s.Require().NoError(err)
	return len(rows)
}

func (s *RelaySuite) TestNewRelay() {
	_, err := NewRelay(nil, s.publisher)
	s.Error(err)
	_, err = NewRelay(s.store, nil)
	s.Error(err)
}

func (s *RelaySuite) TestRunOnce() {
	ctx := context.Background()

	s.Run("empty outbox is a no-op", func() {
		n, err := s.relay.RunOnce(ctx)
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("publishes a bounded batch in order and marks it", func() {
		events := s.appendEvents(3)

		n, err := s.relay.RunOnce(ctx)
		s.Require().NoError(err)
		s.Equal(2, n)
		s.Equal(1, s.pending())

		s.Require().Len(s.publisher.sent, 2)
		first := s.publisher.sent[0]
		s.Equal(s.electionID.String(), first.key)
		s.Equal(models.EventElectionTransitioned, first.headers["event_type"])
		s.Equal(events[0].ID.String(), first.headers["event_id"])

		var envelope Envelope
		s.Require().NoError(json.Unmarshal(first.value, &envelope))
		s.Equal(events[0].ID, envelope.ID)
		s.Equal(s.electionID, envelope.ElectionID)
		var payload models.TransitionedPayload
		s.Require().NoError(json.Unmarshal(envelope.Payload, &payload))
		s.Equal(models.StatusOpen, payload.To)

		n, err = s.relay.RunOnce(ctx)
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Zero(s.pending())
	})
}

func (s *RelaySuite) TestRunOnceStopsAtFirstFailure() {
	ctx := context.Background()
	s.appendEvents(2)
	s.publisher.err = errors.New("broker unavailable")
	s.publisher.failFrom = 1

	n, err := s.relay.RunOnce(ctx)
	s.Error(err)
	s.Equal(1, n)
	s.Equal(1, s.pending(), "failed row stays pending")

	s.publisher.err = nil
	n, err = s.relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Zero(s.pending())
}

func (s *RelaySuite) TestRunDrainsAndStops() {
	s.appendEvents(5)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.relay.Run(ctx) }()

	s.Eventually(func() bool { return s.publisher.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("relay did not stop after cancellation")
	}
}
