//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"electa/internal/election/models"
	"electa/internal/election/outbox"
	"electa/internal/election/store"
	"electa/internal/platform/config"
	"electa/internal/platform/kafka"
	id "electa/pkg/domain"
	"electa/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	brokers []string
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.brokers = containers.NewRedpandaContainer(s.T()).Brokers
}

func (s *ProducerSuite) newProducer(topic string) *kafka.Producer {
	producer, err := kafka.NewProducer(context.Background(), config.Kafka{
		Brokers:  s.brokers,
		Topic:    topic,
		ClientID: "electa-test",
	}, nil)
	s.Require().NoError(err)
	s.T().Cleanup(producer.Close)
	return producer
}

func (s *ProducerSuite) consume(topic string, want int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for records")
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records
}

func (s *ProducerSuite) TestNoBrokersDisablesProducer() {
	producer, err := kafka.NewProducer(context.Background(), config.Kafka{}, nil)
	s.NoError(err)
	s.Nil(producer)
}

func (s *ProducerSuite) TestNewProducerIsIdempotentOnTopic() {
	s.newProducer("electa.idempotent")
	s.newProducer("electa.idempotent")
}

func (s *ProducerSuite) TestRelayDeliversKeyedEnvelopes() {
	const topic = "electa.nominations.relay"
	ctx := context.Background()
	producer := s.newProducer(topic)

	mem := store.NewInMemory()
	electionID := id.NewElectionID()
	for _, eventType := range []string{models.EventElectionTransitioned, models.EventElectionDeleted} {
		event, err := models.NewOutboxEvent(eventType, electionID, map[string]string{"k": "v"}, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(mem.AppendOutbox(ctx, event))
	}

	relay, err := outbox.NewRelay(mem, producer)
	s.Require().NoError(err)
	n, err := relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	records := s.consume(topic, 2)
	s.Require().Len(records, 2)
	for i, want := range []string{models.EventElectionTransitioned, models.EventElectionDeleted} {
		s.Equal(electionID.String(), string(records[i].Key))
		var envelope outbox.Envelope
		s.Require().NoError(json.Unmarshal(records[i].Value, &envelope))
		s.Equal(want, envelope.EventType)
		s.Equal(electionID, envelope.ElectionID)

		headers := map[string]string{}
		for _, h := range records[i].Headers {
			headers[h.Key] = string(h.Value)
		}
		s.Equal(want, headers["event_type"])
	}
}
