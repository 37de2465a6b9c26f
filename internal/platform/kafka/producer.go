// Package kafka publishes outbox records to Kafka with franz-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"esocial/internal/platform/config"
	audit "esocial/pkg/platform/audit"
)

// Producer implements relay.Producer over a kgo client.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewProducer creates a producer for cfg.Topic. Records are acknowledged by
// all in-sync replicas.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	resp, err := kadm.NewClient(p.client).CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish produces the batch synchronously and returns the first failure.
func (p *Producer) Publish(ctx context.Context, entries []audit.OutboxEntry) error {
	records := ToRecords(p.topic, entries)
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce outbox batch: %w", err)
	}
	return nil
}

// Health pings the seed brokers.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}

// ToRecords keys each record by aggregate id so all records of one compliance
// event land on the same partition in order.
func ToRecords(topic string, entries []audit.OutboxEntry) []*kgo.Record {
	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, &kgo.Record{
			Topic: topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "aggregate_type", Value: []byte(e.AggregateType)},
				{Key: "outbox_id", Value: []byte(e.ID.String())},
			},
			Timestamp: e.CreatedAt,
		})
	}
	return records
}
