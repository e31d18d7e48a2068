// Package kafka streams audit entries to the compliance feed. Publishing is
// best effort: the audit store is the system of record, the feed is a copy
// for downstream reporting.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"sebenza/internal/audit"
	"sebenza/internal/platform/config"
)

// Publisher writes audit entries to a Kafka topic, keyed by entity id so one
// entity's history stays ordered within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects to the brokers and makes sure the audit topic exists.
func NewPublisher(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping: %w", err)
	}

	if err := ensureTopic(ctx, client, cfg.AuditTopic, cfg.Partitions); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{client: client, topic: cfg.AuditTopic, logger: logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	if partitions <= 0 {
		partitions = 1
	}
	if _, err := adm.CreateTopic(ctx, partitions, 1, nil, topic); err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// Publish sends one audit entry to the feed and waits for the broker ack.
func (p *Publisher) Publish(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.EntityID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "audit entry published",
			"entry_id", entry.ID,
			"entity_id", entry.EntityID,
		)
	}
	return nil
}

// Close flushes buffered records and shuts the client down.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
