// Package kafka wraps the franz-go client behind a small producer interface
// so audit sinks stay testable without a broker.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
)

// Producer publishes keyed messages to a topic.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects to the configured brokers and ensures the audit topic
// exists. Returns nil when no brokers are configured so the audit pipeline
// runs store-only.
func NewProducer(cfg config.Kafka) (*Producer, error) {
	if cfg.Brokers == "" {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	if cfg.AuditTopic != "" {
		if err := ensureTopic(context.Background(), client, cfg.AuditTopic); err != nil {
			client.Close()
			return nil, err
		}
	}

	return &Producer{client: client}, nil
}

// ensureTopic creates the topic with broker-default partitioning. A topic
// that already exists is fine; anything else fails startup so a
// misconfigured cluster is caught before the first audit event is dropped.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	responses, err := adm.CreateTopics(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, response := range responses {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", response.Topic, response.Err)
		}
	}
	return nil
}

// Produce publishes one record synchronously. The audit worker already runs
// off the request path, so blocking here is acceptable.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}
