package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// KafkaProducer is the subset of the platform producer used by the sink.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSink publishes audit events to a topic, keyed by actor so events for
// one voter land in order on the same partition.
type KafkaSink struct {
	producer KafkaProducer
	topic    string
}

func NewKafkaSink(producer KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

type kafkaEnvelope struct {
	Category  EventCategory     `json:"category"`
	Timestamp time.Time         `json:"timestamp"`
	ActorID   string            `json:"actor_id,omitempty"`
	Action    Action            `json:"action"`
	Status    string            `json:"status,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(kafkaEnvelope{
		Category:  event.Category,
		Timestamp: event.Timestamp,
		ActorID:   event.ActorID,
		Action:    event.Action,
		Status:    event.Status,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Details:   event.Details,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.Produce(ctx, s.topic, []byte(event.ActorID), value)
}
