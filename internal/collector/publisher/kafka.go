// Package publisher streams accepted events to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"blaze/internal/platform/kafka"
	"blaze/internal/telemetry/models"
)

// Producer is the subset of kafka.Producer used here.
type Producer interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

// KafkaPublisher publishes each event as JSON keyed by visitor id, so one
// visitor's events stay ordered within a partition.
type KafkaPublisher struct {
	producer Producer
}

func NewKafka(producer Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.VisitorID.String()), Value: value})
	}
	return p.producer.Publish(ctx, msgs)
}
