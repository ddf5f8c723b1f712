package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Producer is satisfied by client.KafkaProducer.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaPublisher writes events as JSON keyed by phone, so events for one
// customer land on one partition in order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	headers := map[string]string{"event-type": event.Type, "event-id": event.ID}
	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(event.Phone), value, headers); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
