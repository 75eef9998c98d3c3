package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the part of *kgo.Client the Kafka channel needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaChannel publishes notifications as JSON records keyed by alert or
// incident id.
type KafkaChannel struct {
	producer Producer
	topic    string
}

// NewKafkaChannel publishes to topic, or to the client's default topic when
// topic is empty.
func NewKafkaChannel(producer Producer, topic string) *KafkaChannel {
	return &KafkaChannel{producer: producer, topic: topic}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	rec := &kgo.Record{
		Topic: c.topic,
		Key:   []byte(n.Key()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(n.Kind)},
			{Key: "severity", Value: []byte(n.Severity)},
		},
	}
	if err := c.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return nil
}
