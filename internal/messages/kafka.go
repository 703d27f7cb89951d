package messages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

var _ Publisher = (*KafkaPublisher)(nil)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Publish keys messages by payment id so every event of one payment lands on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event *PaymentOutcome) error {
	data, err := encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.PaymentID, 10)),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
