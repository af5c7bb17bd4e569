package kafka

import (
	"context"
	"encoding/json"

	"checkout-service/models"

	"github.com/segmentio/kafka-go"
)

// PaymentEventProducer publishes payment events to Kafka.
type PaymentEventProducer struct {
	writer *kafka.Writer
}

// NewPaymentEventProducer creates a producer for the given topic.
func NewPaymentEventProducer(brokers []string, topic string) *PaymentEventProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &PaymentEventProducer{writer: writer}
}

// Publish sends one payment event, keyed by order id so events for the
// same order stay ordered.
func (p *PaymentEventProducer) Publish(event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	}
	return p.writer.WriteMessages(context.Background(), msg)
}

// Close flushes and closes the writer.
func (p *PaymentEventProducer) Close() error {
	return p.writer.Close()
}
