package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-payment-gateway/internal/config"
	"ms-payment-gateway/internal/models"
)

// Producer streams payment lifecycle events to Kafka, one topic per outcome.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
	})
	return &Producer{Writer: writer, Topics: topics}
}

func (p *Producer) publish(topic string, event models.PaymentEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [%s]: %s\n", topic, string(msgBytes))

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(event.OrderID),
			Value: msgBytes,
		},
	)
}

// PublishPaymentSucceeded streams a paid/captured event to Kafka
func (p *Producer) PublishPaymentSucceeded(event models.PaymentEvent) error {
	return p.publish(p.Topics.PaymentSuccess, event)
}

// PublishPaymentFailed streams a declined/failed event to Kafka
func (p *Producer) PublishPaymentFailed(event models.PaymentEvent) error {
	return p.publish(p.Topics.PaymentFailed, event)
}

// PublishPaymentRefunded streams a refund or void event to Kafka
func (p *Producer) PublishPaymentRefunded(event models.PaymentEvent) error {
	return p.publish(p.Topics.PaymentRefunded, event)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
