package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/shopx/api/internal/domain"
)

// kafkaProducer is the part of *kgo.Client the publisher needs.
type kafkaProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces one record per event keyed by order id, so every
// event of an order lands on the same partition in commit order.
type KafkaPublisher struct {
	client kafkaProducer
	topic  string
}

// NewKafkaPublisher connects to brokers and waits for all in-sync replicas on every produce.
func NewKafkaPublisher(brokers []string, topic string, opts ...kgo.Opt) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.RecordRetries(5),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: create client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	msg, body, err := encode(event)
	if err != nil {
		return err
	}
	attrs := msg.attributes()
	headers := make([]kgo.RecordHeader, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
	}
	record := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(msg.OrderID),
		Value:   body,
		Headers: headers,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka publisher: produce %s: %w", msg.OrderID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close(context.Context) error {
	p.client.Close()
	return nil
}
