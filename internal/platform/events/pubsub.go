package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/shopx/api/internal/domain"
)

// PubSubPublisher publishes order events to a Pub/Sub topic ordered by order id.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher wraps an existing topic. client may be nil when the caller owns it.
func NewPubSubPublisher(client *pubsub.Client, topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{client: client, topic: topic}, nil
}

func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	msg, body, err := encode(event)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        body,
		Attributes:  msg.attributes(),
		OrderingKey: msg.OrderID,
	})
	if _, err := result.Get(ctx); err != nil {
		p.topic.ResumePublish(msg.OrderID)
		return fmt.Errorf("pubsub publisher: publish %s: %w", msg.OrderID, err)
	}
	return nil
}

func (p *PubSubPublisher) Close(context.Context) error {
	p.topic.Stop()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
