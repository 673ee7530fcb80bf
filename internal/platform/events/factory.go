package events

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shopx/api/internal/platform/config"
)

// NewPublisher builds the backend selected by cfg.Backend. Pub/Sub topics are
// created when missing so local emulators work without setup.
func NewPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger, pubsubOpts ...option.ClientOption) (Publisher, error) {
	switch cfg.Backend {
	case "", config.EventsLog:
		return NewLogPublisher(logger), nil
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	case config.EventsRabbitMQ:
		return NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	case config.EventsPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSubProject, pubsubOpts...)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher: create client: %w", err)
		}
		topic, err := ensureTopic(ctx, client, cfg.Topic)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return NewPubSubPublisher(client, topic)
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Backend)
	}
}

func ensureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	topic := client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher: check topic %s: %w", name, err)
	}
	if exists {
		return topic, nil
	}
	topic, err = client.CreateTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher: create topic %s: %w", name, err)
	}
	return topic, nil
}
