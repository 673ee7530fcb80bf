package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shopx/api/internal/domain"
)

const rabbitExchangeType = "topic"

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes to a durable topic exchange with routing key
// order.status.<status>, so consumers can bind to the statuses they handle.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

// NewRabbitPublisher dials url and declares the exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		return nil, errors.New("rabbitmq publisher: exchange is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, rabbitExchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq publisher: declare exchange: %w", err)
	}
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func routingKey(status string) string {
	return "order.status." + strings.ToLower(status)
}

func (p *RabbitPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	msg, body, err := encode(event)
	if err != nil {
		return err
	}
	headers := amqp.Table{}
	for key, value := range msg.attributes() {
		headers[key] = value
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey(msg.CurrentStatus), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Type:         msg.Type,
		Timestamp:    msg.OccurredAt,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publisher: publish %s: %w", msg.OrderID, err)
	}
	return nil
}

func (p *RabbitPublisher) Close(context.Context) error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
