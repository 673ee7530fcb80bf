package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/shopx/api/internal/domain"
)

// LogPublisher writes events to the application log. It is the default when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) error {
	msg := newMessage(event)
	p.logger.Info("order event",
		zap.String("messageId", msg.MessageID),
		zap.String("type", msg.Type),
		zap.String("orderId", msg.OrderID),
		zap.String("sellerId", msg.SellerID),
		zap.String("from", msg.PreviousStatus),
		zap.String("to", msg.CurrentStatus),
		zap.Int64("version", msg.Version),
		zap.Time("occurredAt", msg.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close(context.Context) error { return nil }
