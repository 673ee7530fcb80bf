// Package events delivers order status events to the configured broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/textutil"
)

var newMessageID = uuid.NewString

// Message is the JSON body every backend publishes.
type Message struct {
	MessageID      string    `json:"messageId"`
	EventID        string    `json:"eventId"`
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	SellerID       string    `json:"sellerId"`
	PreviousStatus string    `json:"previousStatus"`
	CurrentStatus  string    `json:"currentStatus"`
	ActorID        string    `json:"actorId,omitempty"`
	Note           string    `json:"note,omitempty"`
	Version        int64     `json:"version"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func newMessage(event domain.OrderEvent) Message {
	return Message{
		MessageID:      newMessageID(),
		EventID:        event.ID,
		Type:           event.Type,
		OrderID:        event.OrderID,
		SellerID:       event.SellerID,
		PreviousStatus: string(event.PreviousStatus),
		CurrentStatus:  string(event.CurrentStatus),
		ActorID:        event.ActorID,
		Note:           event.Note,
		Version:        event.Version,
		OccurredAt:     event.OccurredAt.UTC(),
	}
}

func encode(event domain.OrderEvent) (Message, []byte, error) {
	msg := newMessage(event)
	body, err := json.Marshal(msg)
	if err != nil {
		return Message{}, nil, fmt.Errorf("marshal order event: %w", err)
	}
	return msg, body, nil
}

// attributes are the routing headers shared by the Kafka and Pub/Sub backends.
func (m Message) attributes() map[string]string {
	return textutil.NormalizeStringMap(map[string]string{
		"messageId": m.MessageID,
		"eventType": m.Type,
		"orderId":   m.OrderID,
		"sellerId":  m.SellerID,
		"status":    m.CurrentStatus,
		"version":   strconv.FormatInt(m.Version, 10),
	})
}

// Publisher delivers order events and owns broker resources.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
	Close(ctx context.Context) error
}
