package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

// Money is stored as decimal strings so no precision is lost to float64.
type orderDocument struct {
	SellerID        string             `firestore:"sellerId"`
	CustomerID      string             `firestore:"customerId"`
	CustomerName    string             `firestore:"customerName"`
	Status          string             `firestore:"status"`
	Items           []lineItemDocument `firestore:"items"`
	ShippingAddress addressDocument    `firestore:"shippingAddress"`
	ShippingFee     string             `firestore:"shippingFee"`
	Discount        string             `firestore:"discount"`
	Version         int64              `firestore:"version"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	StatusChangedAt time.Time          `firestore:"statusChangedAt"`
}

type lineItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	CategoryID  string `firestore:"categoryId,omitempty"`
	UnitPrice   string `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country"`
}

type historyDocument struct {
	FromStatus string    `firestore:"fromStatus"`
	ToStatus   string    `firestore:"toStatus"`
	ActorID    string    `firestore:"actorId,omitempty"`
	Note       string    `firestore:"note,omitempty"`
	ChangedAt  time.Time `firestore:"changedAt"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]lineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			CategoryID:  item.CategoryID,
			UnitPrice:   item.UnitPrice.String(),
			Quantity:    item.Quantity,
		})
	}
	addr := order.ShippingAddress
	return orderDocument{
		SellerID:     order.SellerID,
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		Status:       string(order.Status),
		Items:        items,
		ShippingAddress: addressDocument{
			Recipient:  addr.Recipient,
			Phone:      addr.Phone,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		},
		ShippingFee:     order.ShippingFee.String(),
		Discount:        order.Discount.String(),
		Version:         order.Version,
		CreatedAt:       order.CreatedAt.UTC(),
		StatusChangedAt: order.StatusChangedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	items := make([]domain.LineItem, 0, len(doc.Items))
	for i, item := range doc.Items {
		price, err := parseMoney(item.UnitPrice)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s item %d unit price: %w", id, i, err)
		}
		items = append(items, domain.LineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			CategoryID:  item.CategoryID,
			UnitPrice:   price,
			Quantity:    item.Quantity,
		})
	}
	shipping, err := parseMoney(doc.ShippingFee)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s shipping fee: %w", id, err)
	}
	discount, err := parseMoney(doc.Discount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s discount: %w", id, err)
	}
	addr := doc.ShippingAddress
	return domain.Order{
		ID:           id,
		SellerID:     doc.SellerID,
		CustomerID:   doc.CustomerID,
		CustomerName: doc.CustomerName,
		Status:       domain.OrderStatus(doc.Status),
		Items:        items,
		ShippingAddress: domain.Address{
			Recipient:  addr.Recipient,
			Phone:      addr.Phone,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		},
		ShippingFee:     shipping,
		Discount:        discount,
		Version:         doc.Version,
		CreatedAt:       doc.CreatedAt.UTC(),
		StatusChangedAt: doc.StatusChangedAt.UTC(),
	}, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func encodeHistory(entry domain.StatusHistoryEntry) historyDocument {
	return historyDocument{
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		ActorID:    entry.ActorID,
		Note:       entry.Note,
		ChangedAt:  entry.ChangedAt.UTC(),
	}
}

func decodeHistory(id, orderID string, doc historyDocument) domain.StatusHistoryEntry {
	return domain.StatusHistoryEntry{
		ID:         id,
		OrderID:    orderID,
		FromStatus: domain.OrderStatus(doc.FromStatus),
		ToStatus:   domain.OrderStatus(doc.ToStatus),
		ActorID:    doc.ActorID,
		Note:       doc.Note,
		ChangedAt:  doc.ChangedAt.UTC(),
	}
}
