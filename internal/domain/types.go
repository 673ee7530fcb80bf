package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits seller confirmation.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing indicates the seller accepted the order and is preparing it.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCompleted indicates the order was closed after delivery.
	OrderStatusCompleted OrderStatus = "Completed"
	// OrderStatusCancelled indicates the order was cancelled before delivery.
	OrderStatusCancelled OrderStatus = "Cancelled"
	// OrderStatusRefundRequested indicates the customer asked for a refund after delivery.
	OrderStatusRefundRequested OrderStatus = "RefundRequested"
	// OrderStatusRefunded indicates the refund was granted.
	OrderStatusRefunded OrderStatus = "Refunded"
	// OrderStatusRefundRejected indicates the refund request was declined.
	OrderStatusRefundRejected OrderStatus = "RefundRejected"
)

// Address is the shipping destination captured at order time.
type Address struct {
	Recipient  string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// LineItem is an immutable order line. ProductName and UnitPrice are captured at order time.
type LineItem struct {
	ProductID   string
	ProductName string
	CategoryID  string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// LineTotal returns quantity * unit price.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order captures an order header with its line items.
type Order struct {
	ID              string
	SellerID        string
	CustomerID      string
	CustomerName    string
	Status          OrderStatus
	Items           []LineItem
	ShippingAddress Address
	ShippingFee     decimal.Decimal
	Discount        decimal.Decimal
	Version         int64
	CreatedAt       time.Time
	StatusChangedAt time.Time
}

// TotalAmount is the sum of all line totals.
func (o Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// TotalPayment is the amount charged to the customer.
func (o Order) TotalPayment() decimal.Decimal {
	return o.TotalAmount().Add(o.ShippingFee).Sub(o.Discount)
}

// StatusHistoryEntry is the append-only audit record written for every accepted transition.
type StatusHistoryEntry struct {
	ID         string
	OrderID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	ActorID    string
	Note       string
	ChangedAt  time.Time
}

// DateRange filters by an inclusive time window. Nil bounds are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// OrderEvent records one accepted status change for downstream consumers.
type OrderEvent struct {
	ID             string
	Type           string
	OrderID        string
	SellerID       string
	PreviousStatus OrderStatus
	CurrentStatus  OrderStatus
	ActorID        string
	Note           string
	Version        int64
	OccurredAt     time.Time
}
