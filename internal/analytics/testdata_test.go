package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type orderOpt func(*domain.Order)

func withCustomer(id, name string) orderOpt {
	return func(o *domain.Order) {
		o.CustomerID = id
		o.CustomerName = name
	}
}

func withItems(items ...domain.LineItem) orderOpt {
	return func(o *domain.Order) { o.Items = items }
}

func changedAt(t time.Time) orderOpt {
	return func(o *domain.Order) { o.StatusChangedAt = t }
}

func item(productID, category, price string, qty int) domain.LineItem {
	return domain.LineItem{
		ProductID:   productID,
		ProductName: "Product " + productID,
		CategoryID:  category,
		UnitPrice:   money(price),
		Quantity:    qty,
	}
}

// newOrder builds an order whose total equals total unless items are overridden.
func newOrder(id string, status domain.OrderStatus, createdAt time.Time, total string, opts ...orderOpt) domain.Order {
	o := domain.Order{
		ID:              id,
		SellerID:        "seller-1",
		CustomerID:      "cust-" + id,
		CustomerName:    "Customer " + id,
		Status:          status,
		Items:           []domain.LineItem{item("p-"+id, "", total, 1)},
		CreatedAt:       createdAt.Add(10 * time.Hour),
		StatusChangedAt: createdAt.Add(12 * time.Hour),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
