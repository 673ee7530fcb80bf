package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

type orderRecord struct {
	ID              string          `gorm:"primaryKey;type:varchar(64)"`
	SellerID        string          `gorm:"type:varchar(64);not null;index:idx_orders_seller_created,priority:1"`
	CustomerID      string          `gorm:"type:varchar(64);not null;index"`
	CustomerName    string          `gorm:"type:varchar(255)"`
	Status          string          `gorm:"type:varchar(32);not null;index:idx_orders_status_changed,priority:1"`
	ShippingFee     decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Discount        decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Recipient       string          `gorm:"type:varchar(255)"`
	Phone           string          `gorm:"type:varchar(32)"`
	AddressLine1    string          `gorm:"type:varchar(255)"`
	AddressLine2    string          `gorm:"type:varchar(255)"`
	City            string          `gorm:"type:varchar(128)"`
	State           string          `gorm:"type:varchar(128)"`
	PostalCode      string          `gorm:"type:varchar(32)"`
	Country         string          `gorm:"type:varchar(64)"`
	Version         int64           `gorm:"not null;default:0"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_orders_seller_created,priority:2"`
	StatusChangedAt time.Time       `gorm:"not null;index:idx_orders_status_changed,priority:2"`

	Items []lineItemRecord `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderRecord) TableName() string { return "orders" }

type lineItemRecord struct {
	ID          uint            `gorm:"primaryKey"`
	OrderID     string          `gorm:"type:varchar(64);not null;index"`
	Position    int             `gorm:"not null"`
	ProductID   string          `gorm:"type:varchar(64);not null;index"`
	ProductName string          `gorm:"type:varchar(255);not null"`
	CategoryID  string          `gorm:"type:varchar(64)"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Quantity    int             `gorm:"not null;check:quantity > 0"`
}

func (lineItemRecord) TableName() string { return "order_line_items" }

type statusHistoryRecord struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	OrderID    string    `gorm:"type:varchar(64);not null;index"`
	FromStatus string    `gorm:"type:varchar(32);not null"`
	ToStatus   string    `gorm:"type:varchar(32);not null"`
	ActorID    string    `gorm:"type:varchar(64)"`
	Note       string    `gorm:"type:text"`
	ChangedAt  time.Time `gorm:"not null"`
}

func (statusHistoryRecord) TableName() string { return "order_status_history" }

func toOrderRecord(order domain.Order) orderRecord {
	rec := orderRecord{
		ID:              order.ID,
		SellerID:        order.SellerID,
		CustomerID:      order.CustomerID,
		CustomerName:    order.CustomerName,
		Status:          string(order.Status),
		ShippingFee:     order.ShippingFee,
		Discount:        order.Discount,
		Recipient:       order.ShippingAddress.Recipient,
		Phone:           order.ShippingAddress.Phone,
		AddressLine1:    order.ShippingAddress.Line1,
		AddressLine2:    order.ShippingAddress.Line2,
		City:            order.ShippingAddress.City,
		State:           order.ShippingAddress.State,
		PostalCode:      order.ShippingAddress.PostalCode,
		Country:         order.ShippingAddress.Country,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt.UTC(),
		StatusChangedAt: order.StatusChangedAt.UTC(),
		Items:           make([]lineItemRecord, 0, len(order.Items)),
	}
	for i, item := range order.Items {
		rec.Items = append(rec.Items, lineItemRecord{
			OrderID:     order.ID,
			Position:    i,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			CategoryID:  item.CategoryID,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}
	return rec
}

func (r orderRecord) toDomain() domain.Order {
	order := domain.Order{
		ID:           r.ID,
		SellerID:     r.SellerID,
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		Status:       domain.OrderStatus(r.Status),
		ShippingAddress: domain.Address{
			Recipient:  r.Recipient,
			Phone:      r.Phone,
			Line1:      r.AddressLine1,
			Line2:      r.AddressLine2,
			City:       r.City,
			State:      r.State,
			PostalCode: r.PostalCode,
			Country:    r.Country,
		},
		ShippingFee:     r.ShippingFee,
		Discount:        r.Discount,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.UTC(),
		StatusChangedAt: r.StatusChangedAt.UTC(),
		Items:           make([]domain.LineItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		order.Items = append(order.Items, item.toDomain())
	}
	return order
}

func (r lineItemRecord) toDomain() domain.LineItem {
	return domain.LineItem{
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		CategoryID:  r.CategoryID,
		UnitPrice:   r.UnitPrice,
		Quantity:    r.Quantity,
	}
}

func toHistoryRecord(entry domain.StatusHistoryEntry) statusHistoryRecord {
	return statusHistoryRecord{
		ID:         entry.ID,
		OrderID:    entry.OrderID,
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		ActorID:    entry.ActorID,
		Note:       entry.Note,
		ChangedAt:  entry.ChangedAt.UTC(),
	}
}

func (r statusHistoryRecord) toDomain() domain.StatusHistoryEntry {
	return domain.StatusHistoryEntry{
		ID:         r.ID,
		OrderID:    r.OrderID,
		FromStatus: domain.OrderStatus(r.FromStatus),
		ToStatus:   domain.OrderStatus(r.ToStatus),
		ActorID:    r.ActorID,
		Note:       r.Note,
		ChangedAt:  r.ChangedAt.UTC(),
	}
}
