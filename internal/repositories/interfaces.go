package repositories

import (
	"context"
	"time"

	"github.com/shopx/api/internal/domain"
)

// Registry exposes the repositories of one storage backend together with its lifecycle hooks.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Orders() OrderRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderQuery narrows GetOrdersBySeller. Empty Statuses matches every status.
type OrderQuery struct {
	CreatedBetween domain.DateRange
	Statuses       []domain.OrderStatus
}

// StatusUpdate is the compare-and-swap write issued by the status machine.
// The update only applies while the stored version equals ExpectedVersion.
type StatusUpdate struct {
	OrderID         string
	ExpectedVersion int64
	Status          domain.OrderStatus
	ChangedAt       time.Time
}

// OrderRepository persists orders, their immutable line items and status history.
type OrderRepository interface {
	// GetOrder returns the order with its line items. Missing orders yield a RepositoryError with IsNotFound.
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrdersBySeller(ctx context.Context, sellerID string, query OrderQuery) ([]domain.Order, error)
	GetLineItems(ctx context.Context, orderID string) ([]domain.LineItem, error)
	Insert(ctx context.Context, order domain.Order) error
	// UpdateStatus returns a conflict RepositoryError when the stored version moved on.
	UpdateStatus(ctx context.Context, update StatusUpdate) (domain.Order, error)
	AppendStatusHistory(ctx context.Context, entry domain.StatusHistoryEntry) error
	ListStatusHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)
	// FindByStatusChangedBefore lists up to limit orders in status whose last change precedes cutoff, oldest first.
	FindByStatusChangedBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]domain.Order, error)
}

// HealthRepository exposes the status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
