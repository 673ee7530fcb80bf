package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/analytics"
	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/auth"
)

// OrderStatusService is the only component allowed to change an order's status.
type OrderStatusService interface {
	Transition(ctx context.Context, cmd TransitionCommand) (TransitionResult, error)
	GetOrder(ctx context.Context, actor *auth.Identity, orderID string) (OrderView, error)
	ListHistory(ctx context.Context, actor *auth.Identity, orderID string) ([]domain.StatusHistoryEntry, error)
}

// StatisticsService serves the seller statistics reports.
type StatisticsService interface {
	Revenue(ctx context.Context, query RevenueQuery) (RevenueReport, error)
	RevenueChart(ctx context.Context, query RevenueChartQuery) (RevenueChartReport, error)
	OrderStatus(ctx context.Context, query StatusQuery) (analytics.StatusSummary, error)
	Orders(ctx context.Context, query OrderListQuery) ([]domain.Order, error)
	TopProducts(ctx context.Context, query TopProductsQuery) (RankingReport, error)
	TopCustomers(ctx context.Context, query TopCustomersQuery) (RankingReport, error)
	Profit(ctx context.Context, query ProfitQuery) (analytics.ProfitSnapshot, error)
	Dashboard(ctx context.Context, query StatusQuery) (analytics.Dashboard, error)
	// Invalidate drops cached reports for sellerID.
	Invalidate(ctx context.Context, sellerID string) error
}

// Authorizer decides whether an identity may perform action on an order owned by sellerID.
type Authorizer interface {
	Authorize(ctx context.Context, actor *auth.Identity, action Action, sellerID string) error
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

// StatisticsInvalidator is notified after an accepted transition so cached reports for the seller are dropped.
type StatisticsInvalidator interface {
	Invalidate(ctx context.Context, sellerID string) error
}

// TransitionMetrics records status machine outcomes. *observability.Metrics satisfies it.
type TransitionMetrics interface {
	RecordTransition(ctx context.Context, from, to string)
	RecordRejection(ctx context.Context, reason string)
}

// TransitionCommand requests moving OrderID to Target on behalf of Actor.
type TransitionCommand struct {
	OrderID string
	Target  domain.OrderStatus
	Actor   *auth.Identity
	Note    string
	// ExpectedStatus, when set, must match the stored status or the call fails with ErrConcurrentModification.
	ExpectedStatus *domain.OrderStatus
}

// TransitionResult is the order after the call. Changed is false for the idempotent no-op.
type TransitionResult struct {
	Order   domain.Order
	Changed bool
	Entry   *domain.StatusHistoryEntry
}

// OrderView is an order plus the statuses it may move to next.
type OrderView struct {
	Order              domain.Order
	AllowedTransitions []domain.OrderStatus
}

// StatisticsScope identifies whose orders a report covers.
type StatisticsScope struct {
	Actor    *auth.Identity
	SellerID string
}

// RevenueQuery asks for a revenue series over an explicit period.
type RevenueQuery struct {
	StatisticsScope
	StartDate   *time.Time
	EndDate     *time.Time
	Granularity analytics.Granularity
}

// RevenueReport is the series plus its totals.
type RevenueReport struct {
	Period       analytics.Period
	Granularity  analytics.Granularity
	Points       []analytics.RevenuePoint
	TotalRevenue decimal.Decimal
	TotalOrders  int
}

// RevenueChartQuery asks for the trailing Days ending today.
type RevenueChartQuery struct {
	StatisticsScope
	Days int
}

// RevenueChartReport carries the daily series and its summary.
type RevenueChartReport struct {
	Period  analytics.Period
	Points  []analytics.RevenuePoint
	Summary analytics.ChartSummary
}

// StatusQuery covers every order of the seller.
type StatusQuery struct {
	StatisticsScope
}

// OrderListQuery drills down into the orders in Statuses, most recently changed first.
type OrderListQuery struct {
	StatisticsScope
	Statuses []domain.OrderStatus
	Limit    int
}

// TopProductsQuery ranks products over the trailing Days.
type TopProductsQuery struct {
	StatisticsScope
	Days       int
	Limit      int
	CategoryID string
}

// TopCustomersQuery ranks customers over the trailing Days.
type TopCustomersQuery struct {
	StatisticsScope
	Days  int
	Limit int
}

// RankingReport is a ranked list and the window it was computed over.
type RankingReport struct {
	Period   analytics.Period
	Entities []analytics.RankedEntity
}

// ProfitQuery asks for a profit snapshot. At least one bound is required.
type ProfitQuery struct {
	StatisticsScope
	StartDate *time.Time
	EndDate   *time.Time
}
