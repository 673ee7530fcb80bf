package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopx/api/internal/analytics"
	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/cache"
	"github.com/shopx/api/internal/repositories"
	"github.com/shopx/api/internal/repositories/memory"
)

type countingOrders struct {
	*memory.Store
	queries atomic.Int32
}

func (c *countingOrders) GetOrdersBySeller(ctx context.Context, sellerID string, query repositories.OrderQuery) ([]domain.Order, error) {
	c.queries.Add(1)
	return c.Store.GetOrdersBySeller(ctx, sellerID, query)
}

func pricedOrder(id string, status domain.OrderStatus, created time.Time, price int64) domain.Order {
	order := testOrder(id, "seller-1", status)
	order.Items[0].UnitPrice = decimal.NewFromInt(price)
	order.CreatedAt = created
	order.StatusChangedAt = created
	return order
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC)
}

func newStatisticsFixture(t *testing.T, orders ...domain.Order) (StatisticsService, *countingOrders) {
	t.Helper()
	repo := &countingOrders{Store: memory.NewStore(orders...)}
	authorizer, err := NewCasbinAuthorizer()
	require.NoError(t, err)
	svc, err := NewStatisticsService(StatisticsServiceDeps{
		Orders:     repo,
		Authorizer: authorizer,
		Cache:      cache.NewLoader(cache.NewMemoryStore(), time.Minute),
		Settings: StatisticsSettings{
			Location: time.UTC,
			VIP:      analytics.VIPPolicy{MinSpend: decimal.NewFromInt(1000), MinOrders: 3},
			Profit:   analytics.NewProfitAnalyzer(),
		},
		Clock: func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc, repo
}

func datePtr(t time.Time) *time.Time { return &t }

func TestStatisticsRevenueScenario(t *testing.T) {
	svc, _ := newStatisticsFixture(t,
		pricedOrder("o1", domain.OrderStatusDelivered, day(1), 100),
		pricedOrder("o2", domain.OrderStatusCancelled, day(2), 200),
		pricedOrder("o3", domain.OrderStatusRefundRejected, day(3), 50),
	)

	report, err := svc.Revenue(context.Background(), RevenueQuery{
		StatisticsScope: StatisticsScope{Actor: sellerOne},
		StartDate:       datePtr(day(1)),
		EndDate:         datePtr(day(3)),
	})
	require.NoError(t, err)
	require.Len(t, report.Points, 3)

	var revenue []string
	var counts []int
	for _, p := range report.Points {
		revenue = append(revenue, p.Revenue.String())
		counts = append(counts, p.OrderCount)
	}
	assert.Equal(t, []string{"100", "0", "50"}, revenue)
	assert.Equal(t, []int{1, 1, 1}, counts)
	assert.Equal(t, "150", report.TotalRevenue.String())
	assert.Equal(t, analytics.GranularityDay, report.Granularity)

	summary, err := svc.OrderStatus(context.Background(), StatusQuery{StatisticsScope{Actor: sellerOne}})
	require.NoError(t, err)
	assert.Len(t, summary.Counts, len(domain.AllOrderStatuses()))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Counts[domain.OrderStatusRefundRejected])
	assert.Equal(t, 0, summary.Counts[domain.OrderStatusPending])
}

func TestStatisticsPeriodResolution(t *testing.T) {
	svc, _ := newStatisticsFixture(t)
	scope := StatisticsScope{Actor: sellerOne}
	ctx := context.Background()

	_, err := svc.Profit(ctx, ProfitQuery{StatisticsScope: scope})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.Revenue(ctx, RevenueQuery{StatisticsScope: scope, StartDate: datePtr(day(5)), EndDate: datePtr(day(1))})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	snapshot, err := svc.Profit(ctx, ProfitQuery{StatisticsScope: scope, EndDate: datePtr(day(20))})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), snapshot.PeriodStart)
	assert.Equal(t, time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), snapshot.PeriodEnd)
	assert.True(t, snapshot.TotalRevenue.IsZero())
	assert.Empty(t, snapshot.TopProducts)
	assert.NotEmpty(t, snapshot.Caveat)

	report, err := svc.Revenue(ctx, RevenueQuery{StatisticsScope: scope, StartDate: datePtr(day(1))})
	require.NoError(t, err)
	assert.Len(t, report.Points, 3, "missing end defaults to today")
}

func TestStatisticsScopeAuthorization(t *testing.T) {
	svc, _ := newStatisticsFixture(t, pricedOrder("o1", domain.OrderStatusDelivered, day(1), 100))
	ctx := context.Background()

	_, err := svc.OrderStatus(ctx, StatusQuery{StatisticsScope{Actor: sellerTwo, SellerID: "seller-1"}})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.OrderStatus(ctx, StatusQuery{StatisticsScope{Actor: adminActor}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	summary, err := svc.OrderStatus(ctx, StatusQuery{StatisticsScope{Actor: adminActor, SellerID: "seller-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)

	_, err = svc.OrderStatus(ctx, StatusQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStatisticsCacheInvalidation(t *testing.T) {
	svc, repo := newStatisticsFixture(t, pricedOrder("o1", domain.OrderStatusPending, day(1), 100))
	ctx := context.Background()
	query := StatusQuery{StatisticsScope{Actor: sellerOne}}

	_, err := svc.OrderStatus(ctx, query)
	require.NoError(t, err)
	_, err = svc.OrderStatus(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.queries.Load())

	authorizer, err := NewCasbinAuthorizer()
	require.NoError(t, err)
	machine, err := NewOrderStatusService(OrderStatusServiceDeps{
		Orders:     repo,
		Authorizer: authorizer,
		Statistics: svc,
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	_, err = machine.Transition(ctx, TransitionCommand{OrderID: "o1", Target: domain.OrderStatusProcessing, Actor: sellerOne})
	require.NoError(t, err)

	summary, err := svc.OrderStatus(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.queries.Load())
	assert.Equal(t, 1, summary.Counts[domain.OrderStatusProcessing])
	assert.Equal(t, 0, summary.Counts[domain.OrderStatusPending])
}

func TestStatisticsOrdersDrillDown(t *testing.T) {
	older := pricedOrder("o1", domain.OrderStatusShipped, day(1), 100)
	newer := pricedOrder("o2", domain.OrderStatusPending, day(2), 100)
	newest := pricedOrder("o3", domain.OrderStatusShipped, day(3), 100)
	svc, _ := newStatisticsFixture(t, older, newer, newest, pricedOrder("o4", domain.OrderStatusCompleted, day(3), 100))
	ctx := context.Background()

	orders, err := svc.Orders(ctx, OrderListQuery{
		StatisticsScope: StatisticsScope{Actor: sellerOne},
		Statuses:        []domain.OrderStatus{domain.OrderStatusShipped, domain.OrderStatusPending},
	})
	require.NoError(t, err)
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"o3", "o2", "o1"}, ids)

	orders, err = svc.Orders(ctx, OrderListQuery{
		StatisticsScope: StatisticsScope{Actor: sellerOne},
		Statuses:        []domain.OrderStatus{domain.OrderStatusShipped},
		Limit:           1,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o3", orders[0].ID)

	_, err = svc.Orders(ctx, OrderListQuery{StatisticsScope: StatisticsScope{Actor: sellerOne}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStatisticsRankings(t *testing.T) {
	a := pricedOrder("o1", domain.OrderStatusDelivered, day(1), 700)
	a.CustomerID = "c1"
	b := pricedOrder("o2", domain.OrderStatusCompleted, day(2), 400)
	b.CustomerID = "c1"
	b.Items[0].ProductID = "p2"
	b.Items[0].Quantity = 3
	c := pricedOrder("o3", domain.OrderStatusCancelled, day(2), 5000)
	c.CustomerID = "c2"
	svc, _ := newStatisticsFixture(t, a, b, c)
	ctx := context.Background()
	scope := StatisticsScope{Actor: sellerOne}

	products, err := svc.TopProducts(ctx, TopProductsQuery{StatisticsScope: scope, Limit: 5})
	require.NoError(t, err)
	require.Len(t, products.Entities, 2)
	assert.Equal(t, "p2", products.Entities[0].ID)
	assert.Equal(t, 3, products.Entities[0].QuantitySold)
	assert.Equal(t, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), products.Period.Start)

	customers, err := svc.TopCustomers(ctx, TopCustomersQuery{StatisticsScope: scope})
	require.NoError(t, err)
	require.Len(t, customers.Entities, 1, "cancelled orders never rank")
	assert.Equal(t, "c1", customers.Entities[0].ID)
	assert.Equal(t, "1900", customers.Entities[0].Revenue.String())
	assert.True(t, customers.Entities[0].VIP)

	_, err = svc.TopProducts(ctx, TopProductsQuery{StatisticsScope: scope, Limit: 101})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.TopCustomers(ctx, TopCustomersQuery{StatisticsScope: scope, Days: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStatisticsRevenueChartAndDashboard(t *testing.T) {
	svc, _ := newStatisticsFixture(t,
		pricedOrder("o1", domain.OrderStatusDelivered, day(1), 100),
		pricedOrder("o2", domain.OrderStatusCompleted, day(3), 300),
		pricedOrder("o3", domain.OrderStatusDelivered, time.Date(2025, 5, 25, 9, 0, 0, 0, time.UTC), 100),
	)
	ctx := context.Background()
	scope := StatisticsScope{Actor: sellerOne}

	chart, err := svc.RevenueChart(ctx, RevenueChartQuery{StatisticsScope: scope})
	require.NoError(t, err)
	assert.Len(t, chart.Points, 7)
	assert.Equal(t, "400", chart.Summary.TotalRevenue.String())
	assert.Equal(t, "100", chart.Summary.PreviousRevenue.String())

	_, err = svc.RevenueChart(ctx, RevenueChartQuery{StatisticsScope: scope, Days: 400})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	dashboard, err := svc.Dashboard(ctx, StatusQuery{scope})
	require.NoError(t, err)
	assert.Equal(t, "300", dashboard.Today.Revenue.String())
	assert.Equal(t, "400", dashboard.ThisMonth.Revenue.String())
	assert.Equal(t, "100", dashboard.LastMonth.Revenue.String())
	assert.Equal(t, 2, dashboard.ProductsSoldThisMonth)
}

func TestStatisticsRepositoryUnavailable(t *testing.T) {
	authorizer, err := NewCasbinAuthorizer()
	require.NoError(t, err)
	svc, err := NewStatisticsService(StatisticsServiceDeps{
		Orders:     failingOrders{},
		Authorizer: authorizer,
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)

	_, err = svc.OrderStatus(context.Background(), StatusQuery{StatisticsScope{Actor: sellerOne}})
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
}

type unavailableError struct{}

func (unavailableError) Error() string       { return "store offline" }
func (unavailableError) IsNotFound() bool    { return false }
func (unavailableError) IsConflict() bool    { return false }
func (unavailableError) IsUnavailable() bool { return true }

type failingOrders struct {
	repositories.OrderRepository
}

func (failingOrders) GetOrdersBySeller(context.Context, string, repositories.OrderQuery) ([]domain.Order, error) {
	return nil, unavailableError{}
}

