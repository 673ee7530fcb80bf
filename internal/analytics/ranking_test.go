package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopx/api/internal/domain"
)

func rankingFixture() []domain.Order {
	return []domain.Order{
		newOrder("o1", domain.OrderStatusDelivered, day(2025, 6, 1), "0",
			withCustomer("c1", "An"),
			withItems(item("p1", "1", "10", 3), item("p2", "2", "50", 1))),
		newOrder("o2", domain.OrderStatusCompleted, day(2025, 6, 2), "0",
			withCustomer("c2", "Binh"),
			withItems(item("p2", "2", "50", 2), item("p3", "1", "5", 3))),
		newOrder("o3", domain.OrderStatusCancelled, day(2025, 6, 2), "0",
			withCustomer("c3", "Chi"),
			withItems(item("p3", "1", "5", 100))),
		newOrder("o4", domain.OrderStatusRefundRejected, day(2025, 6, 3), "0",
			withCustomer("c1", "An Nguyen"),
			withItems(item("p1", "1", "10", 1))),
		newOrder("o5", domain.OrderStatusRefunded, day(2025, 6, 3), "0",
			withCustomer("c2", "Binh"),
			withItems(item("p2", "2", "50", 10))),
		newOrder("o6", domain.OrderStatusDelivered, day(2025, 7, 1), "0",
			withCustomer("c4", "Dung"),
			withItems(item("p4", "3", "1", 50))),
	}
}

func TestRankProducts(t *testing.T) {
	ranked := RankProducts(rankingFixture(), day(2025, 6, 1), day(2025, 6, 30), 10)

	require.Len(t, ranked, 3)
	// p1 qty 4 rev 40, p2 qty 3 rev 150, p3 qty 3 rev 15.
	assert.Equal(t, []string{"p1", "p2", "p3"}, entityIDs(ranked))
	assert.Equal(t, 4, ranked[0].QuantitySold)
	assert.Equal(t, 2, ranked[0].OrderCount)
	assert.True(t, ranked[0].AverageUnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, ranked[1].Revenue.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, EntityProduct, ranked[2].Kind)
}

func TestRankProductsTieBreaksByID(t *testing.T) {
	orders := []domain.Order{
		newOrder("o1", domain.OrderStatusCompleted, day(2025, 6, 1), "0",
			withItems(item("b", "", "10", 1), item("a", "", "10", 1))),
	}
	ranked := RankProducts(orders, day(2025, 6, 1), day(2025, 6, 1), 0)
	assert.Equal(t, []string{"a", "b"}, entityIDs(ranked))
}

func TestRankProductsLimitAndCategory(t *testing.T) {
	orders := rankingFixture()

	limited := RankProducts(orders, day(2025, 6, 1), day(2025, 6, 30), 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "p1", limited[0].ID)

	category := RankProducts(orders, day(2025, 6, 1), day(2025, 6, 30), 10, InCategory("2"))
	assert.Equal(t, []string{"p2"}, entityIDs(category))
}

func TestRankProductsIgnoresCancelledOrders(t *testing.T) {
	orders := rankingFixture()
	with := RankProducts(orders, day(2025, 6, 1), day(2025, 6, 30), 0)

	var kept []domain.Order
	for _, o := range orders {
		if o.Status != domain.OrderStatusCancelled {
			kept = append(kept, o)
		}
	}
	without := RankProducts(kept, day(2025, 6, 1), day(2025, 6, 30), 0)
	assert.Equal(t, with, without)
}

func TestRankCustomers(t *testing.T) {
	orders := rankingFixture()[:5]

	ranked := RankCustomers(orders, 10, VIPPolicy{MinSpend: decimal.NewFromInt(200)})

	require.Len(t, ranked, 2)
	// c2 spends 115 (o2), c1 spends 80+10 = 90; o3 cancelled and o5 refunded are ignored.
	assert.Equal(t, []string{"c2", "c1"}, entityIDs(ranked))
	assert.True(t, ranked[0].Revenue.Equal(decimal.NewFromInt(115)))
	assert.Equal(t, 2, ranked[1].OrderCount)
	assert.True(t, ranked[1].AverageOrderValue.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, "An Nguyen", ranked[1].Name)
	assert.Equal(t, day(2025, 6, 1).Add(10*time.Hour), ranked[1].FirstOrderAt)
	assert.False(t, ranked[0].VIP)
	assert.False(t, ranked[1].VIP)
}

func TestRankCustomersVIPPolicy(t *testing.T) {
	orders := rankingFixture()[:5]

	byCount := RankCustomers(orders, 0, VIPPolicy{MinOrders: 2})
	assert.False(t, byCount[0].VIP)
	assert.True(t, byCount[1].VIP)

	bySpend := RankCustomers(orders, 0, VIPPolicy{MinSpend: decimal.NewFromInt(100)})
	assert.True(t, bySpend[0].VIP)
	assert.False(t, bySpend[1].VIP)

	disabled := RankCustomers(orders, 0, VIPPolicy{})
	for _, c := range disabled {
		assert.False(t, c.VIP)
	}
}

func TestRankCustomersLimitTruncatesAfterSort(t *testing.T) {
	ranked := RankCustomers(rankingFixture(), 1, VIPPolicy{})
	require.Len(t, ranked, 1)
	assert.Equal(t, "c2", ranked[0].ID)
}

func entityIDs(entities []RankedEntity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}
