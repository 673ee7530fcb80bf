package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopx/api/internal/domain"
)

func TestCountByStatusZeroFills(t *testing.T) {
	orders := []domain.Order{
		newOrder("o1", domain.OrderStatusDelivered, day(2025, 6, 1), "100"),
		newOrder("o2", domain.OrderStatusCancelled, day(2025, 6, 2), "200"),
		newOrder("o3", domain.OrderStatusRefundRejected, day(2025, 6, 3), "50"),
	}

	counts := CountByStatus(orders)

	require.Len(t, counts, len(domain.AllOrderStatuses()))
	assert.Equal(t, len(orders), counts.Total())
	for _, status := range domain.AllOrderStatuses() {
		want := 0
		switch status {
		case domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusRefundRejected:
			want = 1
		}
		assert.Equal(t, want, counts[status], status)
	}
}

func TestCountByStatusEmpty(t *testing.T) {
	counts := CountByStatus(nil)
	assert.Len(t, counts, 9)
	assert.Zero(t, counts.Total())
}

func TestSummarizeStatusesRates(t *testing.T) {
	orders := []domain.Order{
		newOrder("a", domain.OrderStatusCompleted, day(2025, 6, 1), "1"),
		newOrder("b", domain.OrderStatusCompleted, day(2025, 6, 1), "1"),
		newOrder("c", domain.OrderStatusCancelled, day(2025, 6, 1), "1"),
		newOrder("d", domain.OrderStatusPending, day(2025, 6, 1), "1"),
		newOrder("e", domain.OrderStatusRefunded, day(2025, 6, 1), "1"),
		newOrder("f", domain.OrderStatusShipped, day(2025, 6, 1), "1"),
	}

	s := SummarizeStatuses(orders)

	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 33.33, s.CompletionRate)
	assert.Equal(t, 16.67, s.CancellationRate)
	assert.Equal(t, 16.67, s.RefundRate)
	assert.Equal(t, 33.33, s.ActiveRate)
	assert.Equal(t, 66.67, s.FinalizedRate)

	empty := SummarizeStatuses(nil)
	assert.Zero(t, empty.CompletionRate)
	assert.Zero(t, empty.FinalizedRate)
}

func TestFilterByStatusOrdersMostRecentFirst(t *testing.T) {
	base := day(2025, 6, 1)
	orders := []domain.Order{
		newOrder("b", domain.OrderStatusShipped, base, "1", changedAt(base.AddDate(0, 0, 2))),
		newOrder("a", domain.OrderStatusShipped, base, "1", changedAt(base.AddDate(0, 0, 2))),
		newOrder("c", domain.OrderStatusPending, base, "1", changedAt(base.AddDate(0, 0, 5))),
		newOrder("d", domain.OrderStatusShipped, base, "1", changedAt(base.AddDate(0, 0, 4))),
		newOrder("e", domain.OrderStatusDelivered, base, "1", changedAt(base.AddDate(0, 0, 3))),
	}

	shipped := FilterByStatus(orders, domain.OrderStatusShipped)
	assert.Equal(t, []string{"d", "a", "b"}, orderIDs(shipped))

	merged := FilterByStatus(orders, domain.OrderStatusShipped, domain.OrderStatusPending)
	assert.Equal(t, []string{"c", "d", "a", "b"}, orderIDs(merged))

	none := FilterByStatus(orders)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
