package analytics

import (
	"slices"
	"strings"

	"github.com/shopx/api/internal/domain"
)

var (
	activeStatuses = []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusRefundRequested,
	}
	finalizedStatuses = []domain.OrderStatus{
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
		domain.OrderStatusRefundRejected,
	}
)

// StatusCounts maps every status to the number of orders in it.
type StatusCounts map[domain.OrderStatus]int

// Total sums all counts.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

func (c StatusCounts) sum(statuses []domain.OrderStatus) int {
	total := 0
	for _, status := range statuses {
		total += c[status]
	}
	return total
}

// CountByStatus returns one entry per status, zero-filled.
// Orders carrying an unknown status are ignored.
func CountByStatus(orders []domain.Order) StatusCounts {
	counts := make(StatusCounts, len(domain.AllOrderStatuses()))
	for _, status := range domain.AllOrderStatuses() {
		counts[status] = 0
	}
	for _, order := range orders {
		if _, ok := counts[order.Status]; ok {
			counts[order.Status]++
		}
	}
	return counts
}

// StatusSummary is the dashboard tile payload: counts plus derived rates in percent.
type StatusSummary struct {
	Total            int
	Counts           StatusCounts
	CompletionRate   float64
	CancellationRate float64
	RefundRate       float64
	ActiveRate       float64
	FinalizedRate    float64
}

// SummarizeStatuses counts orders per status and derives the lifecycle rates.
func SummarizeStatuses(orders []domain.Order) StatusSummary {
	counts := CountByStatus(orders)
	total := counts.Total()
	return StatusSummary{
		Total:            total,
		Counts:           counts,
		CompletionRate:   ratePercent(counts[domain.OrderStatusCompleted], total),
		CancellationRate: ratePercent(counts[domain.OrderStatusCancelled], total),
		RefundRate:       ratePercent(counts[domain.OrderStatusRefunded], total),
		ActiveRate:       ratePercent(counts.sum(activeStatuses), total),
		FinalizedRate:    ratePercent(counts.sum(finalizedStatuses), total),
	}
}

// FilterByStatus returns the orders in any of the given statuses, most recently
// changed first. Ties are ordered by id for stable output.
func FilterByStatus(orders []domain.Order, statuses ...domain.OrderStatus) []domain.Order {
	out := make([]domain.Order, 0)
	if len(statuses) == 0 {
		return out
	}
	for _, order := range orders {
		if slices.Contains(statuses, order.Status) {
			out = append(out, order)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Order) int {
		if c := b.StatusChangedAt.Compare(a.StatusChangedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
