package services

import (
	"slices"

	"github.com/shopx/api/internal/domain"
)

// orderStateTransitions is the authoritative transition table. Statuses
// without an entry are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:         {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:      {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:         {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:       {domain.OrderStatusCompleted, domain.OrderStatusRefundRequested},
	domain.OrderStatusRefundRequested: {domain.OrderStatusRefunded, domain.OrderStatusRefundRejected},
}

// AllowedTransitions returns the statuses reachable from current in one step.
func AllowedTransitions(current domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderStateTransitions[current])
}

// CanTransition reports whether current may move to next.
func CanTransition(current, next domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], next)
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status domain.OrderStatus) bool {
	return len(orderStateTransitions[status]) == 0
}
