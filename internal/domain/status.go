package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefundRequested,
	OrderStatusRefunded,
	OrderStatusRefundRejected,
}

// Display labels used by the storefront and seller portal.
var orderStatusLabels = map[OrderStatus][]string{
	OrderStatusPending:         {"Chờ xác nhận"},
	OrderStatusProcessing:      {"Đang xử lý"},
	OrderStatusShipped:         {"Đang giao"},
	OrderStatusDelivered:       {"Đã giao"},
	OrderStatusCompleted:       {"Hoàn thành"},
	OrderStatusCancelled:       {"Đã hủy", "Canceled"},
	OrderStatusRefundRequested: {"Yêu cầu trả hàng/ hoàn tiền"},
	OrderStatusRefunded:        {"Đã hoàn tiền"},
	OrderStatusRefundRejected:  {"Từ chối hoàn tiền"},
}

var statusAliases = buildStatusAliases()

var revenueRecognized = map[OrderStatus]struct{}{
	OrderStatusDelivered:      {},
	OrderStatusCompleted:      {},
	OrderStatusRefundRejected: {},
}

// AllOrderStatuses returns every status in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// Valid reports whether s is one of the canonical statuses.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusLabels[s]
	return ok
}

// RevenueRecognized reports whether orders in this status count toward realised revenue.
func (s OrderStatus) RevenueRecognized() bool {
	_, ok := revenueRecognized[s]
	return ok
}

// Label returns the primary localized display label.
func (s OrderStatus) Label() string {
	labels := orderStatusLabels[s]
	if len(labels) == 0 {
		return string(s)
	}
	return labels[0]
}

// ParseOrderStatus resolves canonical names and display labels, ignoring case,
// whitespace, underscores and Unicode composition differences.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	key := statusKey(raw)
	if key == "" {
		return "", false
	}
	status, ok := statusAliases[key]
	return status, ok
}

func buildStatusAliases() map[string]OrderStatus {
	aliases := make(map[string]OrderStatus, len(orderStatuses)*3)
	for _, status := range orderStatuses {
		aliases[statusKey(string(status))] = status
		for _, label := range orderStatusLabels[status] {
			aliases[statusKey(label)] = status
		}
	}
	return aliases
}

func statusKey(value string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	value = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			return -1
		}
		return r
	}, value)
	return cases.Fold().String(value)
}
