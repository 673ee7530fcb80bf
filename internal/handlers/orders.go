package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/auth"
	"github.com/shopx/api/internal/platform/httpx"
	"github.com/shopx/api/internal/services"
)

const maxStatusBodySize = 4 * 1024

type transitionRequest struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	ExpectedStatus string `json:"expected_status"`
}

// OrderHandlers exposes the order status endpoints for sellers and admins.
type OrderHandlers struct {
	orders services.OrderStatusService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderStatusService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/history", h.listHistory)
	r.Post("/{orderID}/status", h.transitionStatus)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	view, err := h.orders.GetOrder(ctx, identity, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{
		Order:              buildOrderPayload(view.Order),
		AllowedTransitions: statusNames(view.AllowedTransitions),
	})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	entries, err := h.orders.ListHistory(ctx, identity, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := historyResponse{Items: make([]historyEntryPayload, 0, len(entries))}
	for _, entry := range entries {
		payload.Items = append(payload.Items, buildHistoryPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := httpx.DecodeJSON(r, maxStatusBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	target, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	cmd := services.TransitionCommand{
		OrderID: orderID,
		Target:  target,
		Actor:   identity,
		Note:    req.Note,
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok := domain.ParseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	result, err := h.orders.Transition(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := transitionResponse{
		Order:              buildOrderPayload(result.Order),
		Changed:            result.Changed,
		AllowedTransitions: statusNames(services.AllowedTransitions(result.Order.Status)),
	}
	if result.Entry != nil {
		entry := buildHistoryPayload(*result.Entry)
		resp.HistoryEntry = &entry
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) prepare(w http.ResponseWriter, r *http.Request) (*auth.Identity, string, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, "", false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, "", false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return nil, "", false
	}
	return identity, orderID, true
}

type orderResponse struct {
	Order              orderPayload `json:"order"`
	AllowedTransitions []string     `json:"allowed_transitions"`
}

type transitionResponse struct {
	Order              orderPayload         `json:"order"`
	Changed            bool                 `json:"changed"`
	AllowedTransitions []string             `json:"allowed_transitions"`
	HistoryEntry       *historyEntryPayload `json:"history_entry,omitempty"`
}

type historyResponse struct {
	Items []historyEntryPayload `json:"items"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	SellerID        string             `json:"seller_id"`
	CustomerID      string             `json:"customer_id"`
	CustomerName    string             `json:"customer_name,omitempty"`
	Status          string             `json:"status"`
	StatusLabel     string             `json:"status_label"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	TotalAmount     string             `json:"total_amount"`
	ShippingFee     string             `json:"shipping_fee"`
	Discount        string             `json:"discount"`
	TotalPayment    string             `json:"total_payment"`
	Version         int64              `json:"version"`
	CreatedAt       string             `json:"created_at"`
	StatusChangedAt string             `json:"status_changed_at,omitempty"`
}

type orderItemPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	CategoryID  string `json:"category_id,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
}

type addressPayload struct {
	Recipient  string `json:"recipient,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type historyEntryPayload struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
	Note       string `json:"note,omitempty"`
	ChangedAt  string `json:"changed_at"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			CategoryID:  item.CategoryID,
			UnitPrice:   item.UnitPrice.String(),
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal().String(),
		})
	}
	addr := order.ShippingAddress
	return orderPayload{
		ID:           order.ID,
		SellerID:     order.SellerID,
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		Status:       string(order.Status),
		StatusLabel:  order.Status.Label(),
		Items:        items,
		ShippingAddress: addressPayload{
			Recipient:  addr.Recipient,
			Phone:      addr.Phone,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		},
		TotalAmount:     order.TotalAmount().String(),
		ShippingFee:     order.ShippingFee.String(),
		Discount:        order.Discount.String(),
		TotalPayment:    order.TotalPayment().String(),
		Version:         order.Version,
		CreatedAt:       formatTime(order.CreatedAt),
		StatusChangedAt: formatTime(order.StatusChangedAt),
	}
}

func buildHistoryPayload(entry domain.StatusHistoryEntry) historyEntryPayload {
	return historyEntryPayload{
		ID:         entry.ID,
		OrderID:    entry.OrderID,
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		ActorID:    entry.ActorID,
		Note:       entry.Note,
		ChangedAt:  formatTime(entry.ChangedAt),
	}
}

func statusNames(statuses []domain.OrderStatus) []string {
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return names
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var transitionErr *services.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"current_status":   string(transitionErr.Current),
			"requested_status": string(transitionErr.Requested),
		}))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrConcurrentModification):
		httpx.WriteError(ctx, w, httpx.NewError("concurrent_modification", "order was modified by another request", http.StatusConflict))
	case errors.Is(err, services.ErrRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("repository_unavailable", "order store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
