// Package memory provides process-local repositories used by tests and the
// default development backend.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/repositories"
)

// Store is an in-memory repositories.Registry.
type Store struct {
	mu      sync.RWMutex
	orders  map[string]domain.Order
	history map[string][]domain.StatusHistoryEntry
}

var (
	_ repositories.Registry        = (*Store)(nil)
	_ repositories.OrderRepository = (*Store)(nil)
)

// NewStore returns an empty store seeded with the given orders.
func NewStore(seed ...domain.Order) *Store {
	s := &Store{
		orders:  make(map[string]domain.Order, len(seed)),
		history: make(map[string][]domain.StatusHistoryEntry),
	}
	for _, order := range seed {
		s.orders[order.ID] = cloneOrder(order)
	}
	return s
}

func (s *Store) Orders() repositories.OrderRepository { return s }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

// RunInTx runs fn directly. Each method is atomic on its own and UpdateStatus
// carries its own version check.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %q not found", orderID)
	}
	return cloneOrder(order), nil
}

func (s *Store) GetOrdersBySeller(_ context.Context, sellerID string, query repositories.OrderQuery) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.SellerID != sellerID {
			continue
		}
		if !query.CreatedBetween.Contains(order.CreatedAt) {
			continue
		}
		if len(query.Statuses) > 0 && !slices.Contains(query.Statuses, order.Status) {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetLineItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.Items, nil
}

func (s *Store) Insert(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return conflict("orders.insert", "order %q already exists", order.ID)
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, update repositories.StatusUpdate) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[update.OrderID]
	if !ok {
		return domain.Order{}, notFound("orders.update_status", "order %q not found", update.OrderID)
	}
	if order.Version != update.ExpectedVersion {
		return domain.Order{}, conflict("orders.update_status", "order %q at version %d, expected %d", update.OrderID, order.Version, update.ExpectedVersion)
	}
	order.Status = update.Status
	order.StatusChangedAt = update.ChangedAt
	order.Version++
	s.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (s *Store) AppendStatusHistory(_ context.Context, entry domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[entry.OrderID]; !ok {
		return notFound("orders.history.append", "order %q not found", entry.OrderID)
	}
	s.history[entry.OrderID] = append(s.history[entry.OrderID], entry)
	return nil
}

func (s *Store) ListStatusHistory(_ context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.orders[orderID]; !ok {
		return nil, notFound("orders.history.list", "order %q not found", orderID)
	}
	return slices.Clone(s.history[orderID]), nil
}

func (s *Store) FindByStatusChangedBefore(_ context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Order
	for _, order := range s.orders {
		if order.Status == status && order.StatusChangedAt.Before(cutoff) {
			out = append(out, cloneOrder(order))
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := a.StatusChangedAt.Compare(b.StatusChangedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	return order
}
