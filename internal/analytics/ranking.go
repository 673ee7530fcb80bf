package analytics

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

// EntityKind identifies what a RankedEntity refers to.
type EntityKind string

const (
	EntityProduct  EntityKind = "product"
	EntityCustomer EntityKind = "customer"
)

// RankedEntity is a product or customer with its aggregated metrics.
type RankedEntity struct {
	Kind              EntityKind
	ID                string
	Name              string
	CategoryID        string
	QuantitySold      int
	Revenue           decimal.Decimal
	OrderCount        int
	AverageOrderValue decimal.Decimal
	AverageUnitPrice  decimal.Decimal
	FirstOrderAt      time.Time
	LastOrderAt       time.Time
	VIP               bool
}

// VIPPolicy flags customers whose spend or order count reaches a threshold.
// A zero threshold disables that criterion.
type VIPPolicy struct {
	MinSpend  decimal.Decimal
	MinOrders int
}

func (p VIPPolicy) qualifies(spend decimal.Decimal, orders int) bool {
	if p.MinSpend.GreaterThan(decimal.Zero) && spend.GreaterThanOrEqual(p.MinSpend) {
		return true
	}
	return p.MinOrders > 0 && orders >= p.MinOrders
}

// LineItemFilter restricts which line items contribute to a product ranking.
type LineItemFilter func(domain.LineItem) bool

// InCategory keeps line items of the given category.
func InCategory(categoryID string) LineItemFilter {
	categoryID = strings.TrimSpace(categoryID)
	return func(item domain.LineItem) bool {
		return categoryID == "" || item.CategoryID == categoryID
	}
}

// RankProducts ranks products sold in revenue-recognized orders created within
// [windowStart, windowEnd] by quantity sold, then revenue, then id. limit <= 0
// returns every product.
func RankProducts(orders []domain.Order, windowStart, windowEnd time.Time, limit int, filters ...LineItemFilter) []RankedEntity {
	window := NewPeriod(windowStart, windowEnd)
	acc := newAccumulator()

	for _, order := range orders {
		if !order.Status.RevenueRecognized() || !window.Contains(order.CreatedAt) {
			continue
		}
		for _, item := range order.Items {
			if !keepItem(item, filters) {
				continue
			}
			entity, seen := acc.get(item.ProductID, order.ID)
			entity.Kind = EntityProduct
			entity.QuantitySold += item.Quantity
			entity.Revenue = entity.Revenue.Add(item.LineTotal())
			entity.CategoryID = item.CategoryID
			entity.observe(order.CreatedAt, item.ProductName)
			if !seen {
				entity.OrderCount++
			}
		}
	}

	products := acc.values()
	for i := range products {
		if products[i].QuantitySold > 0 {
			products[i].AverageUnitPrice = products[i].Revenue.Div(decimal.NewFromInt(int64(products[i].QuantitySold))).Round(2)
		}
		if products[i].OrderCount > 0 {
			products[i].AverageOrderValue = products[i].Revenue.Div(decimal.NewFromInt(int64(products[i].OrderCount))).Round(2)
		}
	}

	return topN(products, limit, func(a, b RankedEntity) int {
		if a.QuantitySold != b.QuantitySold {
			return b.QuantitySold - a.QuantitySold
		}
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// RankCustomers ranks customers of revenue-recognized orders by total spend,
// then order count, then id. Callers pre-filter orders to the window of interest.
func RankCustomers(orders []domain.Order, limit int, vip VIPPolicy) []RankedEntity {
	acc := newAccumulator()
	for _, order := range orders {
		if !order.Status.RevenueRecognized() {
			continue
		}
		entity, _ := acc.get(order.CustomerID, order.ID)
		entity.Kind = EntityCustomer
		entity.OrderCount++
		entity.Revenue = entity.Revenue.Add(order.TotalAmount())
		for _, item := range order.Items {
			entity.QuantitySold += item.Quantity
		}
		entity.observe(order.CreatedAt, order.CustomerName)
	}

	customers := acc.values()
	for i := range customers {
		c := &customers[i]
		if c.OrderCount > 0 {
			c.AverageOrderValue = c.Revenue.Div(decimal.NewFromInt(int64(c.OrderCount))).Round(2)
		}
		c.VIP = vip.qualifies(c.Revenue, c.OrderCount)
	}

	return topN(customers, limit, func(a, b RankedEntity) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		if a.OrderCount != b.OrderCount {
			return b.OrderCount - a.OrderCount
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// topN sorts the full slice before truncating.
func topN[T any](items []T, limit int, cmp func(a, b T) int) []T {
	slices.SortStableFunc(items, cmp)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func keepItem(item domain.LineItem, filters []LineItemFilter) bool {
	for _, f := range filters {
		if f != nil && !f(item) {
			return false
		}
	}
	return true
}

// observe tracks first/last order time and keeps the name from the latest order.
func (e *RankedEntity) observe(at time.Time, name string) {
	if e.FirstOrderAt.IsZero() || at.Before(e.FirstOrderAt) {
		e.FirstOrderAt = at
	}
	if !at.Before(e.LastOrderAt) {
		e.LastOrderAt = at
		if strings.TrimSpace(name) != "" {
			e.Name = name
		}
	} else if e.Name == "" {
		e.Name = name
	}
}

// accumulator groups metrics by entity id and remembers insertion order so
// output never depends on map iteration.
type accumulator struct {
	order    []string
	entities map[string]*RankedEntity
	orders   map[string]map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		entities: make(map[string]*RankedEntity),
		orders:   make(map[string]map[string]struct{}),
	}
}

// get returns the entity for id and whether orderID was already counted for it.
func (a *accumulator) get(id, orderID string) (*RankedEntity, bool) {
	entity, ok := a.entities[id]
	if !ok {
		entity = &RankedEntity{ID: id, Revenue: decimal.Zero}
		a.entities[id] = entity
		a.orders[id] = make(map[string]struct{})
		a.order = append(a.order, id)
	}
	_, seen := a.orders[id][orderID]
	a.orders[id][orderID] = struct{}{}
	return entity, seen
}

func (a *accumulator) values() []RankedEntity {
	out := make([]RankedEntity, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.entities[id])
	}
	return out
}
