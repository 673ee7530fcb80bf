package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/repositories"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := os.Getenv("ORDERS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ORDERS_TEST_POSTGRES_DSN not set; skipping postgres integration tests")
	}
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))
	reg, err := NewRegistry(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg
}

func TestRegistryOrderLifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Microsecond)
	seller := "seller-" + ulid.Make().String()

	order := domain.Order{
		ID:         ulid.Make().String(),
		SellerID:   seller,
		CustomerID: "cust-1",
		Status:     domain.OrderStatusPending,
		Items: []domain.LineItem{
			{ProductID: "p1", ProductName: "Mug", CategoryID: "7", UnitPrice: decimal.RequireFromString("120000.50"), Quantity: 2},
			{ProductID: "p2", ProductName: "Plate", CategoryID: "7", UnitPrice: decimal.RequireFromString("80000"), Quantity: 1},
		},
		ShippingFee:     decimal.NewFromInt(30000),
		CreatedAt:       created,
		StatusChangedAt: created,
	}
	require.NoError(t, reg.Insert(ctx, order))

	loaded, err := reg.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "p1", loaded.Items[0].ProductID)
	assert.True(t, loaded.TotalAmount().Equal(order.TotalAmount()))

	updated, err := reg.UpdateStatus(ctx, repositories.StatusUpdate{
		OrderID: order.ID, ExpectedVersion: 0, Status: domain.OrderStatusProcessing, ChangedAt: created.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	_, err = reg.UpdateStatus(ctx, repositories.StatusUpdate{
		OrderID: order.ID, ExpectedVersion: 0, Status: domain.OrderStatusCancelled, ChangedAt: created,
	})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	require.NoError(t, reg.AppendStatusHistory(ctx, domain.StatusHistoryEntry{
		ID: ulid.Make().String(), OrderID: order.ID, FromStatus: domain.OrderStatusPending,
		ToStatus: domain.OrderStatusProcessing, ActorID: seller, ChangedAt: created.Add(time.Minute),
	}))
	history, err := reg.ListStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	orders, err := reg.GetOrdersBySeller(ctx, seller, repositories.OrderQuery{
		Statuses: []domain.OrderStatus{domain.OrderStatusProcessing},
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	_, err = reg.GetOrder(ctx, "missing-"+ulid.Make().String())
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}
