//go:build integration

package firestore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/config"
	pfirestore "github.com/shopx/api/internal/platform/firestore"
	"github.com/shopx/api/internal/repositories"
	ordersfs "github.com/shopx/api/internal/repositories/firestore"
)

func TestRegistryAgainstEmulator(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "orders-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	registry, err := ordersfs.NewRegistry(provider)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := fmt.Sprintf("it-%d", time.Now().UnixNano())
	created := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, registry.Insert(ctx, domain.Order{
		ID: id, SellerID: "seller-it", CustomerID: "c1", Status: domain.OrderStatusPending,
		Items:     []domain.LineItem{{ProductID: "p1", ProductName: "Tea", UnitPrice: decimal.NewFromInt(100), Quantity: 2}},
		CreatedAt: created, StatusChangedAt: created,
	}))

	err = registry.RunInTx(ctx, func(ctx context.Context) error {
		order, err := registry.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if _, err := registry.UpdateStatus(ctx, repositories.StatusUpdate{
			OrderID: id, ExpectedVersion: order.Version, Status: domain.OrderStatusProcessing, ChangedAt: created.Add(time.Minute),
		}); err != nil {
			return err
		}
		return registry.AppendStatusHistory(ctx, domain.StatusHistoryEntry{
			ID: id + "-h1", OrderID: id, FromStatus: order.Status, ToStatus: domain.OrderStatusProcessing, ChangedAt: created.Add(time.Minute),
		})
	})
	require.NoError(t, err)

	order, err := registry.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, int64(1), order.Version)

	_, err = registry.UpdateStatus(ctx, repositories.StatusUpdate{OrderID: id, ExpectedVersion: 0, Status: domain.OrderStatusCancelled})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	history, err := registry.ListStatusHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.OrderStatusProcessing, history[0].ToStatus)
}
