// Package firestore stores orders as documents with their line items embedded
// and status history in a subcollection.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/shopx/api/internal/domain"
	pfirestore "github.com/shopx/api/internal/platform/firestore"
	"github.com/shopx/api/internal/repositories"
)

const (
	ordersCollection  = "orders"
	historyCollection = "statusHistory"
)

// Registry is the Firestore repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
}

var (
	_ repositories.Registry        = (*Registry)(nil)
	_ repositories.OrderRepository = (*Registry)(nil)
)

func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &Registry{provider: provider}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r }

func (r *Registry) Ping(ctx context.Context) error { return r.provider.Ping(ctx) }

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

// RunInTx runs fn inside a Firestore transaction. Firestore requires every
// read to happen before the first write, so fn must load before it mutates.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := pfirestore.TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) orders(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection), nil
}

func (r *Registry) get(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

func (r *Registry) documents(ctx context.Context, q firestore.Query) *firestore.DocumentIterator {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Documents(q)
	}
	return q.Documents(ctx)
}

func (r *Registry) loadOrder(ctx context.Context, op, orderID string) (domain.Order, error) {
	coll, err := r.orders(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := r.get(ctx, coll.Doc(orderID))
	if err != nil {
		return domain.Order{}, pfirestore.WrapError(op, err)
	}
	return snapshotToOrder(snap)
}

func (r *Registry) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return r.loadOrder(ctx, "orders.get", orderID)
}

func (r *Registry) GetOrdersBySeller(ctx context.Context, sellerID string, query repositories.OrderQuery) ([]domain.Order, error) {
	coll, err := r.orders(ctx)
	if err != nil {
		return nil, err
	}
	q := coll.Where("sellerId", "==", sellerID)
	if from := query.CreatedBetween.From; from != nil {
		q = q.Where("createdAt", ">=", from.UTC())
	}
	if to := query.CreatedBetween.To; to != nil {
		q = q.Where("createdAt", "<=", to.UTC())
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, s := range query.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status", "in", statuses)
	}
	q = q.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	return r.collect(ctx, "orders.list_by_seller", q)
}

func (r *Registry) collect(ctx context.Context, op string, q firestore.Query) ([]domain.Order, error) {
	iter := r.documents(ctx, q)
	defer iter.Stop()

	out := make([]domain.Order, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		order, err := snapshotToOrder(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
}

func (r *Registry) GetLineItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	order, err := r.loadOrder(ctx, "orders.line_items", orderID)
	if err != nil {
		return nil, err
	}
	return order.Items, nil
}

func (r *Registry) Insert(ctx context.Context, order domain.Order) error {
	coll, err := r.orders(ctx)
	if err != nil {
		return err
	}
	ref := coll.Doc(order.ID)
	doc := encodeOrder(order)
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.insert", err)
}

// UpdateStatus reads the stored version and writes in one transaction.
func (r *Registry) UpdateStatus(ctx context.Context, update repositories.StatusUpdate) (domain.Order, error) {
	const op = "orders.update_status"
	var updated domain.Order
	err := r.RunInTx(ctx, func(ctx context.Context) error {
		tx, _ := pfirestore.TxFromContext(ctx)
		coll, err := r.orders(ctx)
		if err != nil {
			return err
		}
		ref := coll.Doc(update.OrderID)
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(op, err)
		}
		current, err := snapshotToOrder(snap)
		if err != nil {
			return err
		}
		if current.Version != update.ExpectedVersion {
			return pfirestore.Conflict(op, "order %q at version %d, expected %d", update.OrderID, current.Version, update.ExpectedVersion)
		}
		changedAt := update.ChangedAt.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(update.Status)},
			{Path: "statusChangedAt", Value: changedAt},
			{Path: "version", Value: firestore.Increment(1)},
		}); err != nil {
			return pfirestore.WrapError(op, err)
		}
		current.Status = update.Status
		current.StatusChangedAt = changedAt
		current.Version++
		updated = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// AppendStatusHistory skips the parent existence read inside a transaction;
// callers there have already loaded the order.
func (r *Registry) AppendStatusHistory(ctx context.Context, entry domain.StatusHistoryEntry) error {
	const op = "orders.history.append"
	coll, err := r.orders(ctx)
	if err != nil {
		return err
	}
	orderRef := coll.Doc(entry.OrderID)
	ref := orderRef.Collection(historyCollection).Doc(entry.ID)
	doc := encodeHistory(entry)

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError(op, tx.Create(ref, doc))
	}
	if _, err := orderRef.Get(ctx); err != nil {
		return pfirestore.WrapError(op, err)
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError(op, err)
}

func (r *Registry) ListStatusHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	const op = "orders.history.list"
	coll, err := r.orders(ctx)
	if err != nil {
		return nil, err
	}
	orderRef := coll.Doc(orderID)
	if _, err := r.get(ctx, orderRef); err != nil {
		return nil, pfirestore.WrapError(op, err)
	}

	q := orderRef.Collection(historyCollection).OrderBy("changedAt", firestore.Asc)
	iter := r.documents(ctx, q)
	defer iter.Stop()

	out := make([]domain.StatusHistoryEntry, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decode history %s: %w", snap.Ref.ID, err)
		}
		out = append(out, decodeHistory(snap.Ref.ID, orderID, doc))
	}
}

func (r *Registry) FindByStatusChangedBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]domain.Order, error) {
	coll, err := r.orders(ctx)
	if err != nil {
		return nil, err
	}
	q := coll.Where("status", "==", string(status)).
		Where("statusChangedAt", "<", cutoff.UTC()).
		OrderBy("statusChangedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.collect(ctx, "orders.find_stale", q)
}

func snapshotToOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("firestore: decode order %s: %w", snap.Ref.ID, err)
	}
	return decodeOrder(snap.Ref.ID, doc)
}
