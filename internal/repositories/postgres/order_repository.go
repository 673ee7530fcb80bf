package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/repositories"
)

type txKey struct{}

// Registry is the Postgres repositories.Registry.
type Registry struct {
	db *gorm.DB
}

var (
	_ repositories.Registry        = (*Registry)(nil)
	_ repositories.OrderRepository = (*Registry)(nil)
)

// NewRegistry wraps an open gorm connection.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres: db is required")
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r }

func (r *Registry) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return wrapError("ping", err)
	}
	return wrapError("ping", sqlDB.PingContext(ctx))
}

func (r *Registry) Close(context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunInTx executes fn in a database transaction. Repository calls made with
// the context passed to fn join that transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Registry) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (r *Registry) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var rec orderRecord
	if err := withItems(r.conn(ctx)).Where("id = ?", orderID).First(&rec).Error; err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	return rec.toDomain(), nil
}

func (r *Registry) GetOrdersBySeller(ctx context.Context, sellerID string, query repositories.OrderQuery) ([]domain.Order, error) {
	q := withItems(r.conn(ctx)).Where("seller_id = ?", sellerID)
	if from := query.CreatedBetween.From; from != nil {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if to := query.CreatedBetween.To; to != nil {
		q = q.Where("created_at <= ?", to.UTC())
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, s := range query.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}

	var recs []orderRecord
	if err := q.Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, wrapError("orders.list_by_seller", err)
	}
	out := make([]domain.Order, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (r *Registry) GetLineItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	var count int64
	if err := r.conn(ctx).Model(&orderRecord{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return nil, wrapError("orders.line_items", err)
	}
	if count == 0 {
		return nil, notFoundError("orders.line_items", "order %q not found", orderID)
	}
	var recs []lineItemRecord
	if err := r.conn(ctx).Where("order_id = ?", orderID).Order("position ASC").Find(&recs).Error; err != nil {
		return nil, wrapError("orders.line_items", err)
	}
	items := make([]domain.LineItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.toDomain())
	}
	return items, nil
}

func (r *Registry) Insert(ctx context.Context, order domain.Order) error {
	rec := toOrderRecord(order)
	return wrapError("orders.insert", r.conn(ctx).Create(&rec).Error)
}

func (r *Registry) UpdateStatus(ctx context.Context, update repositories.StatusUpdate) (domain.Order, error) {
	var order domain.Order
	err := r.RunInTx(ctx, func(ctx context.Context) error {
		res := r.conn(ctx).Model(&orderRecord{}).
			Where("id = ? AND version = ?", update.OrderID, update.ExpectedVersion).
			Updates(map[string]any{
				"status":            string(update.Status),
				"status_changed_at": update.ChangedAt.UTC(),
				"version":           gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return wrapError("orders.update_status", res.Error)
		}
		if res.RowsAffected == 0 {
			var current orderRecord
			err := r.conn(ctx).Select("id", "version").Where("id = ?", update.OrderID).First(&current).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("orders.update_status", "order %q not found", update.OrderID)
			}
			if err != nil {
				return wrapError("orders.update_status", err)
			}
			return conflictError("orders.update_status", "order %q at version %d, expected %d", update.OrderID, current.Version, update.ExpectedVersion)
		}
		var err error
		order, err = r.GetOrder(ctx, update.OrderID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *Registry) AppendStatusHistory(ctx context.Context, entry domain.StatusHistoryEntry) error {
	rec := toHistoryRecord(entry)
	return wrapError("orders.history.append", r.conn(ctx).Create(&rec).Error)
}

func (r *Registry) ListStatusHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	if _, err := r.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	var recs []statusHistoryRecord
	if err := r.conn(ctx).Where("order_id = ?", orderID).Order("changed_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, wrapError("orders.history.list", err)
	}
	out := make([]domain.StatusHistoryEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (r *Registry) FindByStatusChangedBefore(ctx context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]domain.Order, error) {
	q := withItems(r.conn(ctx)).
		Where("status = ? AND status_changed_at < ?", string(status), cutoff.UTC()).
		Order("status_changed_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []orderRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, wrapError("orders.find_stale", err)
	}
	out := make([]domain.Order, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}
