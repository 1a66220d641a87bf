package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderboard/internal/database"
	"github.com/Additional-Code/orderboard/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderboard/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrStatusMismatch is returned when a conditional status update finds
	// the order in a different status than expected.
	ErrStatusMismatch = errors.New("order status mismatch")
)

// Repository encapsulates read/write access for orders and table item statuses.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// List returns every order with its items, newest first.
func (r *Repository) List(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var orders []*entity.Order
	err := r.reader.NewSelect().Model(&orders).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Create persists a new order and its items using the write connection.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.Int("order.table", order.TableNumber)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		return insertItems(ctx, tx, order.ID, order.Items)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order with its items using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// UpdateStatus moves an order from one status to another. The update only
// applies while the order is still in status from.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to string, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.from", from),
		attribute.String("order.status.to", to),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	exists, err := r.writer.NewSelect().Model((*entity.Order)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	span.SetStatus(codes.Error, "status mismatch")
	return ErrStatusMismatch
}

// ReplaceItems swaps an order's item list in one transaction.
func (r *Repository) ReplaceItems(ctx context.Context, id int64, items []*entity.OrderItem, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ReplaceItems", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*entity.Order)(nil)).
			Set("updated_at = ?", at).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		return insertItems(ctx, tx, id, items)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace failed")
	}
	return err
}

// Delete removes an order and its items.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListItemStatuses returns every table item status ordered by table and dish.
func (r *Repository) ListItemStatuses(ctx context.Context) ([]entity.TableItemStatus, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListItemStatuses")
	defer span.End()

	var statuses []entity.TableItemStatus
	if err := r.reader.NewSelect().Model(&statuses).Order("table_number ASC", "dish_id ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return statuses, nil
}

// UpsertItemStatus records the kitchen state of a dish at a table.
func (r *Repository) UpsertItemStatus(ctx context.Context, status *entity.TableItemStatus) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpsertItemStatus", trace.WithAttributes(
		attribute.Int("table.number", status.TableNumber),
		attribute.Int64("dish.id", status.DishID),
	))
	defer span.End()

	q := r.writer.NewInsert().Model(status)
	if r.writer.Dialect().Name() == dialect.MySQL {
		q = q.On("DUPLICATE KEY UPDATE").
			Set("status = VALUES(status)").
			Set("updated_at = VALUES(updated_at)")
	} else {
		q = q.On("CONFLICT (table_number, dish_id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("updated_at = EXCLUDED.updated_at")
	}
	if _, err := q.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return err
	}
	return nil
}

func insertItems(ctx context.Context, tx bun.Tx, orderID int64, items []*entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		it.ID = 0
		it.OrderID = orderID
	}
	_, err := tx.NewInsert().Model(&items).Exec(ctx)
	return err
}
